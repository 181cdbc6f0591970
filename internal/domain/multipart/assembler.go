package multipart

import (
	"bytes"
	"mime"
	"strings"

	"sortvision-gateway/internal/platform/errors"
)

// Part is one boundary-delimited section of a multipart body. Data aliases
// the body passed to Assemble.
type Part struct {
	Name        *string
	Filename    *string
	ContentType *string
	Data        []byte
}

// NameOr returns the part name, or def when the part had none.
func (p Part) NameOr(def string) string {
	if p.Name == nil {
		return def
	}
	return *p.Name
}

var (
	crlf          = []byte("\r\n")
	headerEnd     = []byte("\r\n\r\n")
	closingSuffix = []byte("--")
)

// ParseContentType extracts the boundary from a multipart Content-Type value.
func ParseContentType(contentType string) (string, error) {
	const op = "multipart.content_type"

	if strings.TrimSpace(contentType) == "" {
		return "", errors.New(errors.KindFormat, op, "missing content type")
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", errors.Wrap(errors.KindFormat, op, "malformed content type", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return "", errors.Newf(errors.KindFormat, op, "response is not multipart: %s", mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return "", errors.New(errors.KindFormat, op, "no boundary in content type")
	}
	return boundary, nil
}

// Assemble splits body into parts separated by "--"+boundary. Scanning is a
// single forward pass with a cursor. A part whose header block is not
// terminated by an empty line fails the whole body with KindTruncation.
// Nameless parts are kept.
func Assemble(body []byte, boundary string) ([]Part, error) {
	const op = "multipart.assemble"

	if boundary == "" {
		return nil, errors.New(errors.KindFormat, op, "empty boundary")
	}
	marker := []byte("--" + boundary)

	var parts []Part
	cursor := 0
	for {
		start := Find(body, marker, cursor)
		if start < 0 {
			break
		}

		headerStart := start + len(marker)
		// "--boundary--" closes the body
		if hasPrefixAt(body, closingSuffix, headerStart) {
			break
		}
		if hasPrefixAt(body, crlf, headerStart) {
			headerStart += len(crlf)
		}

		headerStop := Find(body, headerEnd, headerStart)
		if headerStop < 0 {
			return nil, errors.Newf(errors.KindTruncation, op,
				"part %d at offset %d has no header terminator", len(parts), start)
		}
		headers := ParseHeaders(string(body[headerStart:headerStop]))

		dataStart := headerStop + len(headerEnd)
		next := Find(body, marker, dataStart)
		dataEnd := next
		if dataEnd < 0 {
			dataEnd = len(body)
		}
		for dataEnd > dataStart && (body[dataEnd-1] == '\n' || body[dataEnd-1] == '\r') {
			dataEnd--
		}

		parts = append(parts, Part{
			Name:        headers.Name,
			Filename:    headers.Filename,
			ContentType: headers.ContentType,
			Data:        body[dataStart:dataEnd:dataEnd],
		})

		if next < 0 {
			break
		}
		cursor = next
	}
	return parts, nil
}

func hasPrefixAt(buf, prefix []byte, at int) bool {
	return at <= len(buf) && bytes.HasPrefix(buf[at:], prefix)
}
