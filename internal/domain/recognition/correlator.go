package recognition

import (
	"fmt"
	"regexp"
	"strconv"

	"sortvision-gateway/internal/domain/blob"
	"sortvision-gateway/internal/domain/multipart"
	"sortvision-gateway/internal/platform/errors"
)

// DefaultImageContentType is used for file parts sent without a Content-Type.
const DefaultImageContentType = "image/webp"

var filePartName = regexp.MustCompile(`^file_(\d+)$`)

// Correlator joins metadata records with "file_<N>" parts.
type Correlator struct {
	Registry           blob.Registry
	DefaultContentType string
}

// Correlate uses reg and the default image content type.
func Correlate(meta Metadata, parts []multipart.Part, reg blob.Registry) ([]*Result, error) {
	return Correlator{Registry: reg}.Correlate(meta, parts)
}

// Correlate returns one result per record in metadata order. A record whose
// file_index has no part gets no image. Every record is looked up on its own,
// so two records sharing an index get separate blobs. On a registration
// failure every blob created so far is released.
func (c Correlator) Correlate(meta Metadata, parts []multipart.Part) ([]*Result, error) {
	files := indexFileParts(parts)
	contentType := c.DefaultContentType
	if contentType == "" {
		contentType = DefaultImageContentType
	}

	results := make([]*Result, 0, len(meta.Results))
	for _, record := range meta.Results {
		part, ok := files[record.FileIndex]
		if !ok {
			results = append(results, newResult(record, nil))
			continue
		}

		ct := contentType
		if part.ContentType != nil && *part.ContentType != "" {
			ct = *part.ContentType
		}
		filename := fmt.Sprintf("file_%d.webp", record.FileIndex)
		if part.Filename != nil && *part.Filename != "" {
			filename = *part.Filename
		}

		image, err := blob.New(c.Registry, part.Data, ct, filename)
		if err != nil {
			releaseAll(results)
			return nil, errors.Wrap(errors.KindPlatform, "recognition.correlate",
				fmt.Sprintf("create handle for record %d", record.ID), err)
		}
		results = append(results, newResult(record, image))
	}
	return results, nil
}

// indexFileParts maps N to the part named file_N. A later duplicate wins.
func indexFileParts(parts []multipart.Part) map[int]multipart.Part {
	files := make(map[int]multipart.Part)
	for _, p := range parts {
		if p.Name == nil {
			continue
		}
		m := filePartName.FindStringSubmatch(*p.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		files[n] = p
	}
	return files
}
