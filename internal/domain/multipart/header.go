package multipart

import (
	"regexp"
	"strings"
)

// Headers holds what the decoder needs from one part's header block.
// Nil fields were absent.
type Headers struct {
	Name        *string
	Filename    *string
	ContentType *string
}

var (
	nameParam     = regexp.MustCompile(`(?:^|[;\s])name="([^"]+)"`)
	filenameParam = regexp.MustCompile(`filename="([^"]+)"`)
)

const (
	dispositionPrefix = "content-disposition:"
	contentTypePrefix = "content-type:"
)

// ParseHeaders reads a CRLF separated header block. Unknown lines are ignored
// and missing headers leave the matching field nil; it never fails.
func ParseHeaders(block string) Headers {
	var h Headers
	for _, line := range strings.Split(block, "\r\n") {
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, dispositionPrefix):
			params := line[len(dispositionPrefix):]
			if m := nameParam.FindStringSubmatch(params); m != nil {
				h.Name = stringPtr(m[1])
			}
			if m := filenameParam.FindStringSubmatch(params); m != nil {
				h.Filename = stringPtr(m[1])
			}
		case strings.HasPrefix(lower, contentTypePrefix):
			h.ContentType = stringPtr(strings.TrimSpace(line[len(contentTypePrefix):]))
		}
	}
	return h
}

func stringPtr(s string) *string {
	return &s
}
