package multipart

import "bytes"

// Find returns the index of the first occurrence of needle in haystack at or
// after from, or -1. It never copies the haystack, so binary payloads that
// happen to contain text-like sequences are scanned as plain bytes.
func Find(haystack, needle []byte, from int) int {
	if from < 0 {
		from = 0
	}
	if from > len(haystack) || len(needle) > len(haystack)-from {
		return -1
	}
	if len(needle) == 0 {
		return from
	}
	idx := bytes.Index(haystack[from:], needle)
	if idx < 0 {
		return -1
	}
	return from + idx
}
