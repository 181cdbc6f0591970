package utils

import (
	"strings"
)

// RemoveControlCharacters drops control characters except tab, LF and CR.
func RemoveControlCharacters(text string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		if r == 127 {
			return -1
		}
		return r
	}, text)
}

// CleanIdentifier trims an externally supplied identifier and strips control
// characters and line breaks from it. Identifiers longer than max runes are cut.
func CleanIdentifier(s string, max int) string {
	s = RemoveControlCharacters(s)
	s = strings.NewReplacer("\t", "", "\n", "", "\r", "").Replace(s)
	s = strings.TrimSpace(s)
	if max > 0 {
		if r := []rune(s); len(r) > max {
			s = string(r[:max])
		}
	}
	return s
}
