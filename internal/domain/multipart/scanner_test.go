package multipart

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFind(t *testing.T) {
	tests := []struct {
		name     string
		haystack string
		needle   string
		from     int
		want     int
	}{
		{"match at start", "--X\r\n", "--X", 0, 0},
		{"match after offset", "ab--Xcd--X", "--X", 3, 7},
		{"first match wins", "aXbXc", "X", 0, 1},
		{"no match", "abcdef", "xyz", 0, -1},
		{"needle longer than rest", "abc", "bcd", 1, -1},
		{"from past end", "abc", "a", 4, -1},
		{"from at end with empty needle", "abc", "", 3, 3},
		{"negative from treated as zero", "abc", "a", -5, 0},
		{"empty haystack", "", "a", 0, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Find([]byte(tt.haystack), []byte(tt.needle), tt.from))
		})
	}
}

func TestFind_BinaryPayload(t *testing.T) {
	haystack := []byte{0x00, 0xFF, 0x0D, 0x0A, 0x2D, 0x2D, 0x58, 0x00}
	assert.Equal(t, 4, Find(haystack, []byte("--X"), 0))
	assert.Equal(t, 2, Find(haystack, []byte{0x0D, 0x0A}, 0))
	assert.Equal(t, -1, Find(haystack, []byte("--X"), 5))
}
