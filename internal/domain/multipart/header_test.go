package multipart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeaders_DispositionAndType(t *testing.T) {
	h := ParseHeaders("Content-Disposition: form-data; name=\"file_0\"; filename=\"7.webp\"\r\nContent-Type:  image/webp ")

	require.NotNil(t, h.Name)
	require.NotNil(t, h.Filename)
	require.NotNil(t, h.ContentType)
	assert.Equal(t, "file_0", *h.Name)
	assert.Equal(t, "7.webp", *h.Filename)
	assert.Equal(t, "image/webp", *h.ContentType)
}

func TestParseHeaders_CaseInsensitive(t *testing.T) {
	h := ParseHeaders("content-disposition: form-data; name=\"metadata\"\r\nCONTENT-TYPE: application/json")

	require.NotNil(t, h.Name)
	assert.Equal(t, "metadata", *h.Name)
	assert.Nil(t, h.Filename)
	require.NotNil(t, h.ContentType)
	assert.Equal(t, "application/json", *h.ContentType)
}

func TestParseHeaders_FilenameDoesNotShadowName(t *testing.T) {
	h := ParseHeaders("Content-Disposition: attachment; filename=\"only.png\"")

	assert.Nil(t, h.Name)
	require.NotNil(t, h.Filename)
	assert.Equal(t, "only.png", *h.Filename)
}

func TestParseHeaders_MissingDisposition(t *testing.T) {
	h := ParseHeaders("X-Trace: abc\r\nContent-Type: image/png")

	assert.Nil(t, h.Name)
	assert.Nil(t, h.Filename)
	require.NotNil(t, h.ContentType)
	assert.Equal(t, "image/png", *h.ContentType)
}

func TestParseHeaders_Empty(t *testing.T) {
	h := ParseHeaders("")
	assert.Equal(t, Headers{}, h)
}
