package blob

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sortvision-gateway/internal/platform/errors"
)

func TestMemoryRegistry_RegisterLookupRelease(t *testing.T) {
	reg := NewMemoryRegistry("/api/blobs/")

	h, err := reg.Register([]byte("abc"), "image/png", "a.png")
	require.NoError(t, err)
	assert.NotEmpty(t, h.ID)
	assert.Equal(t, "/api/blobs/"+h.ID, h.URL)

	e, ok := reg.Lookup(h.ID)
	require.True(t, ok)
	assert.Equal(t, "image/png", e.ContentType)
	assert.Equal(t, "a.png", e.Filename)
	assert.Equal(t, []byte("abc"), e.Data)

	assert.Equal(t, Stats{Live: 1, LiveBytes: 3, Registered: 1}, reg.Stats())

	assert.True(t, reg.Release(h.ID))
	assert.False(t, reg.Release(h.ID))
	_, ok = reg.Lookup(h.ID)
	assert.False(t, ok)
	assert.Equal(t, Stats{Registered: 1, Released: 1}, reg.Stats())
}

func TestMemoryRegistry_DefaultBasePath(t *testing.T) {
	reg := NewMemoryRegistry("")
	assert.Equal(t, DefaultBasePath, reg.BasePath())
}

func TestMemoryRegistry_Capacity(t *testing.T) {
	reg := NewMemoryRegistry("/b", WithMaxLiveBytes(4))

	h, err := reg.Register([]byte("abc"), "image/png", "a.png")
	require.NoError(t, err)

	_, err = reg.Register([]byte("de"), "image/png", "b.png")
	require.ErrorIs(t, err, ErrCapacity)

	reg.Release(h.ID)
	_, err = reg.Register([]byte("de"), "image/png", "b.png")
	require.NoError(t, err)
}

func TestBlob_ReleaseIsIdempotent(t *testing.T) {
	reg := NewMemoryRegistry("/b")
	src := []byte("payload")

	b, err := New(reg, src, "image/webp", "file_0.webp")
	require.NoError(t, err)

	src[0] = 'X'
	assert.Equal(t, []byte("payload"), b.Data(), "blob keeps its own copy")

	h, ok := b.Handle()
	require.True(t, ok)
	_, live := reg.Lookup(h.ID)
	assert.True(t, live)

	exp, err := b.Export()
	require.NoError(t, err)
	assert.Equal(t, "file_0.webp", exp.Filename)
	assert.Equal(t, "image/webp", exp.ContentType)

	assert.True(t, b.Release())
	assert.False(t, b.Release())
	assert.True(t, b.Released())

	_, ok = b.Handle()
	assert.False(t, ok)
	assert.Nil(t, b.Data())
	_, live = reg.Lookup(h.ID)
	assert.False(t, live)

	_, err = b.Export()
	assert.True(t, errors.IsKind(err, errors.KindDomain))
	assert.Equal(t, uint64(1), reg.Stats().Released)
}

func TestBlob_ConcurrentRelease(t *testing.T) {
	reg := NewMemoryRegistry("/b")
	b, err := New(reg, []byte("x"), "image/png", "x.png")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wins := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- b.Release()
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for w := range wins {
		if w {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, uint64(1), reg.Stats().Released)
}

func TestNew_RegistryFailure(t *testing.T) {
	reg := NewMemoryRegistry("/b", WithMaxLiveBytes(1))
	b, err := New(reg, []byte("too big"), "image/png", "x.png")
	assert.Nil(t, b)
	require.ErrorIs(t, err, ErrCapacity)
	assert.Equal(t, 0, reg.Stats().Live)
}
