package blob

import (
	"bytes"
	"sync"

	"sortvision-gateway/internal/platform/errors"
)

// Export is what a download hands to the client.
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Blob is an image payload with a display handle. Its handle is registered
// once, in New, and becomes invalid after Release.
type Blob struct {
	mu          sync.RWMutex
	registry    Registry
	handle      Handle
	data        []byte
	contentType string
	filename    string
	released    bool
}

// New copies data, registers it and returns the live blob.
func New(registry Registry, data []byte, contentType, filename string) (*Blob, error) {
	if registry == nil {
		return nil, errors.New(errors.KindPlatform, "blob.new", "nil registry")
	}
	owned := bytes.Clone(data)
	if owned == nil {
		owned = []byte{}
	}
	handle, err := registry.Register(owned, contentType, filename)
	if err != nil {
		return nil, errors.Wrap(errors.KindPlatform, "blob.new", "register blob", err)
	}
	return &Blob{
		registry:    registry,
		handle:      handle,
		data:        owned,
		contentType: contentType,
		filename:    filename,
	}, nil
}

func (b *Blob) ContentType() string { return b.contentType }

func (b *Blob) Filename() string { return b.filename }

// Handle returns the display handle, or false once released.
func (b *Blob) Handle() (Handle, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.released {
		return Handle{}, false
	}
	return b.handle, true
}

// ID is the handle id. It stays readable after release for logging.
func (b *Blob) ID() string {
	return b.handle.ID
}

// Data returns the payload, or nil once released.
func (b *Blob) Data() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.data
}

func (b *Blob) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// Export returns the bytes and filename for a download.
func (b *Blob) Export() (Export, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.released {
		return Export{}, errors.Newf(errors.KindDomain, "blob.export", "blob %s already released", b.handle.ID)
	}
	return Export{
		Filename:    b.filename,
		ContentType: b.contentType,
		Data:        b.data,
	}, nil
}

// Release unregisters the handle. Only the first call has an effect; it
// returns true for that call.
func (b *Blob) Release() bool {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return false
	}
	b.released = true
	b.data = nil
	b.mu.Unlock()

	b.registry.Release(b.handle.ID)
	return true
}

func (b *Blob) Released() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.released
}
