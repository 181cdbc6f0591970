package blob

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sortvision-gateway/internal/platform/errors"
	"sortvision-gateway/internal/utils"
)

// DefaultBasePath prefixes handle URLs when no base path is configured.
const DefaultBasePath = "/api/blobs"

// ErrCapacity is returned by Register when the live byte budget is exhausted.
var ErrCapacity = errors.New(errors.KindPlatform, "blob.register", "blob registry capacity exceeded")

// Handle is the addressable reference a renderer uses to fetch blob bytes.
type Handle struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Entry is a live registration.
type Entry struct {
	ID          string
	ContentType string
	Filename    string
	Data        []byte
	CreatedAt   time.Time
}

type Stats struct {
	Live       int    `json:"live"`
	LiveBytes  int64  `json:"live_bytes"`
	Registered uint64 `json:"registered"`
	Released   uint64 `json:"released"`
}

// Registry owns display handles for in-memory blobs.
type Registry interface {
	Register(data []byte, contentType, filename string) (Handle, error)
	Lookup(id string) (*Entry, bool)
	Release(id string) bool
	Stats() Stats
}

// MemoryRegistry keeps entries in a map keyed by uuid.
type MemoryRegistry struct {
	mu           sync.RWMutex
	basePath     string
	maxLiveBytes int64
	entries      map[string]*Entry
	stats        Stats
	logger       *utils.Logger
}

type Option func(*MemoryRegistry)

// WithMaxLiveBytes caps the total size of live entries. Zero means unlimited.
func WithMaxLiveBytes(n int64) Option {
	return func(r *MemoryRegistry) {
		r.maxLiveBytes = n
	}
}

func WithLogger(logger *utils.Logger) Option {
	return func(r *MemoryRegistry) {
		r.logger = logger
	}
}

func NewMemoryRegistry(basePath string, opts ...Option) *MemoryRegistry {
	basePath = strings.TrimRight(basePath, "/")
	if basePath == "" {
		basePath = DefaultBasePath
	}
	r := &MemoryRegistry{
		basePath: basePath,
		entries:  make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *MemoryRegistry) Register(data []byte, contentType, filename string) (Handle, error) {
	size := int64(len(data))

	r.mu.Lock()
	if r.maxLiveBytes > 0 && r.stats.LiveBytes+size > r.maxLiveBytes {
		live := r.stats.LiveBytes
		r.mu.Unlock()
		r.logger.WarnTag("BLOB", "registry full: live=%d incoming=%d max=%d", live, size, r.maxLiveBytes)
		return Handle{}, ErrCapacity
	}

	id := uuid.NewString()
	r.entries[id] = &Entry{
		ID:          id,
		ContentType: contentType,
		Filename:    filename,
		Data:        data,
		CreatedAt:   time.Now(),
	}
	r.stats.Live++
	r.stats.LiveBytes += size
	r.stats.Registered++
	r.mu.Unlock()

	r.logger.DebugTag("BLOB", "registered %s (%s, %d bytes)", id, contentType, size)
	return Handle{ID: id, URL: r.basePath + "/" + id}, nil
}

func (r *MemoryRegistry) Lookup(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Release drops the entry. It reports false when id is unknown or already released.
func (r *MemoryRegistry) Release(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
		r.stats.Live--
		r.stats.LiveBytes -= int64(len(e.Data))
		r.stats.Released++
	}
	r.mu.Unlock()

	if ok {
		r.logger.DebugTag("BLOB", "released %s", id)
	}
	return ok
}

func (r *MemoryRegistry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// BasePath is the URL prefix of every handle.
func (r *MemoryRegistry) BasePath() string {
	return r.basePath
}
