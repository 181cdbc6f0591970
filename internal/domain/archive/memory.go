package archive

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryStore struct {
	items       map[string]ScanRecord
	mutex       sync.RWMutex
	ttl         time.Duration
	cleanupFreq time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewMemory builds an in-memory store with a background expiry loop.
func NewMemory(cfg Config) Store {
	cleanup := cfg.Cleanup
	if cleanup <= 0 {
		cleanup = 5 * time.Minute
	}
	s := &memoryStore{
		items:       make(map[string]ScanRecord),
		ttl:         cfg.TTL,
		cleanupFreq: cleanup,
		stop:        make(chan struct{}),
	}
	go s.gcLoop()
	return s
}

func (s *memoryStore) gcLoop() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = s.CleanupExpired(context.Background())
		case <-s.stop:
			return
		}
	}
}

func (s *memoryStore) Store(_ context.Context, rec ScanRecord) error {
	if err := validateRecord("archive.memory.store", rec); err != nil {
		return err
	}
	rec = prepare(rec, s.ttl)

	s.mutex.Lock()
	s.items[rec.ScanID] = rec
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Get(_ context.Context, scanID string) (ScanRecord, error) {
	s.mutex.RLock()
	rec, ok := s.items[scanID]
	s.mutex.RUnlock()
	if !ok || expired(rec, time.Now()) {
		return ScanRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *memoryStore) ListByClient(_ context.Context, clientID string, limit int) ([]ScanRecord, error) {
	now := time.Now()
	s.mutex.RLock()
	out := make([]ScanRecord, 0)
	for _, rec := range s.items {
		if rec.ClientID == clientID && !expired(rec, now) {
			out = append(out, rec)
		}
	}
	s.mutex.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) CleanupExpired(context.Context) error {
	now := time.Now()
	s.mutex.Lock()
	for id, rec := range s.items {
		if expired(rec, now) {
			delete(s.items, id)
		}
	}
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Stats(context.Context) (map[string]any, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	clients := make(map[string]struct{})
	for _, rec := range s.items {
		clients[rec.ClientID] = struct{}{}
	}
	return map[string]any{
		"type":    DriverMemory,
		"total":   len(s.items),
		"clients": len(clients),
		"ttl":     int(s.ttl.Seconds()),
	}, nil
}

func (s *memoryStore) Close(context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	return nil
}
