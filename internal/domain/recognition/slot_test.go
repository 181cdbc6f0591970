package recognition

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sortvision-gateway/internal/domain/blob"
)

// countingRegistry records how often each handle id is released.
type countingRegistry struct {
	*blob.MemoryRegistry
	mu       sync.Mutex
	releases map[string]int
}

func newCountingRegistry() *countingRegistry {
	return &countingRegistry{
		MemoryRegistry: blob.NewMemoryRegistry("/b"),
		releases:       make(map[string]int),
	}
}

func (r *countingRegistry) Release(id string) bool {
	r.mu.Lock()
	r.releases[id]++
	r.mu.Unlock()
	return r.MemoryRegistry.Release(id)
}

func (r *countingRegistry) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releases[id]
}

func decodeWithImages(t *testing.T, reg blob.Registry, records, images int) *Response {
	t.Helper()
	meta := fmt.Sprintf(`{"status":"ok","total_objects":%d,"results":[`, records)
	parts := []testPart{}
	for i := 0; i < records; i++ {
		if i > 0 {
			meta += ","
		}
		meta += fmt.Sprintf(`{"id":%d,"file_index":%d}`, i+1, i)
		if i < images {
			parts = append(parts, filePart(i, "image/png", fmt.Sprintf("img-%d", i)))
		}
	}
	meta += "]}"
	parts = append([]testPart{metadataPart(meta)}, parts...)

	resp, err := NewDecoder(reg).Decode(context.Background(), rawResponse("S", parts...))
	require.NoError(t, err)
	return resp
}

func imageIDs(resp *Response) []string {
	var ids []string
	for _, r := range resp.Results {
		if r.HasImage() {
			ids = append(ids, r.Image().ID())
		}
	}
	return ids
}

func TestSlot_ReplaceReleasesExactlyPreviousBlobs(t *testing.T) {
	reg := newCountingRegistry()
	slot := NewSlot(nil)

	first := decodeWithImages(t, reg, 3, 2)
	assert.Nil(t, slot.Replace(first))

	second := decodeWithImages(t, reg, 2, 2)
	old := slot.Replace(second)
	require.Same(t, first, old)

	for _, id := range imageIDs(first) {
		assert.Equal(t, 1, reg.count(id), "previous blob %s released once", id)
	}
	for _, id := range imageIDs(second) {
		assert.Equal(t, 0, reg.count(id), "new blob %s untouched", id)
	}
	assert.Equal(t, uint64(2), reg.Stats().Released)
	assert.Same(t, second, slot.Current())

	// releasing again through the response must not double count
	first.Release()
	for _, id := range imageIDs(first) {
		assert.Equal(t, 1, reg.count(id))
	}
}

func TestSlot_InstallLastSettledWins(t *testing.T) {
	reg := newCountingRegistry()
	var events []ReleaseEvent
	slot := NewSlot(func(_ *Response, ev ReleaseEvent) {
		events = append(events, ev)
	})

	older := slot.Begin()
	newer := slot.Begin()

	newResp := decodeWithImages(t, reg, 1, 1)
	oldResp := decodeWithImages(t, reg, 1, 1)

	assert.True(t, slot.Install(newer, newResp))
	assert.False(t, slot.Install(older, oldResp), "older decode settled late")

	assert.Same(t, newResp, slot.Current())
	assert.True(t, oldResp.Released())
	assert.False(t, newResp.Released())
	assert.Equal(t, []ReleaseEvent{{Reason: ReleaseStale, Generation: older.Generation(), Images: 1}}, events)
}

func TestSlot_InstallInOrderReplaces(t *testing.T) {
	reg := newCountingRegistry()
	slot := NewSlot(nil)

	t1 := slot.Begin()
	t2 := slot.Begin()
	r1 := decodeWithImages(t, reg, 2, 2)
	r2 := decodeWithImages(t, reg, 1, 1)

	assert.True(t, slot.Install(t1, r1))
	assert.True(t, slot.Install(t2, r2))
	assert.True(t, r1.Released())
	assert.Same(t, r2, slot.Current())
	assert.Equal(t, 1, reg.Stats().Live)
}

func TestSlot_ClearAndNil(t *testing.T) {
	reg := newCountingRegistry()
	slot := NewSlot(nil)

	assert.False(t, slot.Clear())
	assert.False(t, slot.Install(slot.Begin(), nil))

	resp := decodeWithImages(t, reg, 1, 1)
	slot.Replace(resp)
	assert.True(t, slot.Clear())
	assert.Nil(t, slot.Current())
	assert.True(t, resp.Released())
	assert.Equal(t, 0, reg.Stats().Live)
}

func TestSlot_ConcurrentInstallsLeaveOnlyNewestLive(t *testing.T) {
	reg := newCountingRegistry()
	slot := NewSlot(nil)

	const n = 20
	tickets := make([]Ticket, n)
	responses := make([]*Response, n)
	for i := 0; i < n; i++ {
		tickets[i] = slot.Begin()
		responses[i] = decodeWithImages(t, reg, 1, 1)
	}

	var wg sync.WaitGroup
	for i := n - 1; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			slot.Install(tickets[i], responses[i])
		}(i)
	}
	wg.Wait()

	assert.Same(t, responses[n-1], slot.Current())
	assert.Equal(t, 1, reg.Stats().Live)
	for i := 0; i < n-1; i++ {
		for _, id := range imageIDs(responses[i]) {
			assert.Equal(t, 1, reg.count(id))
		}
	}
}

func TestSessionSlots(t *testing.T) {
	reg := newCountingRegistry()
	var (
		mu      sync.Mutex
		cleared []string
	)
	slots := NewSessionSlots(func(clientID string, _ *Response, ev ReleaseEvent) {
		mu.Lock()
		defer mu.Unlock()
		if ev.Reason == ReleaseCleared {
			cleared = append(cleared, clientID)
		}
	})

	a := slots.Get("a")
	assert.Same(t, a, slots.Get("a"))
	_, ok := slots.Lookup("b")
	assert.False(t, ok)

	a.Replace(decodeWithImages(t, reg, 1, 1))
	slots.Get("b").Replace(decodeWithImages(t, reg, 3, 3))
	slots.Get("c")

	assert.Equal(t, []string{"a", "b", "c"}, slots.Clients())
	assert.Equal(t, 4, slots.ReleaseAll(), "images across every slot")
	assert.Equal(t, 0, reg.Stats().Live)
	assert.ElementsMatch(t, []string{"a", "b"}, cleared)
}

func TestSlot_DrainCountsImages(t *testing.T) {
	reg := newCountingRegistry()
	slot := NewSlot(nil)
	assert.Equal(t, 0, slot.Drain())

	slot.Replace(decodeWithImages(t, reg, 3, 2))
	assert.Equal(t, 2, slot.Drain())
	assert.Nil(t, slot.Current())
	assert.Equal(t, 0, slot.Drain())
}
