package eventbus

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureHandler struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureHandler) Handle(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureHandler) topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Topic
	}
	return out
}

func TestAsyncEventBus_PublishAsync(t *testing.T) {
	bus := NewAsyncEventBus(2)
	bus.Start()
	defer bus.Stop()

	var count int32
	require.NoError(t, bus.Subscribe(EventScanCompleted, func(Event) {
		atomic.AddInt32(&count, 1)
	}))

	for i := 0; i < 10; i++ {
		assert.True(t, bus.PublishAsync(EventScanCompleted, NewEvent(EventScanCompleted, "c", "s", nil)))
	}
	bus.WaitAsync()
	assert.Equal(t, int32(10), atomic.LoadInt32(&count))
}

func TestAsyncEventBus_PanicDoesNotKillWorker(t *testing.T) {
	bus := NewAsyncEventBus(1)
	bus.Start()
	defer bus.Stop()

	var delivered int32
	require.NoError(t, bus.Subscribe(EventScanFailed, func(e Event) {
		if e.ScanID == "boom" {
			panic("handler failure")
		}
		atomic.AddInt32(&delivered, 1)
	}))

	bus.PublishAsync(EventScanFailed, NewEvent(EventScanFailed, "c", "boom", nil))
	bus.PublishAsync(EventScanFailed, NewEvent(EventScanFailed, "c", "ok", nil))
	bus.WaitAsync()
	assert.Equal(t, int32(1), atomic.LoadInt32(&delivered))
}

func TestAsyncEventBus_StoppedDropsEvents(t *testing.T) {
	bus := NewAsyncEventBus(1)
	bus.Start()
	bus.Stop()
	bus.Stop()

	assert.False(t, bus.PublishAsync(EventScanCompleted, NewEvent(EventScanCompleted, "c", "s", nil)))
}

func TestSetupEventHandlers(t *testing.T) {
	bus := NewAsyncEventBus(1)
	bus.Start()
	defer bus.Stop()

	capture := &captureHandler{}
	unsubscribe, err := SetupEventHandlers(bus, capture, NewLogHandler(nil))
	require.NoError(t, err)

	bus.Publish(EventScanCompleted, NewEvent(EventScanCompleted, "alice", "scan-1", ScanCompletedData{Results: 2}))
	bus.Publish(EventResultReleased, NewEvent(EventResultReleased, "alice", "scan-1", ResultReleasedData{Reason: "replaced", Released: 2}))
	bus.Publish(EventFeedbackSaved, NewEvent(EventFeedbackSaved, "alice", "", FeedbackSavedData{Label: "bio"}))

	assert.Equal(t, []string{EventScanCompleted, EventResultReleased, EventFeedbackSaved}, capture.topics())

	unsubscribe()
	for _, topic := range Topics {
		assert.False(t, bus.HasCallback(topic), topic)
	}
}

func TestLogHandler_NilLogger(t *testing.T) {
	h := NewLogHandler(nil)
	assert.NotPanics(t, func() {
		h.Handle(NewEvent(EventScanFailed, "c", "", ScanFailedData{Kind: "transport", Error: "down"}))
		h.Handle(NewEvent(EventSystemError, "", "", SystemEventData{Level: "error", Message: "x"}))
		h.Handle(NewEvent("unknown", "", "", nil))
	})
}
