package eventbus

import (
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"

	"sortvision-gateway/internal/utils"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 1000
)

// AsyncEventBus wraps a synchronous bus with a worker pool for fire-and-forget publishing.
type AsyncEventBus struct {
	bus       evbus.Bus
	workerNum int
	workChan  chan asyncEvent
	stopChan  chan struct{}
	wg        sync.WaitGroup
	pending   sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	logger    *utils.Logger
}

type asyncEvent struct {
	topic string
	args  []interface{}
}

// NewAsyncEventBus creates a bus; call Start before PublishAsync.
func NewAsyncEventBus(workerNum int) *AsyncEventBus {
	if workerNum <= 0 {
		workerNum = defaultWorkers
	}

	return &AsyncEventBus{
		bus:       evbus.New(),
		workerNum: workerNum,
		workChan:  make(chan asyncEvent, defaultQueueSize),
		stopChan:  make(chan struct{}),
	}
}

// WithLogger sets the logger used for dropped events and handler panics.
func (aeb *AsyncEventBus) WithLogger(logger *utils.Logger) *AsyncEventBus {
	aeb.logger = logger
	return aeb
}

// Start launches the workers. Calling it twice is a no-op.
func (aeb *AsyncEventBus) Start() {
	aeb.startOnce.Do(func() {
		for i := 0; i < aeb.workerNum; i++ {
			aeb.wg.Add(1)
			go aeb.worker()
		}
	})
}

// Stop waits for queued events to drain, then stops the workers.
func (aeb *AsyncEventBus) Stop() {
	aeb.stopOnce.Do(func() {
		aeb.pending.Wait()
		close(aeb.stopChan)
		aeb.wg.Wait()
	})
}

func (aeb *AsyncEventBus) worker() {
	defer aeb.wg.Done()

	for {
		select {
		case <-aeb.stopChan:
			return
		case event := <-aeb.workChan:
			aeb.dispatch(event)
		}
	}
}

func (aeb *AsyncEventBus) dispatch(event asyncEvent) {
	defer aeb.pending.Done()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			aeb.logger.ErrorTag("EVENT", "handler for %s panicked: %v", event.topic, r)
		}
	}()
	aeb.bus.Publish(event.topic, event.args...)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		aeb.logger.WarnTag("EVENT", "handlers for %s took %s", event.topic, elapsed)
	}
}

// Publish delivers to subscribers on the caller's goroutine.
func (aeb *AsyncEventBus) Publish(topic string, args ...interface{}) {
	aeb.bus.Publish(topic, args...)
}

// PublishAsync queues the event. When the queue is full or the bus is
// stopped the event is dropped and false is returned.
func (aeb *AsyncEventBus) PublishAsync(topic string, args ...interface{}) bool {
	select {
	case <-aeb.stopChan:
		return false
	default:
	}

	aeb.pending.Add(1)
	select {
	case aeb.workChan <- asyncEvent{topic: topic, args: args}:
		return true
	default:
		aeb.pending.Done()
		aeb.logger.WarnTag("EVENT", "queue full, dropped %s", topic)
		return false
	}
}

func (aeb *AsyncEventBus) Subscribe(topic string, fn interface{}) error {
	return aeb.bus.Subscribe(topic, fn)
}

// SubscribeAsync registers fn on the same bus; delivery is asynchronous only
// for events sent with PublishAsync.
func (aeb *AsyncEventBus) SubscribeAsync(topic string, fn interface{}) error {
	return aeb.bus.Subscribe(topic, fn)
}

func (aeb *AsyncEventBus) Unsubscribe(topic string, handler interface{}) error {
	return aeb.bus.Unsubscribe(topic, handler)
}

func (aeb *AsyncEventBus) HasCallback(topic string) bool {
	return aeb.bus.HasCallback(topic)
}

// WaitAsync blocks until every queued event has been dispatched.
func (aeb *AsyncEventBus) WaitAsync() {
	aeb.pending.Wait()
}
