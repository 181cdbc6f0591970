package eventbus

import (
	"context"
	"time"

	"sortvision-gateway/internal/domain/eventbus/repository"
	"sortvision-gateway/internal/utils"
)

// EventHandler reacts to one event.
type EventHandler interface {
	Handle(event Event)
}

// LogHandler writes every event to the application log.
type LogHandler struct {
	logger *utils.Logger
}

func NewLogHandler(logger *utils.Logger) *LogHandler {
	return &LogHandler{logger: logger}
}

func (h *LogHandler) Handle(event Event) {
	switch data := event.Payload.(type) {
	case ScanCompletedData:
		h.logger.InfoTag("EVENT", "scan %s for %s completed: %d results, %d images in %dms",
			event.ScanID, event.ClientID, data.Results, data.Images, data.DurationMs)
	case ScanFailedData:
		h.logger.WarnTag("EVENT", "scan for %s failed (%s): %s", event.ClientID, data.Kind, data.Error)
	case ScanSupersededData:
		h.logger.InfoTag("EVENT", "scan %s for %s superseded at generation %d", event.ScanID, event.ClientID, data.Generation)
	case ResultReleasedData:
		h.logger.DebugTag("EVENT", "scan %s for %s released %d images (%s)", event.ScanID, event.ClientID, data.Released, data.Reason)
	case FeedbackSavedData:
		h.logger.InfoTag("EVENT", "feedback %q for result %s saved to %s", data.Label, data.ResultID, data.URL)
	case SystemEventData:
		h.logger.ErrorTag("EVENT", "%s: %s", data.Level, data.Message)
	default:
		h.logger.DebugTag("EVENT", "unhandled event %s", event.Topic)
	}
}

// Recorder persists events through an EventRepository.
type Recorder struct {
	repo    repository.EventRepository
	logger  *utils.Logger
	timeout time.Duration
}

func NewRecorder(repo repository.EventRepository, logger *utils.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger, timeout: 5 * time.Second}
}

func (r *Recorder) Handle(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	err := r.repo.Store(ctx, repository.Event{
		EventType: event.Topic,
		ScanID:    event.ScanID,
		ClientID:  event.ClientID,
		Data:      event.Payload,
		CreatedAt: event.At,
	})
	if err != nil {
		r.logger.WarnTag("EVENT", "failed to record %s: %v", event.Topic, err)
	}
}

// SetupEventHandlers subscribes each handler to every topic in Topics.
// The returned func unsubscribes them again.
func SetupEventHandlers(bus Subscriber, handlers ...EventHandler) (func(), error) {
	type sub struct {
		topic string
		fn    func(Event)
	}
	var subs []sub
	unsubscribe := func() {
		for _, s := range subs {
			_ = bus.Unsubscribe(s.topic, s.fn)
		}
	}

	for _, h := range handlers {
		handle := h.Handle
		for _, topic := range Topics {
			fn := func(event Event) { handle(event) }
			if err := bus.Subscribe(topic, fn); err != nil {
				unsubscribe()
				return nil, err
			}
			subs = append(subs, sub{topic: topic, fn: fn})
		}
	}
	return unsubscribe, nil
}
