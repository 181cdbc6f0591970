package eventbus

import "time"

// Topics published by the gateway.
const (
	EventScanCompleted  = "scan:completed"
	EventScanFailed     = "scan:failed"
	EventScanSuperseded = "scan:superseded"
	EventResultReleased = "result:released"
	EventFeedbackSaved  = "feedback:saved"
	EventSystemError    = "system:error"
)

// Topics lists every topic the default handlers subscribe to.
var Topics = []string{
	EventScanCompleted,
	EventScanFailed,
	EventScanSuperseded,
	EventResultReleased,
	EventFeedbackSaved,
	EventSystemError,
}

// Event is the envelope carried on every topic. Payload holds one of the
// *Data types below.
type Event struct {
	Topic    string    `json:"topic"`
	ClientID string    `json:"client_id,omitempty"`
	ScanID   string    `json:"scan_id,omitempty"`
	Payload  any       `json:"payload,omitempty"`
	At       time.Time `json:"at"`
}

// NewEvent stamps an envelope with the current time.
func NewEvent(topic, clientID, scanID string, payload any) Event {
	return Event{
		Topic:    topic,
		ClientID: clientID,
		ScanID:   scanID,
		Payload:  payload,
		At:       time.Now(),
	}
}

type ScanCompletedData struct {
	Status       string `json:"status"`
	TotalObjects int    `json:"total_objects"`
	Results      int    `json:"results"`
	Images       int    `json:"images"`
	DurationMs   int64  `json:"duration_ms"`
}

type ScanFailedData struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

type ScanSupersededData struct {
	Generation uint64 `json:"generation"`
}

type ResultReleasedData struct {
	Reason   string `json:"reason"`
	Released int    `json:"released"`
}

type FeedbackSavedData struct {
	ResultID string `json:"result_id"`
	Label    string `json:"label"`
	URL      string `json:"url"`
}

type SystemEventData struct {
	Level   string `json:"level"` // error, warn, info
	Message string `json:"message"`
}
