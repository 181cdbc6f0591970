package services

import (
	"context"
	"fmt"
	"time"

	"sortvision-gateway/internal/domain/archive"
	"sortvision-gateway/internal/domain/eventbus"
	"sortvision-gateway/internal/domain/feedback"
	"sortvision-gateway/internal/domain/image"
	"sortvision-gateway/internal/domain/recognition"
	"sortvision-gateway/internal/platform/errors"
	"sortvision-gateway/internal/platform/observability"
	"sortvision-gateway/internal/utils"
)

// ErrSuperseded is returned by Scan when a newer scan of the same client
// settled first. The late response has already been released.
var ErrSuperseded = errors.New(errors.KindDomain, "scan.install", "scan superseded by a newer one")

const defaultHistoryLimit = 20

// Recognizer sends a capture upstream.
type Recognizer interface {
	Recognize(ctx context.Context, capture *image.Capture) (recognition.RawResponse, error)
	Health(ctx context.Context) error
}

// CaptureValidator turns a raw upload into a validated capture.
type CaptureValidator interface {
	Process(ctx context.Context, input image.Input) (*image.Capture, error)
}

// FeedbackSink stores raw uploads and labelled corrections.
type FeedbackSink interface {
	Save(ctx context.Context, filename string, data []byte) (string, error)
	Submit(ctx context.Context, sub feedback.Submission) (*feedback.Receipt, error)
}

// ScanServiceConfig wires a ScanService. Archive, Feedback and Events are optional.
type ScanServiceConfig struct {
	Validator    CaptureValidator
	Recognizer   Recognizer
	Decoder      *recognition.Decoder
	Archive      archive.Store
	Feedback     FeedbackSink
	Events       eventbus.Publisher
	Logger       *utils.Logger
	HistoryLimit int
}

// ScanOutcome is what a successful scan produced.
type ScanOutcome struct {
	Response  *recognition.Response
	Capture   *image.Capture
	UploadURL string
	Duration  time.Duration
}

// ScanService runs the capture → recognize → decode → install flow and owns
// the per-client current-result slots.
type ScanService struct {
	validator    CaptureValidator
	recognizer   Recognizer
	decoder      *recognition.Decoder
	archive      archive.Store
	feedback     FeedbackSink
	events       eventbus.Publisher
	logger       *utils.Logger
	historyLimit int

	slots *recognition.SessionSlots
}

func NewScanService(cfg ScanServiceConfig) (*ScanService, error) {
	if cfg.Validator == nil || cfg.Recognizer == nil || cfg.Decoder == nil {
		return nil, errors.New(errors.KindBootstrap, "scan.new", "validator, recognizer and decoder are required")
	}
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	s := &ScanService{
		validator:    cfg.Validator,
		recognizer:   cfg.Recognizer,
		decoder:      cfg.Decoder,
		archive:      cfg.Archive,
		feedback:     cfg.Feedback,
		events:       cfg.Events,
		logger:       cfg.Logger,
		historyLimit: limit,
	}
	s.slots = recognition.NewSessionSlots(s.onRelease)
	return s, nil
}

// Scan validates the upload, sends it to the recognizer and installs the
// decoded response as the client's current result.
func (s *ScanService) Scan(ctx context.Context, clientID string, input image.Input) (*ScanOutcome, error) {
	start := time.Now()
	outcome, err := s.scan(ctx, clientID, input, start)
	if err != nil && err != ErrSuperseded {
		s.publish(eventbus.EventScanFailed, clientID, "", eventbus.ScanFailedData{
			Kind:  string(errors.KindOf(err)),
			Error: err.Error(),
		})
		observability.RecordMetric(ctx, "scan.failed", 1, map[string]string{"kind": string(errors.KindOf(err))})
	}
	return outcome, err
}

func (s *ScanService) scan(ctx context.Context, clientID string, input image.Input, start time.Time) (*ScanOutcome, error) {
	capture, err := s.validator.Process(ctx, input)
	if err != nil {
		return nil, err
	}

	slot := s.slots.Get(clientID)
	ticket := slot.Begin()

	raw, err := s.recognizer.Recognize(ctx, capture)
	if err != nil {
		return nil, err
	}
	resp, err := s.decoder.Decode(ctx, raw)
	if err != nil {
		s.logger.WarnTag("SCAN", "decode failed for %s: %v", clientID, err)
		return nil, err
	}

	if !slot.Install(ticket, resp) {
		s.logger.InfoTag("SCAN", "scan %s for %s superseded", resp.ScanID, clientID)
		return nil, ErrSuperseded
	}

	outcome := &ScanOutcome{
		Response: resp,
		Capture:  capture,
	}
	s.archiveScan(ctx, clientID, resp)
	outcome.UploadURL = s.saveUpload(ctx, capture)
	outcome.Duration = time.Since(start)

	s.publish(eventbus.EventScanCompleted, clientID, resp.ScanID, eventbus.ScanCompletedData{
		Status:       resp.Status,
		TotalObjects: resp.TotalObjects,
		Results:      len(resp.Results),
		Images:       resp.ImageCount(),
		DurationMs:   outcome.Duration.Milliseconds(),
	})
	observability.RecordMetric(ctx, "scan.completed", 1, nil)
	s.logger.InfoTag("SCAN", "scan %s for %s: %d results in %s", resp.ScanID, clientID, len(resp.Results), outcome.Duration)
	return outcome, nil
}

func (s *ScanService) archiveScan(ctx context.Context, clientID string, resp *recognition.Response) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Store(ctx, Summarize(clientID, resp)); err != nil {
		s.logger.WarnTag("ARCHIVE", "failed to archive scan %s: %v", resp.ScanID, err)
	}
}

func (s *ScanService) saveUpload(ctx context.Context, capture *image.Capture) string {
	if s.feedback == nil {
		return ""
	}
	url, err := s.feedback.Save(ctx, capture.Filename, capture.Data)
	if err != nil {
		s.logger.WarnTag("FEEDBACK", "failed to save upload: %v", err)
		return ""
	}
	return url
}

// Current returns the client's installed response.
func (s *ScanService) Current(clientID string) (*recognition.Response, bool) {
	slot, ok := s.slots.Lookup(clientID)
	if !ok {
		return nil, false
	}
	resp := slot.Current()
	return resp, resp != nil
}

// Release clears the client's slot, releasing every image of its current response.
func (s *ScanService) Release(clientID string) bool {
	slot, ok := s.slots.Lookup(clientID)
	if !ok {
		return false
	}
	return slot.Clear()
}

// History lists archived scans of a client, newest first.
func (s *ScanService) History(ctx context.Context, clientID string, limit int) ([]archive.ScanRecord, error) {
	if s.archive == nil {
		return nil, nil
	}
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	return s.archive.ListByClient(ctx, clientID, limit)
}

// Feedback submits the image of one result of the client's current response
// under the operator's label.
func (s *ScanService) Feedback(ctx context.Context, clientID string, resultID int, label string) (*feedback.Receipt, error) {
	const op = "scan.feedback"
	if s.feedback == nil {
		return nil, errors.New(errors.KindDomain, op, "feedback is not configured")
	}
	resp, ok := s.Current(clientID)
	if !ok {
		return nil, errors.New(errors.KindDomain, op, "no current scan")
	}
	result, ok := resp.ResultByID(resultID)
	if !ok {
		return nil, errors.Newf(errors.KindDomain, op, "result %d not found", resultID)
	}
	export, err := result.Download()
	if err != nil {
		return nil, err
	}

	receipt, err := s.feedback.Submit(ctx, feedback.Submission{
		Label:    label,
		Filename: export.Filename,
		Data:     export.Data,
		ResultID: fmt.Sprintf("%s/%d", resp.ScanID, resultID),
		ClientID: clientID,
	})
	if err != nil {
		return receipt, err
	}
	s.publish(eventbus.EventFeedbackSaved, clientID, resp.ScanID, eventbus.FeedbackSavedData{
		ResultID: fmt.Sprint(resultID),
		Label:    label,
		URL:      receipt.URL,
	})
	return receipt, nil
}

// SaveUpload stores a raw upload outside of a scan.
func (s *ScanService) SaveUpload(ctx context.Context, filename string, data []byte) (string, error) {
	if s.feedback == nil {
		return "", errors.New(errors.KindDomain, "scan.save", "uploads are not configured")
	}
	return s.feedback.Save(ctx, filename, data)
}

// RecognizerHealth reports whether the upstream answers its health check.
func (s *ScanService) RecognizerHealth(ctx context.Context) error {
	return s.recognizer.Health(ctx)
}

// Clients lists clients that currently have a slot.
func (s *ScanService) Clients() []string {
	return s.slots.Clients()
}

// Shutdown releases every installed response and returns the number of released images.
func (s *ScanService) Shutdown() int {
	n := s.slots.ReleaseAll()
	s.logger.InfoTag("SCAN", "released %d images on shutdown", n)
	return n
}

// onRelease runs under the slot lock, so it only queues events.
func (s *ScanService) onRelease(clientID string, resp *recognition.Response, ev recognition.ReleaseEvent) {
	if ev.Reason == recognition.ReleaseStale {
		s.publish(eventbus.EventScanSuperseded, clientID, resp.ScanID, eventbus.ScanSupersededData{
			Generation: ev.Generation,
		})
	}
	s.publish(eventbus.EventResultReleased, clientID, resp.ScanID, eventbus.ResultReleasedData{
		Reason:   string(ev.Reason),
		Released: ev.Images,
	})
}

func (s *ScanService) publish(topic, clientID, scanID string, payload any) {
	if s.events == nil {
		return
	}
	s.events.PublishAsync(topic, eventbus.NewEvent(topic, clientID, scanID, payload))
}

// Summarize builds the archived form of a response.
func Summarize(clientID string, resp *recognition.Response) archive.ScanRecord {
	rec := archive.ScanRecord{
		ScanID:       resp.ScanID,
		ClientID:     clientID,
		Status:       resp.Status,
		TotalObjects: resp.TotalObjects,
		Results:      make([]archive.ResultSummary, 0, len(resp.Results)),
		CreatedAt:    resp.DecodedAt,
	}
	for _, r := range resp.Results {
		record := r.Record()
		summary := archive.ResultSummary{
			ID:                  record.ID,
			DetectedClass:       record.DetectedClass,
			ClassifiedAs:        record.ClassifiedAs,
			Verdict:             record.Verdict,
			Confidence:          record.Confidence,
			DetectionConfidence: record.DetectionConfidence,
			BBox:                record.BBox,
			HasImage:            r.HasImage(),
		}
		if r.HasImage() {
			summary.Filename = r.Image().Filename()
		}
		rec.Results = append(rec.Results, summary)
	}
	return rec
}
