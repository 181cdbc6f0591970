package image

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"sortvision-gateway/internal/platform/config"
	"sortvision-gateway/internal/platform/errors"
	"sortvision-gateway/internal/platform/observability"
	"sortvision-gateway/internal/utils"
)

const defaultMaxFileSize = 16 * 1024 * 1024

// Pipeline reads an upload with a size cap and validates it into a Capture.
type Pipeline struct {
	validator *SecurityValidator
	logger    *utils.Logger
	capture   *config.CaptureConfig

	processed atomic.Int64
	failed    atomic.Int64
	incidents atomic.Int64
}

type Options struct {
	Capture *config.CaptureConfig
	Logger  *utils.Logger
}

// Input is an upload as received from the client.
type Input struct {
	Reader      io.Reader
	Filename    string
	ContentType string
	ToggleFlag  *bool
}

func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Capture == nil {
		return nil, fmt.Errorf("capture config is required")
	}
	if opts.Logger == nil {
		opts.Logger = utils.DefaultLogger
	}
	return &Pipeline{
		validator: NewSecurityValidator(opts.Capture, opts.Logger),
		logger:    opts.Logger,
		capture:   opts.Capture,
	}, nil
}

// Process reads the whole input and validates it. Failures are KindVision errors.
func (p *Pipeline) Process(ctx context.Context, input Input) (*Capture, error) {
	const op = "image.process"

	if input.Reader == nil {
		return nil, errors.New(errors.KindVision, op, "image reader is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.processed.Add(1)

	maxSize := p.capture.MaxFileSize
	if maxSize <= 0 {
		maxSize = defaultMaxFileSize
	}
	limited := &io.LimitedReader{R: input.Reader, N: maxSize + 1}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, limited); err != nil {
		p.failed.Add(1)
		return nil, errors.Wrap(errors.KindVision, op, "read upload", err)
	}
	if limited.N <= 0 {
		p.failed.Add(1)
		return nil, errors.Newf(errors.KindVision, op, "image exceeds maximum size of %d bytes", maxSize)
	}

	declared := DeclaredFormat(input.ContentType, input.Filename)
	validation := p.validator.ValidateBytes(buf.Bytes(), declared)
	if !validation.IsValid {
		p.failed.Add(1)
		if validation.SecurityRisk == "suspicious content" {
			p.incidents.Add(1)
		}
		observability.RecordMetric(ctx, "capture.rejected", 1, map[string]string{"risk": validation.SecurityRisk})
		cause := validation.Error
		if cause == nil {
			cause = fmt.Errorf("image validation failed")
		}
		return nil, errors.Wrap(errors.KindVision, op, "invalid capture", cause)
	}

	contentType := input.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = ContentTypeFor(validation.Format)
	}
	filename := input.Filename
	if filename == "" {
		filename = "image." + validation.Format
	}

	return &Capture{
		Data:        buf.Bytes(),
		Filename:    filename,
		ContentType: contentType,
		Format:      validation.Format,
		Width:       validation.Width,
		Height:      validation.Height,
		ToggleFlag:  input.ToggleFlag,
	}, nil
}

// Metrics returns counters since start.
func (p *Pipeline) Metrics() Metrics {
	return Metrics{
		TotalProcessed:    p.processed.Load(),
		FailedValidations: p.failed.Load(),
		SecurityIncidents: p.incidents.Load(),
	}
}
