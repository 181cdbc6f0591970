package recognizer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"sortvision-gateway/internal/domain/image"
	"sortvision-gateway/internal/domain/recognition"
	"sortvision-gateway/internal/platform/config"
	"sortvision-gateway/internal/platform/errors"
	"sortvision-gateway/internal/platform/observability"
	"sortvision-gateway/internal/utils"
)

const (
	recognizePath = "/recognize"
	healthPath    = "/health"

	defaultTimeout  = 60 * time.Second
	defaultMaxBytes = 64 << 20
	defaultFilename = "image.webp"
)

// Client talks to the upstream recognizer over HTTP.
type Client struct {
	baseURL    string
	maxBytes   int64
	httpClient *http.Client
	logger     *utils.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(logger *utils.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient builds a client from the recognizer config section.
func NewClient(cfg config.RecognizerConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxBytes:   maxBytes,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured recognizer root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Recognize posts the capture as multipart/form-data. Any HTTP reply is
// returned as a RawResponse; status interpretation is left to the decoder.
func (c *Client) Recognize(ctx context.Context, capture *image.Capture) (raw recognition.RawResponse, err error) {
	const op = "recognizer.recognize"
	if capture == nil || len(capture.Data) == 0 {
		return recognition.RawResponse{}, errors.New(errors.KindDomain, op, "empty capture")
	}

	ctx, end := observability.StartSpan(ctx, "recognizer", "recognize")
	defer func() { end(err) }()

	body, contentType, err := encodeCapture(capture)
	if err != nil {
		return recognition.RawResponse{}, errors.Wrap(errors.KindTransport, op, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+recognizePath, body)
	if err != nil {
		return recognition.RawResponse{}, errors.Wrap(errors.KindTransport, op, "build request", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnTag("RECOGNIZER", "request failed: %v", err)
		return recognition.RawResponse{}, errors.Wrap(errors.KindTransport, op, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := readBounded(resp.Body, c.maxBytes)
	if err != nil {
		return recognition.RawResponse{}, errors.Wrap(errors.KindTransport, op, "read response", err)
	}

	elapsed := time.Since(start)
	labels := map[string]string{"status": strconv.Itoa(resp.StatusCode)}
	observability.RecordMetric(ctx, "recognizer.requests", 1, labels)
	observability.RecordMetric(ctx, "recognizer.latency_ms", float64(elapsed.Milliseconds()), labels)
	c.logger.DebugTag("RECOGNIZER", "status %d, %d bytes in %s", resp.StatusCode, len(data), elapsed)

	return recognition.RawResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}

// Health GETs the recognizer health endpoint and fails on any non-2xx reply.
func (c *Client) Health(ctx context.Context) error {
	const op = "recognizer.health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return errors.Wrap(errors.KindTransport, op, "build request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.KindTransport, op, "request failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Newf(errors.KindTransport, op, "recognizer unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func encodeCapture(capture *image.Capture) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := capture.Filename
	if filename == "" {
		filename = defaultFilename
	}
	ct := capture.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(capture.Data); err != nil {
		return nil, "", err
	}

	if capture.ToggleFlag != nil {
		if err := w.WriteField("toggle_flag", strconv.FormatBool(*capture.ToggleFlag)); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func readBounded(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("response exceeds %d bytes", max)
	}
	return data, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
