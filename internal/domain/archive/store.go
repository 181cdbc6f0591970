package archive

import (
	"context"
	"time"

	"sortvision-gateway/internal/platform/errors"
)

// ErrNotFound is returned by Get for unknown or expired scans.
var ErrNotFound = errors.New(errors.KindStorage, "archive.get", "scan record not found")

// ResultSummary is the persisted part of one recognition result. Image bytes
// are not archived.
type ResultSummary struct {
	ID                  int       `json:"id"`
	DetectedClass       string    `json:"detected_class"`
	ClassifiedAs        string    `json:"classified_as"`
	Verdict             string    `json:"verdict"`
	Confidence          float64   `json:"confidence"`
	DetectionConfidence float64   `json:"detection_confidence"`
	BBox                []float64 `json:"bbox"`
	HasImage            bool      `json:"has_image"`
	Filename            string    `json:"filename,omitempty"`
}

// ScanRecord summarises one scan of one client.
type ScanRecord struct {
	ScanID       string          `json:"scan_id"`
	ClientID     string          `json:"client_id"`
	Status       string          `json:"status"`
	TotalObjects int             `json:"total_objects"`
	Results      []ResultSummary `json:"results"`
	CreatedAt    time.Time       `json:"created_at"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
}

// Store persists scan summaries.
type Store interface {
	Store(ctx context.Context, rec ScanRecord) error
	Get(ctx context.Context, scanID string) (ScanRecord, error)
	// ListByClient returns the newest records first. limit <= 0 means no limit.
	ListByClient(ctx context.Context, clientID string, limit int) ([]ScanRecord, error)
	CleanupExpired(ctx context.Context) error
	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Config selects and tunes a driver.
type Config struct {
	Driver   string
	TTL      time.Duration
	Cleanup  time.Duration
	Redis    *RedisConfig
	Postgres *PostgresConfig
}

type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

type PostgresConfig struct {
	DSN string
}

func validateRecord(op string, rec ScanRecord) error {
	if rec.ScanID == "" {
		return errors.New(errors.KindStorage, op, "scan id required")
	}
	if rec.ClientID == "" {
		return errors.New(errors.KindStorage, op, "client id required")
	}
	return nil
}

// prepare fills CreatedAt and ExpiresAt from ttl when missing.
func prepare(rec ScanRecord, ttl time.Duration) ScanRecord {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.ExpiresAt == nil && ttl > 0 {
		exp := rec.CreatedAt.Add(ttl)
		rec.ExpiresAt = &exp
	}
	return rec
}

func expired(rec ScanRecord, now time.Time) bool {
	return rec.ExpiresAt != nil && now.After(*rec.ExpiresAt)
}
