package repository

import (
	"context"
	"time"
)

// EventRepository persists bus events for auditing.
type EventRepository interface {
	Store(ctx context.Context, event Event) error

	// FindByScanID returns the events of one scan, oldest first.
	FindByScanID(ctx context.Context, scanID string) ([]Event, error)

	FindByEventType(ctx context.Context, eventType string, limit int) ([]Event, error)

	// FindByClientID returns a client's events, newest first.
	FindByClientID(ctx context.Context, clientID string, limit int) ([]Event, error)

	DeleteOldEvents(ctx context.Context, beforeTime time.Time) (int64, error)

	// GetEventStats counts stored events per type.
	GetEventStats(ctx context.Context) (map[string]int64, error)
}

type Event struct {
	ID        string
	EventType string
	ScanID    string
	ClientID  string
	Data      interface{}
	CreatedAt time.Time
}
