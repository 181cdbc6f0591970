package storage

import (
	"time"

	"gorm.io/datatypes"
)

// ScanRecord is the persisted summary of one recognition round.
type ScanRecord struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	ScanID       string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"scan_id"`
	ClientID     string         `gorm:"type:varchar(255);index;not null" json:"client_id"`
	Status       string         `gorm:"type:varchar(32);not null" json:"status"`
	TotalObjects int            `json:"total_objects"`
	Results      datatypes.JSON `json:"results"`
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`
	ExpiresAt    *time.Time     `gorm:"index" json:"expires_at,omitempty"`
}

func (ScanRecord) TableName() string {
	return "scan_records"
}

// FeedbackRecord tracks an operator-labelled capture written to disk.
type FeedbackRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Label     string    `gorm:"type:varchar(64);index;not null" json:"label"`
	Path      string    `gorm:"not null" json:"path"`
	ResultID  string    `gorm:"type:varchar(64)" json:"result_id"`
	ClientID  string    `gorm:"type:varchar(255);index" json:"client_id"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

func (FeedbackRecord) TableName() string {
	return "feedback_records"
}

// DomainEvent is an event-bus message kept for auditing.
type DomainEvent struct {
	ID        uint           `gorm:"primaryKey"`
	EventType string         `gorm:"type:varchar(255);index;not null"`
	ScanID    string         `gorm:"type:varchar(64);index"`
	ClientID  string         `gorm:"type:varchar(255);index"`
	Data      datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"index;not null"`
}

func (DomainEvent) TableName() string {
	return "domain_events"
}
