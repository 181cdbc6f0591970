package migrations

import (
	"gorm.io/gorm"
)

// Migration001Initial creates the scan archive, feedback and event tables.
type Migration001Initial struct{}

func (m *Migration001Initial) Version() string {
	return "001_initial"
}

func (m *Migration001Initial) Description() string {
	return "Create scan_records, feedback_records and domain_events"
}

func (m *Migration001Initial) Up(db *gorm.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS scan_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scan_id VARCHAR(64) NOT NULL UNIQUE,
			client_id VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL,
			total_objects INTEGER NOT NULL DEFAULT 0,
			results JSON,
			created_at DATETIME NOT NULL,
			expires_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_records_client_id ON scan_records(client_id)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_records_created_at ON scan_records(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_records_expires_at ON scan_records(expires_at)`,
		`CREATE TABLE IF NOT EXISTS feedback_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			label VARCHAR(64) NOT NULL,
			path TEXT NOT NULL,
			result_id VARCHAR(64),
			client_id VARCHAR(255),
			size INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_records_label ON feedback_records(label)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_records_client_id ON feedback_records(client_id)`,
		`CREATE TABLE IF NOT EXISTS domain_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type VARCHAR(255) NOT NULL,
			scan_id VARCHAR(64),
			client_id VARCHAR(255),
			data JSON NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_domain_events_event_type ON domain_events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_domain_events_scan_id ON domain_events(scan_id)`,
		`CREATE INDEX IF NOT EXISTS idx_domain_events_client_id ON domain_events(client_id)`,
		`CREATE INDEX IF NOT EXISTS idx_domain_events_created_at ON domain_events(created_at)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func (m *Migration001Initial) Down(db *gorm.DB) error {
	for _, table := range []string{"domain_events", "feedback_records", "scan_records"} {
		if err := db.Exec(`DROP TABLE IF EXISTS ` + table).Error; err != nil {
			return err
		}
	}
	return nil
}
