package archive

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sortvision-gateway/internal/platform/errors"
	"sortvision-gateway/internal/platform/storage"
)

type sqliteStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewSQLite stores records in the scan_records table of db.
func NewSQLite(db *gorm.DB, cfg Config) (Store, error) {
	if db == nil {
		return nil, errors.New(errors.KindStorage, "archive.sqlite.new", "database handle required")
	}
	return &sqliteStore{db: db, ttl: cfg.TTL}, nil
}

func (s *sqliteStore) Store(ctx context.Context, rec ScanRecord) error {
	const op = "archive.sqlite.store"
	if err := validateRecord(op, rec); err != nil {
		return err
	}
	rec = prepare(rec, s.ttl)

	results, err := encodeResults(rec.Results)
	if err != nil {
		return errors.Wrap(errors.KindStorage, op, "encode results", err)
	}
	row := &storage.ScanRecord{
		ScanID:       rec.ScanID,
		ClientID:     rec.ClientID,
		Status:       rec.Status,
		TotalObjects: rec.TotalObjects,
		Results:      datatypes.JSON(results),
		CreatedAt:    rec.CreatedAt,
		ExpiresAt:    rec.ExpiresAt,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scan_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"client_id", "status", "total_objects", "results", "created_at", "expires_at"}),
	}).Create(row).Error
	if err != nil {
		return errors.Wrap(errors.KindStorage, op, "insert scan record", err)
	}
	return nil
}

func (s *sqliteStore) Get(ctx context.Context, scanID string) (ScanRecord, error) {
	var row storage.ScanRecord
	err := s.db.WithContext(ctx).
		Where("scan_id = ?", scanID).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return ScanRecord{}, ErrNotFound
		}
		return ScanRecord{}, errors.Wrap(errors.KindStorage, "archive.sqlite.get", "query scan record", err)
	}
	return fromRow(row)
}

func (s *sqliteStore) ListByClient(ctx context.Context, clientID string, limit int) ([]ScanRecord, error) {
	q := s.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []storage.ScanRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "archive.sqlite.list", "query scan records", err)
	}
	out := make([]ScanRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *sqliteStore) CleanupExpired(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", time.Now()).
		Delete(&storage.ScanRecord{}).Error
}

func (s *sqliteStore) Stats(ctx context.Context) (map[string]any, error) {
	var total, clients int64
	if err := s.db.WithContext(ctx).Model(&storage.ScanRecord{}).Count(&total).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&storage.ScanRecord{}).Distinct("client_id").Count(&clients).Error; err != nil {
		return nil, err
	}
	return map[string]any{
		"type":    DriverSQLite,
		"total":   total,
		"clients": clients,
		"ttl":     int(s.ttl.Seconds()),
	}, nil
}

// Close is a no-op; the database handle belongs to the caller.
func (s *sqliteStore) Close(context.Context) error {
	return nil
}

func fromRow(row storage.ScanRecord) (ScanRecord, error) {
	results, err := decodeResults(row.Results)
	if err != nil {
		return ScanRecord{}, errors.Wrap(errors.KindStorage, "archive.sqlite.decode", "decode results", err)
	}
	return ScanRecord{
		ScanID:       row.ScanID,
		ClientID:     row.ClientID,
		Status:       row.Status,
		TotalObjects: row.TotalObjects,
		Results:      results,
		CreatedAt:    row.CreatedAt,
		ExpiresAt:    row.ExpiresAt,
	}, nil
}
