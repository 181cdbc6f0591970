package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"sortvision-gateway/internal/platform/errors"
)

const postgresSchema = `
create table if not exists scan_records (
	scan_id       text primary key,
	client_id     text not null,
	status        text not null,
	total_objects integer not null default 0,
	results       jsonb not null default '[]'::jsonb,
	created_at    timestamptz not null,
	expires_at    timestamptz
);
create index if not exists idx_scan_records_client_created on scan_records (client_id, created_at desc);
create index if not exists idx_scan_records_expires on scan_records (expires_at);
`

type postgresStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewPostgres opens a pgx-backed pool, checks connectivity and ensures the schema.
func NewPostgres(cfg Config) (Store, error) {
	if cfg.Postgres == nil || cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	db, err := sql.Open("pgx", cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return newPostgresStore(db, cfg.TTL), nil
}

func newPostgresStore(db *sql.DB, ttl time.Duration) *postgresStore {
	return &postgresStore{db: db, ttl: ttl}
}

func (s *postgresStore) Store(ctx context.Context, rec ScanRecord) error {
	const op = "archive.postgres.store"
	if err := validateRecord(op, rec); err != nil {
		return err
	}
	rec = prepare(rec, s.ttl)

	results, err := encodeResults(rec.Results)
	if err != nil {
		return errors.Wrap(errors.KindStorage, op, "encode results", err)
	}
	const q = `
insert into scan_records (scan_id, client_id, status, total_objects, results, created_at, expires_at)
values ($1, $2, $3, $4, $5, $6, $7)
on conflict (scan_id) do update set
	client_id = excluded.client_id,
	status = excluded.status,
	total_objects = excluded.total_objects,
	results = excluded.results,
	created_at = excluded.created_at,
	expires_at = excluded.expires_at`
	_, err = s.db.ExecContext(ctx, q,
		rec.ScanID, rec.ClientID, rec.Status, rec.TotalObjects, string(results), rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		return errors.Wrap(errors.KindStorage, op, "insert scan record", err)
	}
	return nil
}

const postgresSelect = `
select scan_id, client_id, status, total_objects, results, created_at, expires_at
from scan_records`

func (s *postgresStore) Get(ctx context.Context, scanID string) (ScanRecord, error) {
	row := s.db.QueryRowContext(ctx, postgresSelect+`
where scan_id = $1 and (expires_at is null or expires_at > now())`, scanID)
	rec, err := scanRow(row)
	if err == sql.ErrNoRows {
		return ScanRecord{}, ErrNotFound
	}
	if err != nil {
		return ScanRecord{}, errors.Wrap(errors.KindStorage, "archive.postgres.get", "query scan record", err)
	}
	return rec, nil
}

func (s *postgresStore) ListByClient(ctx context.Context, clientID string, limit int) ([]ScanRecord, error) {
	q := postgresSelect + `
where client_id = $1 and (expires_at is null or expires_at > now())
order by created_at desc`
	args := []any{clientID}
	if limit > 0 {
		q += ` limit $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "archive.postgres.list", "query scan records", err)
	}
	defer rows.Close()

	out := make([]ScanRecord, 0)
	for rows.Next() {
		rec, err := scanRow(rows)
		if err != nil {
			return nil, errors.Wrap(errors.KindStorage, "archive.postgres.list", "scan row", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "archive.postgres.list", "iterate rows", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(row rowScanner) (ScanRecord, error) {
	var (
		rec       ScanRecord
		results   []byte
		expiresAt sql.NullTime
	)
	if err := row.Scan(&rec.ScanID, &rec.ClientID, &rec.Status, &rec.TotalObjects,
		&results, &rec.CreatedAt, &expiresAt); err != nil {
		return ScanRecord{}, err
	}
	decoded, err := decodeResults(results)
	if err != nil {
		return ScanRecord{}, err
	}
	rec.Results = decoded
	if expiresAt.Valid {
		t := expiresAt.Time
		rec.ExpiresAt = &t
	}
	return rec, nil
}

func (s *postgresStore) CleanupExpired(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `delete from scan_records where expires_at is not null and expires_at <= now()`)
	return err
}

func (s *postgresStore) Stats(ctx context.Context) (map[string]any, error) {
	var total, clients int64
	err := s.db.QueryRowContext(ctx,
		`select count(*), count(distinct client_id) from scan_records`).Scan(&total, &clients)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":    DriverPostgres,
		"total":   total,
		"clients": clients,
		"ttl":     int(s.ttl.Seconds()),
	}, nil
}

func (s *postgresStore) Close(context.Context) error {
	return s.db.Close()
}
