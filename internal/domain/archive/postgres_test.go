package archive

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		if scanner, ok := d.(sql.Scanner); ok {
			if err := scanner.Scan(r.values[i]); err != nil {
				return err
			}
			continue
		}
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *int:
			*p = r.values[i].(int)
		case *[]byte:
			*p = r.values[i].([]byte)
		case *time.Time:
			*p = r.values[i].(time.Time)
		}
	}
	return nil
}

func TestScanRow(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	expires := created.Add(time.Hour)

	rec, err := scanRow(fakeRow{values: []any{
		"scan-1", "alice", "ok", 1,
		[]byte(`[{"id":3,"verdict":"szklo","confidence":0.75,"bbox":[1,1,2,2],"has_image":true}]`),
		created, expires,
	}})
	require.NoError(t, err)

	assert.Equal(t, "scan-1", rec.ScanID)
	assert.Equal(t, created, rec.CreatedAt)
	require.NotNil(t, rec.ExpiresAt)
	assert.Equal(t, expires, *rec.ExpiresAt)
	require.Len(t, rec.Results, 1)
	assert.Equal(t, "szklo", rec.Results[0].Verdict)
	assert.Equal(t, 0.75, rec.Results[0].Confidence)
}

func TestScanRow_Errors(t *testing.T) {
	_, err := scanRow(fakeRow{err: errors.New("boom")})
	assert.Error(t, err)

	_, err = scanRow(fakeRow{values: []any{"s", "c", "ok", 0, []byte(`{not json`), time.Now(), time.Now()}})
	assert.Error(t, err)
}

func TestNewPostgres_RequiresDSN(t *testing.T) {
	_, err := NewPostgres(Config{})
	assert.Error(t, err)
	_, err = NewPostgres(Config{Postgres: &PostgresConfig{}})
	assert.Error(t, err)
}
