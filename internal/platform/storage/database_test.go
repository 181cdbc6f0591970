package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func memoryDSN(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("file:storage-%d?mode=memory&cache=shared", time.Now().UnixNano())
}

func TestOpen_AppliesInitialMigration(t *testing.T) {
	db, err := Open(memoryDSN(t))
	require.NoError(t, err)

	for _, table := range []string{"scan_records", "feedback_records", "domain_events"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}

	history, err := NewMigrationManager(db).GetMigrationHistory()
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "001_initial", history[0].Version)
}

func TestOpen_CreatesDataDirectory(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "gateway.db")
	db, err := Open(dsn)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func TestMigrationManager_IdempotentAndRollback(t *testing.T) {
	db, err := Open(memoryDSN(t))
	require.NoError(t, err)

	mm := NewMigrationManager(db)
	mm.AddMigration(&tableMigration{version: "900_extra", table: "extra_things"})
	require.NoError(t, mm.RunMigrations())
	require.NoError(t, mm.RunMigrations())
	assert.True(t, db.Migrator().HasTable("extra_things"))

	require.NoError(t, mm.RollbackMigration("900_extra"))
	assert.False(t, db.Migrator().HasTable("extra_things"))

	err = mm.RollbackMigration("900_extra")
	assert.Error(t, err)
}

func TestScanRecordRoundTrip(t *testing.T) {
	db, err := Open(memoryDSN(t))
	require.NoError(t, err)

	rec := ScanRecord{
		ScanID:       "scan-1",
		ClientID:     "client-a",
		Status:       "completed",
		TotalObjects: 2,
		Results:      []byte(`[{"index":0}]`),
		CreatedAt:    time.Now(),
	}
	require.NoError(t, db.Create(&rec).Error)

	var loaded ScanRecord
	require.NoError(t, db.Where("scan_id = ?", "scan-1").First(&loaded).Error)
	assert.Equal(t, "client-a", loaded.ClientID)
	assert.JSONEq(t, `[{"index":0}]`, string(loaded.Results))
}

type tableMigration struct {
	version string
	table   string
}

func (m *tableMigration) Version() string     { return m.version }
func (m *tableMigration) Description() string { return "test table " + m.table }
func (m *tableMigration) Up(db *gorm.DB) error {
	return db.Exec("CREATE TABLE IF NOT EXISTS " + m.table + " (id INTEGER PRIMARY KEY)").Error
}
func (m *tableMigration) Down(db *gorm.DB) error {
	return db.Exec("DROP TABLE IF EXISTS " + m.table).Error
}
