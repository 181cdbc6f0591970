package testing

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"sortvision-gateway/internal/platform/config"
	"sortvision-gateway/internal/platform/logging"
	"sortvision-gateway/internal/platform/storage"
	"sortvision-gateway/internal/utils"
)

// SetupTestConfig returns a default config rooted in a per-test temp dir,
// with the in-memory archive and a local recognizer URL.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Server.IP = "127.0.0.1"
	cfg.Log.Level = "DEBUG"
	cfg.Log.Dir = filepath.Join(dir, "logs")
	cfg.Log.File = "test.log"
	cfg.Recognizer.BaseURL = "http://127.0.0.1:5000"
	cfg.Archive.Driver = "memory"
	cfg.Feedback.UploadsDir = filepath.Join(dir, "uploads")
	cfg.Database.DSN = fmt.Sprintf("file:test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	return cfg
}

func SetupTestLogger(t *testing.T) *logging.Logger {
	t.Helper()

	cfg := SetupTestConfig(t)
	logger, err := logging.New(logging.Config{
		Level:    cfg.Log.Level,
		Dir:      cfg.Log.Dir,
		Filename: cfg.Log.File,
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })
	return logger
}

// SetupTestUtilsLogger is a shortcut for packages that take *utils.Logger directly.
func SetupTestUtilsLogger(t *testing.T) *utils.Logger {
	t.Helper()
	return SetupTestLogger(t).Legacy()
}

// SetupTestDB opens a migrated in-memory sqlite database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := storage.Open(fmt.Sprintf("file:testdb-%d?mode=memory&cache=shared", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
