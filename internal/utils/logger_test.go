package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(&LogCfg{
		LogLevel: "debug",
		LogDir:   tmpDir,
		LogFile:  "test.log",
	})

	assert.NoError(t, err)
	assert.NotNil(t, logger)
	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close(), "second Close should be a no-op")
}

func TestLogger_InfoWritesJSONFile(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(&LogCfg{
		LogLevel: "info",
		LogDir:   tmpDir,
		LogFile:  "info.log",
	})
	require.NoError(t, err)
	defer logger.Close()

	logger.Info("decoded %d results", 3)
	logger.InfoFields("scan stored 100%", map[string]interface{}{"scan_id": "abc", "client": "c1"})

	content, err := os.ReadFile(filepath.Join(tmpDir, "info.log"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "decoded 3 results")
	assert.Contains(t, string(content), `"scan_id":"abc"`)
	assert.Contains(t, string(content), "scan stored 100%")
}

func TestLogger_DebugSuppressedAboveDebugLevel(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(&LogCfg{
		LogLevel: "INFO",
		LogDir:   tmpDir,
		LogFile:  "level.log",
	})
	require.NoError(t, err)
	defer logger.Close()

	logger.Debug("hidden debug line")
	logger.Warn("visible warn line")

	content, err := os.ReadFile(filepath.Join(tmpDir, "level.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(content), "hidden debug line")
	assert.Contains(t, string(content), "visible warn line")
}

func TestLogger_TagsOnConsole(t *testing.T) {
	var console bytes.Buffer
	logger, err := newLogger(&LogCfg{
		LogLevel: "debug",
		LogDir:   t.TempDir(),
		LogFile:  "tag.log",
	}, &console)
	require.NoError(t, err)
	defer logger.Close()

	logger.InfoTag("SCAN", "installed generation %d", 7)
	logger.ErrorTag("", "untagged failure")

	out := console.String()
	assert.Contains(t, out, "[SCAN] installed generation 7")
	assert.Contains(t, out, "[ERROR]")
	assert.Contains(t, out, "untagged failure")
}

func TestLogger_NilReceiverTagHelpers(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() {
		logger.InfoTag("BLOB", "ignored")
		logger.WarnTag("BLOB", "ignored")
		logger.ErrorTag("BLOB", "ignored")
		logger.DebugTag("BLOB", "ignored")
	})
}

func TestFormatLog(t *testing.T) {
	assert.Equal(t, "[BOOT] ready", FormatLog("BOOT", " ready "))
	assert.Equal(t, "[HTTP] already tagged", FormatLog("BOOT", "[HTTP] already tagged"))
	assert.Equal(t, "plain", FormatLog("", "plain"))
}
