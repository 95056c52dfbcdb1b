package log

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelTrace, ParseLevel("trace"))
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestConsoleSplit(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger, closers, err := setupLogger("info", "", &stdout, &stderr)
	require.NoError(t, err)
	assert.Empty(t, closers)

	logger.Debug("hidden")
	logger.Info("programming", "bytes", 3000)
	logger.Error("mass erase failed")

	assert.NotContains(t, stdout.String(), "hidden")
	assert.Contains(t, stdout.String(), "programming")
	assert.Contains(t, stdout.String(), "bytes=3000")
	assert.NotContains(t, stdout.String(), "mass erase failed")
	assert.Contains(t, stderr.String(), "mass erase failed")
	assert.NotContains(t, stderr.String(), "programming")
}

func TestTraceLevelName(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger, _, err := setupLogger("trace", "", &stdout, &stderr)
	require.NoError(t, err)

	logger.Log(context.Background(), LevelTrace, "control transfer")
	assert.Contains(t, stdout.String(), "level=TRACE")
}

func TestLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dfu.log")
	var stdout, stderr bytes.Buffer

	logger, closers, err := setupLogger("debug", path, &stdout, &stderr)
	require.NoError(t, err)
	require.Len(t, closers, 1)

	logger.Debug("set address pointer", "address", "0x08000000")
	logger.Error("boom")
	for _, c := range closers {
		require.NoError(t, c.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "set address pointer")
	assert.Contains(t, string(data), "boom")
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "set address pointer")
}

func TestLogFileError(t *testing.T) {
	_, _, err := SetupLogger("info", filepath.Join(t.TempDir(), "missing", "dfu.log"))
	assert.Error(t, err)
}
