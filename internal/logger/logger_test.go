package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := New(&buf, "warn", "text")

	l.Info("hidden")
	l.Warn("shown", "session", "s1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "session=s1")
}

func TestNew_JSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := New(&buf, "info", "json")
	l.Info("joined", "count", 2)

	assert.Contains(t, buf.String(), `"msg":"joined"`)
	assert.Contains(t, buf.String(), `"count"`)
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := New(&buf, "loud", "text")
	l.Debug("debug line")
	l.Info("info line")

	assert.NotContains(t, buf.String(), "debug line")
	assert.Contains(t, buf.String(), "info line")
}

func TestOpenLogFile_Rotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "server.log")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), maxLogSize+1), 0o644))

	f, err := openLogFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size(), "oversized log should be rotated")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, path, GetLogPath())
}
