package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/najoast/nplmini/config"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := Level(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := Level("verbose")
	assert.ErrorIs(t, err, config.ErrInvalidLogLevel)
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "json", slog.LevelInfo, false)

	log.Debug("hidden")
	log.Info("state created", slog.String("state", "worker1"))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "state created", record["msg"])
	assert.Equal(t, "worker1", record["state"])
}

func TestNewWithWriterText(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "text", slog.LevelDebug, false)

	log.Debug("tick", slog.Int("processed", 3))
	assert.Contains(t, buf.String(), "msg=tick")
	assert.Contains(t, buf.String(), "processed=3")
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "npl.log")

	log, closer, err := New(config.LogConfig{Level: config.LogLevelWarn, Format: "text", Output: path})
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("kept")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestNewErrors(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "loud"})
	assert.ErrorIs(t, err, config.ErrInvalidLogLevel)

	_, _, err = New(config.LogConfig{Output: filepath.Join(t.TempDir(), "missing", "npl.log")})
	assert.Error(t, err)
}
