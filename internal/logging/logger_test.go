package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/victoralfred/credit_sim/internal/config"
	"github.com/victoralfred/credit_sim/internal/domain/credit"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestNewWithWriter(t *testing.T) {
	t.Run("json output honours level", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewWithWriter(config.LogConfig{Level: "info", Format: "json"}, &buf)
		require.NoError(t, err)

		logger.Debug("hidden")
		logger.Info("Simulation started", zap.Int("paths", 100))
		logger.Warn("Simulation aborted")
		require.NoError(t, logger.Sync())

		entries := decodeLines(t, &buf)
		require.Len(t, entries, 2)
		assert.Equal(t, "info", entries[0]["level"])
		assert.Equal(t, "Simulation started", entries[0]["msg"])
		assert.Equal(t, float64(100), entries[0]["paths"])
		assert.Contains(t, entries[0], "timestamp")
		assert.Equal(t, "warn", entries[1]["level"])
	})

	t.Run("console output", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewWithWriter(config.LogConfig{Level: "debug", Format: "console"}, &buf)
		require.NoError(t, err)

		logger.Debug("progress")
		assert.Contains(t, buf.String(), "DEBUG")
		assert.Contains(t, buf.String(), "progress")
	})

	t.Run("unknown level", func(t *testing.T) {
		_, err := NewWithWriter(config.LogConfig{Level: "loud"}, &bytes.Buffer{})
		assert.Error(t, err)
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level   string
		want    zapcore.Level
		wantErr bool
	}{
		{level: "", want: zapcore.InfoLevel},
		{level: "debug", want: zapcore.DebugLevel},
		{level: "INFO", want: zapcore.InfoLevel},
		{level: "warn", want: zapcore.WarnLevel},
		{level: "error", want: zapcore.ErrorLevel},
		{level: "dpanic", want: zapcore.DPanicLevel},
		{level: "fatal", want: zapcore.FatalLevel},
		{level: "loud", want: zapcore.InfoLevel, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, err := parseLevel(tt.level)
			if tt.wantErr {
				assert.ErrorContains(t, err, "unknown log level")
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("file output with rotation", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "creditsim.log")
		logger, err := New(config.LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "file",
			File:       path,
			MaxSizeMB:  1,
			MaxBackups: 2,
		})
		require.NoError(t, err)

		logger.Info("written to file")
		require.NoError(t, logger.Sync())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "written to file")
	})

	t.Run("file output requires a path", func(t *testing.T) {
		_, err := New(config.LogConfig{Output: "file"})
		assert.Error(t, err)
	})

	t.Run("unknown output", func(t *testing.T) {
		_, err := New(config.LogConfig{Output: "syslog"})
		assert.Error(t, err)
	})
}

func TestErrorFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(config.LogConfig{Level: "info"}, &buf)
	require.NoError(t, err)

	numeric := fmt.Errorf("run: %w", credit.NewNumericError(12, 3, "latent", 0))
	logger.Error("Simulation failed", ErrorFields(numeric)...)
	logger.Error("Plain failure", ErrorFields(errors.New("boom"))...)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "NUMERICAL_INSTABILITY", entries[0]["error_code"])
	assert.Equal(t, "NUMERIC", entries[0]["error_category"])
	assert.Equal(t, float64(12), entries[0]["path_index"])
	assert.Equal(t, float64(3), entries[0]["entity_index"])
	assert.NotContains(t, entries[1], "error_code")
	assert.Equal(t, "boom", entries[1]["error"])
}

func TestRunFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(config.LogConfig{Level: "info"}, &buf)
	require.NoError(t, err)

	run := &credit.Run{ID: "SIM-1", PortfolioID: 7, Paths: 500, Seed: 42, Tenors: []string{"1Y"}}
	logger.Info("Run queued", RunFields(run)...)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "SIM-1", entries[0]["run_id"])
	assert.Equal(t, float64(7), entries[0]["portfolio_id"])
	assert.Equal(t, []any{"1Y"}, entries[0]["tenors"])
}
