package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"reservation-engine/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	appCfg := config.AppConfig{
		Name:        "test-app",
		Environment: "test",
		Version:     "1.0.0",
	}

	t.Run("DefaultStdout", func(t *testing.T) {
		logger, closer, err := New(config.LoggingConfig{Level: "info", Output: "stdout"}, appCfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Nil(t, closer)
	})

	t.Run("Stderr", func(t *testing.T) {
		logger, closer, err := New(config.LoggingConfig{Level: "debug", Output: "stderr"}, appCfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Nil(t, closer)
	})

	t.Run("FileInNestedDirectory", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "logs", "engine.log")
		logger, closer, err := New(config.LoggingConfig{Level: "error", Output: "file", FilePath: logPath}, appCfg)
		require.NoError(t, err)
		require.NotNil(t, closer)

		logger.Error().Msg("boom")
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), "boom")
	})

	t.Run("FileMissingPath", func(t *testing.T) {
		_, _, err := New(config.LoggingConfig{Output: "file"}, appCfg)
		assert.Error(t, err)
	})
}

func TestBuild_FieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := build(&buf, config.LoggingConfig{Level: "invalid"}, config.AppConfig{Name: "engine", Environment: "test", Version: "1.2.3"})

	logger.Debug().Msg("hidden")
	assert.Zero(t, buf.Len(), "invalid level falls back to info")

	Component(logger, "sweeper").Info().Int64("reservation_id", 7).Msg("completed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "engine", entry["app"])
	assert.Equal(t, "test", entry["env"])
	assert.Equal(t, "1.2.3", entry["version"])
	assert.Equal(t, "sweeper", entry["component"])
	assert.Equal(t, float64(7), entry["reservation_id"])
}

func TestComponent_NilParent(t *testing.T) {
	assert.NotPanics(t, func() {
		Component(nil, "x").Info().Msg("discarded")
	})
}
