package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"shiftbook/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	appCfg := config.AppConfig{Name: "shiftbook-test", Environment: "test", Version: "1.0.0"}

	t.Run("DefaultStdout", func(t *testing.T) {
		logger, closer, err := New(config.LoggingConfig{}, appCfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Nil(t, closer)
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	})

	t.Run("ConsoleStderr", func(t *testing.T) {
		logger, closer, err := New(config.LoggingConfig{Level: "debug", Output: "stderr", Format: "console"}, appCfg)
		require.NoError(t, err)
		assert.Nil(t, closer)
		assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
	})

	t.Run("FileInNestedDir", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "logs", "app.log")
		logger, closer, err := New(config.LoggingConfig{Level: "error", Output: "file", FilePath: logPath}, appCfg)
		require.NoError(t, err)
		require.NotNil(t, closer)
		logger.Error().Msg("boom")
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"message":"boom"`)
		assert.Contains(t, string(data), `"app":"shiftbook-test"`)
	})

	t.Run("FileMissingPath", func(t *testing.T) {
		_, _, err := New(config.LoggingConfig{Output: "file"}, appCfg)
		assert.Error(t, err)
	})

	t.Run("UnknownOutput", func(t *testing.T) {
		_, _, err := New(config.LoggingConfig{Output: "syslog"}, appCfg)
		assert.Error(t, err)
	})

	t.Run("InvalidLevelFallsBackToInfo", func(t *testing.T) {
		logger, _, err := New(config.LoggingConfig{Level: "invalid"}, appCfg)
		require.NoError(t, err)
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	})
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	Component(&base, "store").Info().Msg("ready")
	assert.Contains(t, buf.String(), `"component":"store"`)

	assert.NotNil(t, Component(nil, "noop"))
}
