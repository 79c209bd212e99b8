package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Cleanup(func() { log.Logger = zerolog.Nop() })

	t.Run("console output", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Config{Level: "info", Console: true, Output: &buf})
		require.NoError(t, err)
		defer l.Close()

		l.Info().Str("op", "memorize").Msg("stored")
		assert.Contains(t, buf.String(), `"op":"memorize"`)
		assert.Contains(t, buf.String(), `"message":"stored"`)
	})

	t.Run("file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "test.log")

		l, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)
		l.Debug().Msg("file message")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "file message")
	})

	t.Run("level filtering", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Config{Level: "warn", Console: true, Output: &buf})
		require.NoError(t, err)

		l.Info().Msg("hidden")
		l.Warn().Msg("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Config{Level: "loud", Console: true, Output: &buf})
		require.NoError(t, err)

		l.Debug().Msg("debug")
		l.Info().Msg("info")
		assert.NotContains(t, buf.String(), `"message":"debug"`)
		assert.Contains(t, buf.String(), `"message":"info"`)
	})

	t.Run("sets global logger", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := New(Config{Level: "info", Console: true, Output: &buf})
		require.NoError(t, err)

		log.Info().Msg("via global")
		assert.Contains(t, buf.String(), "via global")
	})
}

func TestNew_RedactsSecrets(t *testing.T) {
	t.Cleanup(func() { log.Logger = zerolog.Nop() })

	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Console: true, Redaction: true, Output: &buf})
	require.NoError(t, err)
	require.NotNil(t, l.redactor)

	l.Info().Str("key", "sk-abcdefghijklmnopqrstuvwxyz").Msg("calling API")
	assert.NotContains(t, buf.String(), "sk-abcdefghijklmnopqrstuvwxyz")
	assert.Contains(t, buf.String(), "[REDACTED]")
}
