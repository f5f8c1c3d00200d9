package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json by default", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf))
		log.Info("hello")
		entry := decode(t, buf)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "hello", entry["msg"])
	})

	t.Run("text formatter", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithTextFormatter())
		log.Info("hello")
		assert.Contains(t, buf.String(), "level=INFO")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("level filters records", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithLevel(slog.LevelWarn))
		log.Info("dropped")
		assert.Empty(t, buf.String())
		log.Warn("kept")
		assert.Equal(t, "kept", decode(t, buf)["msg"])
	})

	t.Run("static attributes", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithAttr(slog.String("svc", "test")))
		log.Info("msg")
		assert.Equal(t, "test", decode(t, buf)["svc"])
	})

	t.Run("context value", func(t *testing.T) {
		type key struct{}
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithContextValue("notification_id", key{}))
		ctx := context.WithValue(context.Background(), key{}, "n-1")
		log.InfoContext(ctx, "msg")
		assert.Equal(t, "n-1", decode(t, buf)["notification_id"])
	})

	t.Run("extractors survive With", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(
			logger.WithOutput(buf),
			logger.WithContextExtractors(nil, func(context.Context) (slog.Attr, bool) {
				return slog.String("trace", "t1"), true
			}),
		).With(slog.String("component", "queue"))
		log.InfoContext(context.Background(), "msg")
		entry := decode(t, buf)
		assert.Equal(t, "t1", entry["trace"])
		assert.Equal(t, "queue", entry["component"])
	})

	t.Run("invalid format panics", func(t *testing.T) {
		assert.Panics(t, func() { logger.New(logger.WithFormat("xml")) })
	})
}

func TestWithEnvironment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		env     string
		wantEnv string
		json    bool
	}{
		{"production", logger.EnvProduction, true},
		{"prod", logger.EnvProduction, true},
		{"stage", logger.EnvStaging, true},
		{"development", logger.EnvDevelopment, false},
		{"", logger.EnvDevelopment, false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			buf := &bytes.Buffer{}
			log := logger.New(logger.WithOutput(buf), logger.WithEnvironment(tt.env, "notifyd"))
			log.Info("msg")
			if tt.json {
				entry := decode(t, buf)
				assert.Equal(t, tt.wantEnv, entry["env"])
				assert.Equal(t, "notifyd", entry["service"])
				return
			}
			assert.Contains(t, buf.String(), "env="+tt.wantEnv)
			assert.Contains(t, buf.String(), "service=notifyd")
		})
	}
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("explicit level and format win", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log, err := logger.NewFromConfig(logger.Config{
			Level: "warn", Format: "json", Env: "development", Service: "svc",
		}, logger.WithOutput(buf))
		require.NoError(t, err)
		log.Info("dropped")
		assert.Empty(t, buf.String())
		log.Warn("kept")
		entry := decode(t, buf)
		assert.Equal(t, "svc", entry["service"])
		assert.Equal(t, "development", entry["env"])
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := logger.NewFromConfig(logger.Config{Level: "loud"})
		require.Error(t, err)
	})

	t.Run("invalid format", func(t *testing.T) {
		_, err := logger.NewFromConfig(logger.Config{Format: "xml"})
		require.Error(t, err)
	})
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	lvl, err := logger.ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	lvl, err = logger.ParseLevel("error")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelError, lvl)
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	assert.NotPanics(t, func() { logger.Discard().Error("nothing") })
}
