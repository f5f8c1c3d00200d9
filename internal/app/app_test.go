package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/internal/app"
	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// testConfig parses the defaults from an isolated environment.
func testConfig(t *testing.T, vars map[string]string) app.Config {
	t.Helper()

	environ := map[string]string{"EMAIL_DEV_DIR": t.TempDir()}
	for k, v := range vars {
		environ[k] = v
	}
	var cfg app.Config
	require.NoError(t, env.ParseWithOptions(&cfg, env.Options{Environment: environ}))
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		vars    map[string]string
		wantErr string
	}{
		{name: "defaults"},
		{name: "redis dedup without redis", vars: map[string]string{"DISPATCH_DEDUP_BACKEND": "redis"}, wantErr: "requires REDIS_URL"},
		{name: "unknown dedup backend", vars: map[string]string{"DISPATCH_DEDUP_BACKEND": "etcd"}, wantErr: "unknown dedup backend"},
		{name: "no channel", vars: map[string]string{"EMAIL_ENABLED": "false", "WEBHOOK_ENABLED": "false"}, wantErr: "no channel enabled"},
		{name: "bad breaker", vars: map[string]string{"DISPATCH_BREAKER_THRESHOLD": "50"}, wantErr: "breaker threshold"},
		{name: "negative sweep interval", vars: map[string]string{"DISPATCH_SWEEP_INTERVAL": "-1s"}, wantErr: "sweep interval"},
		{name: "bad pool when pg enabled", vars: map[string]string{"PG_CONN_URL": "postgres://localhost/x", "PG_MAX_IDLE_CONNS": "50"}, wantErr: "idle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := testConfig(t, tt.vars).Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_SweepInterval(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Minute, testConfig(t, nil).Dispatch.SweepInterval)
	assert.Zero(t, testConfig(t, map[string]string{"DISPATCH_SWEEP_INTERVAL": "0"}).Dispatch.SweepInterval)
}

func TestAdapters(t *testing.T) {
	t.Parallel()

	kinds := func(ads []channel.Adapter) []channel.Kind {
		out := make([]channel.Kind, 0, len(ads))
		for _, a := range ads {
			out = append(out, a.Kind())
		}
		return out
	}

	ads, err := app.Adapters(testConfig(t, nil))
	require.NoError(t, err)
	assert.Equal(t, []channel.Kind{channel.KindEmail, channel.KindWebhook}, kinds(ads))

	ads, err = app.Adapters(testConfig(t, map[string]string{"TELEGRAM_BOT_TOKEN": "123:abc", "WEBHOOK_ENABLED": "false"}))
	require.NoError(t, err)
	assert.Equal(t, []channel.Kind{channel.KindEmail, channel.KindChatBot}, kinds(ads))

	_, err = app.Adapters(testConfig(t, map[string]string{"EMAIL_PROVIDER": "pigeon"}))
	assert.Error(t, err)

	_, err = app.Adapters(testConfig(t, map[string]string{"EMAIL_ENABLED": "false", "WEBHOOK_ENABLED": "false"}))
	assert.Error(t, err)
}

func TestNew_InMemory(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, map[string]string{"DISPATCH_BACKOFF_INITIAL": "10ms", "DISPATCH_BACKOFF_MAX": "20ms"})
	a, err := app.New(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.IsType(t, &notifications.MemoryStorage{}, a.Storage)
	assert.ElementsMatch(t, []channel.Kind{channel.KindEmail, channel.KindWebhook}, a.Dispatcher.Channels())

	router := a.Router()
	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/stats"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	ctx := context.Background()
	require.NoError(t, a.Dispatcher.Start(ctx))
	t.Cleanup(func() { _ = a.Dispatcher.Stop() })

	events := a.Events.Subscribe(ctx)
	t.Cleanup(func() { _ = events.Close() })

	rec, err := a.Dispatcher.Submit(ctx, notifications.Request{
		Channel:   channel.KindEmail,
		Recipient: "user@example.com",
		Title:     "Welcome",
		Body:      "<p>Hello</p>",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := a.Dispatcher.GetStatus(ctx, rec.ID)
		return err == nil && got.State == notifications.StateDelivered
	}, 5*time.Second, 5*time.Millisecond)

	select {
	case msg := <-events.Receive(ctx):
		assert.Equal(t, rec.ID, msg.Data.NotificationID)
		assert.Equal(t, notifications.StateDelivered, msg.Data.State)
	case <-time.After(5 * time.Second):
		t.Fatal("no delivery event")
	}
}
