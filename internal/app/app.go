// Package app wires the notifyd components from Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmitrymomot/notifykit/pkg/broadcast"
	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/dedup"
	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/metrics"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/notifications/pgstore"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/redis"
)

// App holds the running components.
type App struct {
	Config     Config
	Logger     *slog.Logger
	Storage    notifications.Storage
	Dispatcher *notifications.Dispatcher
	Events     *notifications.BroadcastPublisher
	Registry   *prometheus.Registry

	checks  []httpserver.Check
	closers []func()
}

// OpenStorage returns the ledger: Postgres when PG_CONN_URL is set, memory
// otherwise. The pool is nil for the memory ledger.
func OpenStorage(ctx context.Context, cfg Config, log *slog.Logger) (notifications.Storage, *pgxpool.Pool, error) {
	if !cfg.PG.Enabled() {
		log.LogAttrs(ctx, slog.LevelWarn, "PG_CONN_URL not set, using in-memory ledger")
		return notifications.NewMemoryStorage(), nil, nil
	}

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return nil, nil, err
	}
	if cfg.PG.AutoMigrate {
		if err := pg.Migrate(ctx, pool, pgstore.Migrations(), cfg.PG, log.With(logger.Component("migrate"))); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	return pgstore.New(pool), pool, nil
}

// New connects the configured backends and builds the dispatcher. The
// dispatcher is not started.
func New(ctx context.Context, cfg Config, log *slog.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Logger: log, Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	store, pool, err := OpenStorage(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	a.Storage = store
	if pool != nil {
		a.closers = append(a.closers, pool.Close)
		a.checks = append(a.checks, httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)})
	}

	guard, events, err := a.shared(ctx)
	if err != nil {
		return nil, err
	}
	a.Events = notifications.NewBroadcastPublisher(events)

	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(a.Registry)
	if err != nil {
		return nil, err
	}

	adapters, err := Adapters(cfg)
	if err != nil {
		return nil, err
	}

	opts := append(cfg.Dispatch.Options(),
		notifications.WithStorage(store),
		notifications.WithGuard(guard),
		notifications.WithPublisher(a.Events),
		notifications.WithMetrics(m),
		notifications.WithLogger(log),
	)
	for _, ad := range adapters {
		opts = append(opts, notifications.WithAdapter(ad))
	}
	a.Dispatcher, err = notifications.New(opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// shared builds the dedup guard and the event broadcaster, backed by Redis
// when it is configured.
func (a *App) shared(ctx context.Context) (dedup.Guard, broadcast.Broadcaster[notifications.DeliveryEvent], error) {
	cfg := a.Config
	if !cfg.Redis.Enabled() {
		events := broadcast.NewMemoryBroadcaster[notifications.DeliveryEvent](64)
		a.closers = append(a.closers, func() { _ = events.Close() })
		return dedup.NewMemoryGuard(cfg.Dispatch.Dedup.Capacity), events, nil
	}

	client, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	a.checks = append(a.checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})

	events, err := broadcast.NewRedisBroadcaster[notifications.DeliveryEvent](client, cfg.Redis.EventsChannel,
		broadcast.WithRedisLogger(a.Logger))
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, func() { _ = events.Close() })

	var guard dedup.Guard = dedup.NewMemoryGuard(cfg.Dispatch.Dedup.Capacity)
	if cfg.Dispatch.Dedup.Backend == "redis" {
		guard = dedup.NewRedisGuard(client, dedup.WithPrefix(cfg.Redis.DedupPrefix))
	}
	return guard, events, nil
}

// Adapters builds an adapter for every enabled channel.
func Adapters(cfg Config) ([]channel.Adapter, error) {
	var out []channel.Adapter

	if cfg.EmailEnabled {
		sender, err := email.New(cfg.Email)
		if err != nil {
			return nil, fmt.Errorf("email sender: %w", err)
		}
		ad, err := channel.NewEmailAdapter(sender)
		if err != nil {
			return nil, err
		}
		out = append(out, ad)
	}
	if cfg.ChatBot.Enabled() {
		ad, err := channel.NewChatBotAdapter(cfg.ChatBot.Token, cfg.ChatBot.Options()...)
		if err != nil {
			return nil, fmt.Errorf("chat bot adapter: %w", err)
		}
		out = append(out, ad)
	}
	if cfg.WebhookEnabled {
		out = append(out, channel.NewWebhookAdapter(cfg.Webhook.Options()...))
	}

	if len(out) == 0 {
		return nil, errors.New("no channel enabled")
	}
	return out, nil
}

// Router returns the ops endpoints for this app.
func (a *App) Router() http.Handler {
	opts := []httpserver.RouterOption{
		httpserver.WithBreakerStats(a.Dispatcher.BreakerStats),
		httpserver.WithStats(func(ctx context.Context, since time.Time) (any, error) {
			return a.Dispatcher.Stats(ctx, since)
		}),
		httpserver.WithMetricsHandler(metrics.Handler(a.Registry)),
		httpserver.WithCheckTimeout(a.Config.HTTP.CheckTimeout),
		httpserver.WithRouterLogger(a.Logger),
	}
	for _, c := range a.checks {
		opts = append(opts, httpserver.WithCheck(c.Name, c.Fn))
	}
	return httpserver.NewRouter(opts...)
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
