package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/notifykit/pkg/breaker"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Check is a named readiness probe, such as pg.Healthcheck(pool).
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// RouterOption configures the ops router.
type RouterOption func(*router)

type router struct {
	checks       []Check
	breakers     func() []breaker.Stats
	stats        StatsFunc
	metrics      http.Handler
	checkTimeout time.Duration
	logger       *slog.Logger
}

// WithCheck adds a readiness probe.
func WithCheck(name string, fn func(ctx context.Context) error) RouterOption {
	return func(r *router) { r.checks = append(r.checks, Check{Name: name, Fn: fn}) }
}

// WithBreakerStats reports circuit breaker state on /readyz.
func WithBreakerStats(fn func() []breaker.Stats) RouterOption {
	return func(r *router) { r.breakers = fn }
}

// StatsFunc reports ledger statistics for records created at or after since.
type StatsFunc func(ctx context.Context, since time.Time) (any, error)

// WithStats mounts fn on /stats.
func WithStats(fn StatsFunc) RouterOption {
	return func(r *router) { r.stats = fn }
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) RouterOption {
	return func(r *router) { r.metrics = h }
}

// WithCheckTimeout bounds each readiness probe. Defaults to 2s.
func WithCheckTimeout(d time.Duration) RouterOption {
	return func(r *router) {
		if d > 0 {
			r.checkTimeout = d
		}
	}
}

func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *router) { r.logger = l }
}

// NewRouter returns the operational endpoints:
//
//	GET /healthz  liveness, always 200 while the process serves
//	GET /readyz   200 when every check passes, 503 otherwise; includes breaker state
//	GET /metrics  Prometheus exposition, when a metrics handler is set
//	GET /stats    ledger counts, optionally ?since=24h, when a stats func is set
func NewRouter(opts ...RouterOption) http.Handler {
	rt := &router{checkTimeout: 2 * time.Second}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.logger == nil {
		rt.logger = logger.Discard()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(rt.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", rt.readyz)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics)
	}
	if rt.stats != nil {
		r.Get("/stats", rt.serveStats)
	}
	return r
}

func (rt *router) serveStats(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid since %q", v)})
			return
		}
		since = time.Now().Add(-d)
	}

	res, err := rt.stats(r.Context(), since)
	if err != nil {
		rt.logger.LogAttrs(r.Context(), slog.LevelError, "stats failed", logger.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type readiness struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks,omitempty"`
	Breakers []breakerStatus   `json:"breakers,omitempty"`
}

type breakerStatus struct {
	Channel   string    `json:"channel"`
	State     string    `json:"state"`
	Failures  int       `json:"failures"`
	Calls     int       `json:"calls"`
	OpenUntil time.Time `json:"open_until,omitzero"`
}

// readyz runs the checks concurrently. An open breaker is reported but does
// not make the service unready: submissions are still accepted and queued.
func (rt *router) readyz(w http.ResponseWriter, r *http.Request) {
	res := readiness{Status: "ready"}
	status := http.StatusOK

	if len(rt.checks) > 0 {
		res.Checks = make(map[string]string, len(rt.checks))
		var (
			mu sync.Mutex
			wg sync.WaitGroup
		)
		for _, c := range rt.checks {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(r.Context(), rt.checkTimeout)
				defer cancel()

				result := "ok"
				if err := runCheck(ctx, c.Fn); err != nil {
					result = err.Error()
					rt.logger.LogAttrs(r.Context(), slog.LevelWarn, "readiness check failed",
						slog.String("check", c.Name), logger.Error(err))
				}
				mu.Lock()
				res.Checks[c.Name] = result
				mu.Unlock()
			}()
		}
		wg.Wait()

		for _, v := range res.Checks {
			if v != "ok" {
				res.Status = "not_ready"
				status = http.StatusServiceUnavailable
			}
		}
	}

	if rt.breakers != nil {
		for _, s := range rt.breakers() {
			res.Breakers = append(res.Breakers, breakerStatus{
				Channel:   s.Name,
				State:     s.State.String(),
				Failures:  s.Failures,
				Calls:     s.Calls,
				OpenUntil: s.OpenUntil,
			})
		}
	}

	writeJSON(w, status, res)
}

func (rt *router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		rt.logger.LogAttrs(r.Context(), slog.LevelDebug, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			logger.Duration(time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func runCheck(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
