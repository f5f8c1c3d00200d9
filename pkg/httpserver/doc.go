// Package httpserver serves the operational endpoints of notifyd.
//
// NewRouter builds a chi router with /healthz, /readyz and /metrics. Readiness
// runs the registered checks (Postgres, Redis) concurrently with a timeout and
// reports the state of every channel circuit breaker. Server runs any handler
// until its context ends and then shuts down gracefully.
//
//	h := httpserver.NewRouter(
//	    httpserver.WithCheck("postgres", pg.Healthcheck(pool)),
//	    httpserver.WithBreakerStats(dispatcher.BreakerStats),
//	    httpserver.WithMetricsHandler(metrics.Handler(registry)),
//	)
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	g.Go(func() error { return srv.Run(ctx, h) })
//
// Run wraps listen errors with ErrStart and Shutdown wraps shutdown errors
// with ErrShutdown.
package httpserver
