package queue

import (
	"log/slog"
	"time"
)

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets the number of concurrent handlers. Defaults to 1.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithHandlerTimeout bounds each handler call. Zero means no bound.
func WithHandlerTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.handlerTimeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}
