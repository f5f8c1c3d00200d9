package notifications

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/breaker"
	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/dedup"
	"github.com/dmitrymomot/notifykit/pkg/metrics"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/retry"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithAdapter registers the adapter for its channel kind, replacing any
// adapter already registered for that kind.
func WithAdapter(a channel.Adapter) Option {
	return func(d *Dispatcher) {
		if a != nil {
			d.adapters[a.Kind()] = a
		}
	}
}

// WithStorage sets the delivery ledger. Default is a MemoryStorage.
func WithStorage(s Storage) Option {
	return func(d *Dispatcher) { d.storage = s }
}

// WithGuard sets the dedup guard. Default is an in-memory guard.
func WithGuard(g dedup.Guard) Option {
	return func(d *Dispatcher) { d.guard = g }
}

func WithDedupWindows(w dedup.Windows) Option {
	return func(d *Dispatcher) { d.windows = w }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

// WithBreakerOptions applies opts to every channel breaker. The classifier
// and state change hook are always set by the dispatcher.
func WithBreakerOptions(opts ...breaker.Option) Option {
	return func(d *Dispatcher) { d.breakerOpts = append(d.breakerOpts, opts...) }
}

// WithQueueOptions applies opts to every channel queue.
func WithQueueOptions(opts ...queue.Option) Option {
	return func(d *Dispatcher) { d.queueOpts = append(d.queueOpts, opts...) }
}

// WithSendTimeout bounds a single adapter call. Zero disables the bound.
func WithSendTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.sendTimeout = t }
}

// WithSweepInterval makes the running dispatcher call Sweep periodically.
// Zero disables the sweep.
func WithSweepInterval(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.sweepInterval = d }
}

// WithBulkConcurrency caps concurrent Submit calls in SubmitBulk.
// Default is four per registered channel.
func WithBulkConcurrency(n int) Option {
	return func(d *Dispatcher) { d.bulkConcurrency = n }
}

func WithPublisher(p Publisher) Option {
	return func(d *Dispatcher) {
		if p != nil {
			d.publisher = p
		}
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(d *Dispatcher) { d.metrics = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock overrides the time source for record timestamps and deadlines.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}
