package notifications

import (
	"errors"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/breaker"
	"github.com/dmitrymomot/notifykit/pkg/dedup"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/retry"
)

// Config is the env-driven dispatcher configuration. The dedup backend is
// chosen by the caller; only its windows are applied here.
type Config struct {
	Queue   queue.Config
	Retry   retry.Config
	Breaker breaker.Config
	Dedup   dedup.Config

	SendTimeout     time.Duration `env:"DISPATCH_SEND_TIMEOUT" envDefault:"30s"`
	BulkConcurrency int           `env:"DISPATCH_BULK_CONCURRENCY" envDefault:"0"`
	SweepInterval   time.Duration `env:"DISPATCH_SWEEP_INTERVAL" envDefault:"1m"`
}

func (c Config) Validate() error {
	var errs []error
	if err := c.Retry.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Breaker.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Queue.Workers < 1 {
		errs = append(errs, errors.New("dispatch workers must be at least 1"))
	}
	if c.SweepInterval < 0 {
		errs = append(errs, errors.New("sweep interval must not be negative"))
	}
	if c.SendTimeout < 0 {
		errs = append(errs, errors.New("send timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// Options converts the config into dispatcher options.
func (c Config) Options() []Option {
	return []Option{
		WithQueueOptions(c.Queue.Options()...),
		WithRetryPolicy(c.Retry.Policy()),
		WithBreakerOptions(c.Breaker.Options()...),
		WithDedupWindows(c.Dedup.Windows()),
		WithSendTimeout(c.SendTimeout),
		WithBulkConcurrency(c.BulkConcurrency),
		WithSweepInterval(c.SweepInterval),
	}
}
