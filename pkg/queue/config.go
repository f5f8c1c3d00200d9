package queue

import "time"

// Config is the env-driven per-channel worker pool configuration.
type Config struct {
	Workers        int           `env:"DISPATCH_WORKERS" envDefault:"4"`
	HandlerTimeout time.Duration `env:"DISPATCH_HANDLER_TIMEOUT" envDefault:"0s"`
}

// Options converts the config into queue options.
func (c Config) Options() []Option {
	return []Option{WithWorkers(c.Workers), WithHandlerTimeout(c.HandlerTimeout)}
}
