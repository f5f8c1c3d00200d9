package breaker

import (
	"errors"
	"time"
)

// Config is the env-driven breaker configuration shared by all channels.
type Config struct {
	WindowSize       int           `env:"DISPATCH_BREAKER_WINDOW" envDefault:"10"`
	FailureThreshold int           `env:"DISPATCH_BREAKER_THRESHOLD" envDefault:"5"`
	CoolDown         time.Duration `env:"DISPATCH_BREAKER_COOLDOWN" envDefault:"30s"`
}

func (c Config) Validate() error {
	if c.WindowSize < 1 {
		return errors.New("breaker window must be at least 1")
	}
	if c.FailureThreshold < 1 || c.FailureThreshold > c.WindowSize {
		return errors.New("breaker threshold must be between 1 and the window size")
	}
	if c.CoolDown <= 0 {
		return errors.New("breaker cool-down must be positive")
	}
	return nil
}

// Options converts the config into breaker options.
func (c Config) Options() []Option {
	return []Option{
		WithWindowSize(c.WindowSize),
		WithFailureThreshold(c.FailureThreshold),
		WithCoolDown(c.CoolDown),
	}
}
