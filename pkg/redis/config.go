package redis

import (
	"errors"
	"time"
)

type Config struct {
	ConnectionURL  string        `env:"REDIS_URL"`                              // ConnectionURL such as "redis://:password@localhost:6379/0". Empty disables Redis.
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`    // RetryAttempts is the number of attempts to connect.
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`   // RetryInterval is the wait between attempts.
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"` // ConnectTimeout bounds all attempts together.
	EventsChannel  string        `env:"REDIS_EVENTS_CHANNEL" envDefault:"notifykit:events"`
	DedupPrefix    string        `env:"REDIS_DEDUP_PREFIX" envDefault:"notifykit:dedup:"`
}

// Enabled reports whether a Redis URL is configured.
func (c Config) Enabled() bool { return c.ConnectionURL != "" }

func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.RetryAttempts < 1 {
		return errors.New("redis: retry attempts must be at least 1")
	}
	if c.EventsChannel == "" {
		return errors.New("redis: events channel is required")
	}
	return nil
}
