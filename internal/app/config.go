package app

import (
	"errors"
	"fmt"

	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/redis"
)

// Config is the complete notifyd configuration, read from the environment
// by config.Load.
type Config struct {
	Log      logger.Config
	Dispatch notifications.Config
	HTTP     httpserver.Config
	PG       pg.Config
	Redis    redis.Config

	EmailEnabled   bool `env:"EMAIL_ENABLED" envDefault:"true"`
	WebhookEnabled bool `env:"WEBHOOK_ENABLED" envDefault:"true"`
	Email          email.Config
	ChatBot        channel.ChatBotConfig
	Webhook        channel.WebhookConfig
}

func (c Config) Validate() error {
	var errs []error
	if err := c.Dispatch.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.PG.Enabled() {
		if err := c.PG.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.Redis.Validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.Dispatch.Dedup.Backend {
	case "", "memory":
	case "redis":
		if !c.Redis.Enabled() {
			errs = append(errs, errors.New("redis dedup backend requires REDIS_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown dedup backend %q", c.Dispatch.Dedup.Backend))
	}

	if !c.EmailEnabled && !c.WebhookEnabled && !c.ChatBot.Enabled() {
		errs = append(errs, errors.New("no channel enabled"))
	}
	return errors.Join(errs...)
}
