package dedup

import "time"

// Windows holds dedup TTLs per channel kind.
type Windows struct {
	// Default applies to channels without an entry in PerChannel.
	Default time.Duration
	// HighPriority, when positive, replaces the channel window for high and
	// urgent notifications.
	HighPriority time.Duration
	PerChannel   map[string]time.Duration
}

// For returns the window for a channel kind.
func (w Windows) For(channel string, highPriority bool) time.Duration {
	if highPriority && w.HighPriority > 0 {
		return w.HighPriority
	}
	if d, ok := w.PerChannel[channel]; ok && d > 0 {
		return d
	}
	if w.Default > 0 {
		return w.Default
	}
	return 10 * time.Minute
}

// Config is the env-driven dedup configuration.
type Config struct {
	Backend  string        `env:"DISPATCH_DEDUP_BACKEND" envDefault:"memory"` // memory or redis
	Capacity int           `env:"DISPATCH_DEDUP_CAPACITY" envDefault:"100000"`
	Default  time.Duration `env:"DISPATCH_DEDUP_WINDOW" envDefault:"10m"`
	Email    time.Duration `env:"DISPATCH_DEDUP_WINDOW_EMAIL" envDefault:"10m"`
	ChatBot  time.Duration `env:"DISPATCH_DEDUP_WINDOW_CHATBOT" envDefault:"5m"`
	Webhook  time.Duration `env:"DISPATCH_DEDUP_WINDOW_WEBHOOK" envDefault:"10m"`
	High     time.Duration `env:"DISPATCH_DEDUP_WINDOW_HIGH" envDefault:"1m"`
}

// Windows builds the per-channel windows keyed by channel kind name.
func (c Config) Windows() Windows {
	return Windows{
		Default:      c.Default,
		HighPriority: c.High,
		PerChannel: map[string]time.Duration{
			"email":   c.Email,
			"chatbot": c.ChatBot,
			"webhook": c.Webhook,
		},
	}
}
