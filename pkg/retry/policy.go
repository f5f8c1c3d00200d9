package retry

import (
	"errors"
	"time"
)

// Kind classifies the result of a delivery attempt for retry decisions.
type Kind int

const (
	// Transient failures are retried with growing backoff.
	Transient Kind = iota
	// Permanent failures are never retried.
	Permanent
	// CircuitOpen means the call was rejected by a breaker without reaching the
	// provider. It uses up an attempt but does not grow the backoff.
	CircuitOpen
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	case CircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Decision is the outcome of Policy.Decide.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Policy bounds how many attempts a delivery gets and how long to wait between them.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
}

// Config is the env-driven retry configuration.
type Config struct {
	MaxAttempts    int           `env:"DISPATCH_MAX_ATTEMPTS" envDefault:"3"`
	InitialBackoff time.Duration `env:"DISPATCH_BACKOFF_INITIAL" envDefault:"1s"`
	MaxBackoff     time.Duration `env:"DISPATCH_BACKOFF_MAX" envDefault:"5m"`
	Multiplier     float64       `env:"DISPATCH_BACKOFF_MULTIPLIER" envDefault:"2"`
	Jitter         float64       `env:"DISPATCH_BACKOFF_JITTER" envDefault:"0.1"`
}

func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return errors.New("max attempts must be at least 1")
	}
	if c.InitialBackoff <= 0 || c.MaxBackoff < c.InitialBackoff {
		return errors.New("backoff bounds must be positive and ordered")
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		return errors.New("backoff jitter must be in [0, 1)")
	}
	return nil
}

// Policy builds an exponential policy from the config.
func (c Config) Policy() Policy {
	return Policy{
		MaxAttempts: c.MaxAttempts,
		Backoff: Exponential{
			Initial:      c.InitialBackoff,
			Max:          c.MaxBackoff,
			Multiplier:   c.Multiplier,
			JitterFactor: c.Jitter,
		},
	}
}

// DefaultPolicy allows three attempts with DefaultBackoff between them.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Backoff: DefaultBackoff()}
}

// Decide reports whether a delivery should be attempted again.
// attempts is the number of attempts made so far, including the one that
// just failed; transientFailures counts only those that failed transiently.
func (p Policy) Decide(kind Kind, attempts, transientFailures int) Decision {
	if kind == Permanent {
		return Decision{}
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if attempts >= maxAttempts {
		return Decision{}
	}

	backoff := p.Backoff
	if backoff == nil {
		backoff = DefaultBackoff()
	}
	return Decision{Retry: true, Delay: backoff.Interval(max(transientFailures-1, 0))}
}
