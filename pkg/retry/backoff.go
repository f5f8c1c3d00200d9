package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes the delay before the retry that follows the n-th
// transient failure, counting from zero. Implementations must be safe for
// concurrent use.
type Backoff interface {
	Interval(n int) time.Duration
}

// Exponential grows the delay as Initial * Multiplier^n, capped at Max.
// JitterFactor spreads each delay by up to ±JitterFactor of its value; the cap
// applies after jitter.
type Exponential struct {
	Initial      time.Duration
	Max          time.Duration
	Multiplier   float64
	JitterFactor float64
}

func (e Exponential) Interval(n int) time.Duration {
	n = max(n, 0)

	initial := e.Initial
	if initial <= 0 {
		initial = time.Second
	}
	limit := e.Max
	if limit <= 0 {
		limit = 5 * time.Minute
	}
	mult := e.Multiplier
	if mult < 1 {
		mult = 2
	}

	interval := float64(initial) * math.Pow(mult, float64(n))
	if e.JitterFactor > 0 {
		interval *= 1 + (rand.Float64()*2-1)*e.JitterFactor
	}
	if interval > float64(limit) || math.IsInf(interval, 0) {
		interval = float64(limit)
	}
	return time.Duration(interval)
}

// Constant waits the same delay between every retry.
type Constant time.Duration

func (c Constant) Interval(int) time.Duration {
	return time.Duration(c)
}

// DefaultBackoff doubles from one second up to five minutes with 10% jitter.
func DefaultBackoff() Backoff {
	return Exponential{
		Initial:      time.Second,
		Max:          5 * time.Minute,
		Multiplier:   2,
		JitterFactor: 0.1,
	}
}
