package breaker

import "time"

// Option configures a Breaker.
type Option func(*Breaker)

// WithWindowSize sets how many recent outcomes are kept. Values below 1 are ignored.
func WithWindowSize(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.windowSize = n
		}
	}
}

// WithFailureThreshold sets how many failures in the window open the breaker.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithCoolDown sets how long the breaker stays open before admitting a probe.
func WithCoolDown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.coolDown = d
		}
	}
}

func WithClassifier(c Classifier) Option {
	return func(b *Breaker) {
		if c != nil {
			b.classify = c
		}
	}
}

// WithOnStateChange registers a hook called after every transition, outside the lock.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}
