package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultClassifier ignores context cancellation and counts every other error as a failure.
func DefaultClassifier(err error) Outcome {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Ignore
	default:
		return Failure
	}
}

// Breaker is a sliding-window circuit breaker. Safe for concurrent use.
type Breaker struct {
	name       string
	windowSize int
	threshold  int
	coolDown   time.Duration
	classify   Classifier
	onChange   func(name string, from, to State)
	now        func() time.Time

	mu         sync.Mutex
	state      State
	generation uint64
	window     []bool // true marks a failure
	next       int
	filled     int
	failures   int
	openedAt   time.Time
	changedAt  time.Time
	probing    bool
}

// New creates a closed breaker. The name is passed to the state change hook.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:       name,
		windowSize: 10,
		threshold:  5,
		coolDown:   30 * time.Second,
		classify:   DefaultClassifier,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.threshold > b.windowSize {
		b.threshold = b.windowSize
	}
	b.window = make([]bool, b.windowSize)
	b.changedAt = b.now()
	return b
}

func (b *Breaker) Name() string { return b.name }

// Execute runs fn if the breaker admits the call and records its outcome.
// It returns ErrOpen without calling fn when the breaker is open or a
// half-open probe is already in flight. A panic in fn is recorded as a
// failure and then propagates.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	gen, probe, err := b.allow()
	if err != nil {
		return err
	}

	returned := false
	defer func() {
		if !returned {
			b.record(gen, probe, Failure)
		}
	}()
	err = fn(ctx)
	returned = true

	b.record(gen, probe, b.classify(err))
	return err
}

// Allow admits a call. The returned done func must be called exactly once with
// the call's result. Results reported after the breaker has changed state since
// admission are discarded.
func (b *Breaker) Allow() (done func(error), err error) {
	gen, probe, err := b.allow()
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func(err error) {
		once.Do(func() { b.record(gen, probe, b.classify(err)) })
	}, nil
}

func (b *Breaker) allow() (gen uint64, probe bool, err error) {
	b.mu.Lock()
	from := b.state
	gen, probe, err = b.admit()
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
	return gen, probe, err
}

// admit decides whether a call may proceed. Caller holds the lock.
func (b *Breaker) admit() (gen uint64, probe bool, err error) {
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.coolDown {
			return 0, false, ErrOpen
		}
		b.setState(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if b.probing {
			return 0, false, ErrOpen
		}
		b.probing = true
		return b.generation, true, nil
	default:
		return b.generation, false, nil
	}
}

func (b *Breaker) record(gen uint64, probe bool, outcome Outcome) {
	b.mu.Lock()
	from := b.state
	if gen == b.generation {
		if probe {
			b.recordProbe(outcome)
		} else {
			b.recordClosed(outcome)
		}
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

func (b *Breaker) recordProbe(outcome Outcome) {
	switch outcome {
	case Success:
		b.setState(StateClosed)
	case Failure:
		b.trip()
	default:
		b.probing = false
	}
}

func (b *Breaker) recordClosed(outcome Outcome) {
	if outcome == Ignore {
		return
	}
	failed := outcome == Failure
	if b.filled == b.windowSize {
		if b.window[b.next] {
			b.failures--
		}
	} else {
		b.filled++
	}
	b.window[b.next] = failed
	b.next = (b.next + 1) % b.windowSize
	if failed {
		b.failures++
	}
	if b.failures >= b.threshold {
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.openedAt = b.now()
	b.setState(StateOpen)
}

// setState moves to s, bumps the generation and clears per-state bookkeeping.
// Caller holds the lock.
func (b *Breaker) setState(s State) {
	b.state = s
	b.generation++
	b.probing = false
	b.changedAt = b.now()
	if s == StateClosed {
		clear(b.window)
		b.next, b.filled, b.failures = 0, 0, 0
	}
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}

// State returns the current state. An open breaker whose cool-down has passed
// still reports Open until the next call is admitted.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RetryAfter returns the remaining cool-down, or zero when calls are admitted.
func (b *Breaker) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return 0
	}
	return max(b.openedAt.Add(b.coolDown).Sub(b.now()), 0)
}

// Reset closes the breaker and clears its window.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.setState(StateClosed)
	b.mu.Unlock()
	b.notify(from, StateClosed)
}

// Stats is a point-in-time view of a breaker.
type Stats struct {
	Name       string
	State      State
	Failures   int
	Calls      int
	LastChange time.Time
	OpenUntil  time.Time
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		Name:       b.name,
		State:      b.state,
		Failures:   b.failures,
		Calls:      b.filled,
		LastChange: b.changedAt,
	}
	if b.state == StateOpen {
		s.OpenUntil = b.openedAt.Add(b.coolDown)
	}
	return s
}
