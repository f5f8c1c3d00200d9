package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Sweep reschedules pending records no worker will pick up: records stuck in
// sending past the stale interval and queued or retrying records overdue by
// more than it, such as those left behind by a storage error. It returns the
// number of records rescheduled.
func (d *Dispatcher) Sweep(ctx context.Context) (int, error) {
	pending, err := d.storage.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("notifications: load pending records: %w", err)
	}

	cutoff := d.now().Add(-d.staleAfter())
	var (
		n    int
		errs []error
	)
	for _, p := range pending {
		if _, ok := d.queues[p.Channel()]; !ok {
			continue
		}
		ok, err := d.rescue(ctx, p.ID, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep %s: %w", p.ID, err))
			continue
		}
		if ok {
			n++
		}
	}

	if n > 0 {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "stranded notifications rescheduled",
			slog.Int("rescheduled", n),
		)
	}
	return n, errors.Join(errs...)
}

// staleAfter is how long a record may sit in sending, or past its due time,
// before the sweep takes it over.
func (d *Dispatcher) staleAfter() time.Duration {
	return max(2*d.sendTimeout, time.Minute)
}

func (d *Dispatcher) rescue(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	unlock := d.locks.Lock(id)
	defer unlock()

	rec, err := d.storage.Get(ctx, id)
	if err != nil {
		return false, err
	}

	switch rec.State {
	case StateSending:
		if d.isInflight(id) || rec.LastAttemptAt.After(cutoff) {
			return false, nil
		}
		rec.State = StateRetrying
		rec.NextAttemptAt = d.now()
		if rec, err = d.save(ctx, rec, StateSending); err != nil {
			return false, err
		}
	case StateQueued, StateRetrying:
		due := rec.runAt()
		if due.IsZero() {
			due = rec.UpdatedAt
		}
		if due.After(cutoff) || d.queues[rec.Channel()].Has(id) {
			return false, nil
		}
	default:
		return false, nil
	}

	d.logger.LogAttrs(ctx, slog.LevelWarn, "rescheduling stranded notification",
		logger.NotificationID(rec.ID),
		logger.Channel(string(rec.Channel())),
		logger.State(rec.State.String()),
	)
	d.schedule(ctx, rec)
	return true, nil
}

func (d *Dispatcher) isInflight(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[id]
	return ok
}

// sweepLoop runs Sweep every interval until ctx is done or stop is closed.
func (d *Dispatcher) sweepLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	tick := time.NewTicker(d.sweepInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-tick.C:
			if _, err := d.Sweep(ctx); err != nil {
				d.logger.LogAttrs(ctx, slog.LevelError, "pending sweep failed", logger.Error(err))
			}
		}
	}
}
