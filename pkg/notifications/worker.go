package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/breaker"
	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/retry"
)

type attemptResult struct {
	outcome  channel.Outcome
	err      error
	cause    error // context cause when the call context ended
	started  time.Time
	duration time.Duration
}

// handle runs one delivery attempt for a queued task.
func (d *Dispatcher) handle(ctx context.Context, task queue.Task) error {
	unlock := d.locks.Lock(task.ID)
	defer unlock()

	rec, err := d.storage.Get(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}
	kind := rec.Channel()
	defer func() { d.metrics.QueueDepth(string(kind), d.queues[kind].Len()) }()

	switch {
	case rec.State.Terminal():
		return nil
	case rec.State == StateSending:
		// another process owns it, or Recover has not run yet
		d.logger.LogAttrs(ctx, slog.LevelDebug, "skipping record already sending",
			logger.NotificationID(rec.ID))
		return nil
	case d.cancelRequested(rec.ID):
		_, err := d.fail(ctx, rec, ReasonCanceled, ErrCanceled.Error())
		return err
	case rec.deadlinePassed(d.now()):
		_, err := d.fail(ctx, rec, ReasonDeadlineExceeded, errRecordDeadline.Error())
		return err
	}

	from := rec.State
	rec.State = StateSending
	rec.Attempts++
	rec.LastAttemptAt = d.now()
	rec.NextAttemptAt = time.Time{}
	rec, err = d.save(ctx, rec, from)
	if err != nil {
		return fmt.Errorf("mark sending: %w", err)
	}

	res := d.attempt(ctx, rec)

	var (
		rkind  retry.Kind
		reason Reason
	)
	switch {
	case res.err == nil:
		d.record(ctx, rec, res, OutcomeDelivered)
		rec.State = StateDelivered
		rec.DeliveredAt = d.now()
		rec.Reason = ReasonNone
		rec.LastError = ""
		if rec, err = d.save(ctx, rec, StateSending); err != nil {
			return fmt.Errorf("mark delivered: %w", err)
		}
		d.finished(ctx, rec)
		return nil
	case errors.Is(res.err, breaker.ErrOpen):
		rkind, reason = retry.CircuitOpen, ReasonCircuitOpen
	case channel.IsPermanent(res.err):
		rkind, reason = retry.Permanent, ReasonPermanent
	case channel.IsTransient(res.err):
		rkind, reason = retry.Transient, ReasonTransient
		rec.TransientFailures++
	case errors.Is(res.cause, ErrCanceled):
		d.record(ctx, rec, res, string(ReasonCanceled))
		_, err := d.fail(ctx, rec, ReasonCanceled, res.err.Error())
		return err
	default:
		d.record(ctx, rec, res, string(ReasonDeadlineExceeded))
		_, err := d.fail(ctx, rec, ReasonDeadlineExceeded, res.err.Error())
		return err
	}
	d.record(ctx, rec, res, string(reason))

	dec := d.policy.Decide(rkind, rec.Attempts, rec.TransientFailures)
	if !dec.Retry {
		_, err := d.fail(ctx, rec, reason, res.err.Error())
		return err
	}

	delay := max(dec.Delay, channel.RetryAfter(res.err))
	if rkind == retry.CircuitOpen {
		delay = max(delay, d.breakers[kind].RetryAfter())
	}
	next := d.now().Add(delay)
	if !rec.Deadline.IsZero() && next.After(rec.Deadline) {
		_, err := d.fail(ctx, rec, ReasonDeadlineExceeded, res.err.Error())
		return err
	}

	rec.State = StateRetrying
	rec.Reason = reason
	rec.LastError = res.err.Error()
	rec.NextAttemptAt = next
	if rec, err = d.save(ctx, rec, StateSending); err != nil {
		return fmt.Errorf("mark retrying: %w", err)
	}

	d.logger.LogAttrs(ctx, slog.LevelInfo, "delivery attempt failed, retry scheduled",
		logger.NotificationID(rec.ID),
		logger.Channel(string(kind)),
		logger.Attempt(rec.Attempts),
		logger.Reason(reason.String()),
		logger.Delay(delay),
		logger.Error(res.err),
	)
	d.schedule(ctx, rec)
	return nil
}

// attempt calls the adapter through the channel breaker under the record
// deadline, the per-call timeout and Cancel.
func (d *Dispatcher) attempt(ctx context.Context, rec Record) attemptResult {
	kind := rec.Channel()

	callCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if !rec.Deadline.IsZero() {
		var stop context.CancelFunc
		callCtx, stop = context.WithDeadlineCause(callCtx, rec.Deadline, errRecordDeadline)
		defer stop()
	}
	if d.sendTimeout > 0 {
		var stop context.CancelFunc
		callCtx, stop = context.WithTimeoutCause(callCtx, d.sendTimeout, errSendTimeout)
		defer stop()
	}
	untrack := d.trackInflight(rec.ID, cancel)
	defer untrack()

	adapter := d.adapters[kind]
	msg := channel.Message{
		ID:        rec.ID,
		Recipient: rec.Request.Recipient,
		Title:     rec.Request.Title,
		Body:      rec.Request.Body,
		Metadata:  rec.Request.Metadata,
	}

	res := attemptResult{started: d.now()}
	begin := time.Now()
	res.err = d.breakers[kind].Execute(callCtx, func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				d.logger.LogAttrs(ctx, slog.LevelError, "adapter panicked",
					logger.NotificationID(rec.ID),
					logger.Channel(string(kind)),
					slog.Any("panic", r),
				)
				err = channel.Transient(kind, 0, fmt.Errorf("%w: %v", errAdapterPanic, r))
			}
		}()
		out, err := adapter.Send(ctx, msg)
		res.outcome = out
		return normalizeSendError(ctx, kind, err)
	})
	res.duration = time.Since(begin)
	if callCtx.Err() != nil {
		res.cause = context.Cause(callCtx)
	}
	return res
}

// normalizeSendError makes sure every adapter error is classified. A call
// cut short by the per-call timeout, or an adapter-side timeout while the
// call context is alive, is transient. Cancel and the record deadline pass
// through as context errors.
func normalizeSendError(ctx context.Context, kind channel.Kind, err error) error {
	switch {
	case err == nil:
		return nil
	case channel.IsTransient(err), channel.IsPermanent(err):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		if ctx.Err() == nil || errors.Is(context.Cause(ctx), errSendTimeout) {
			return channel.Transient(kind, 0, err)
		}
		return err
	default:
		return channel.Transient(kind, 0, err)
	}
}

// record appends the attempt to the ledger and the metrics.
func (d *Dispatcher) record(ctx context.Context, rec Record, res attemptResult, outcome string) {
	kind := string(rec.Channel())
	d.metrics.Attempt(kind, outcome, res.duration)

	a := Attempt{
		NotificationID: rec.ID,
		Number:         rec.Attempts,
		Outcome:        outcome,
		StatusCode:     res.outcome.StatusCode,
		ProviderID:     res.outcome.ProviderID,
		StartedAt:      res.started,
		Duration:       res.duration,
	}
	if res.err != nil {
		a.Error = res.err.Error()
		var ce *channel.Error
		if errors.As(res.err, &ce) {
			a.StatusCode = ce.StatusCode
		}
	}
	if err := d.storage.AppendAttempt(ctx, a); err != nil {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "attempt not recorded",
			logger.NotificationID(rec.ID),
			logger.Attempt(rec.Attempts),
			logger.Error(err),
		)
	}
}
