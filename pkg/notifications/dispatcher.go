package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/notifykit/pkg/breaker"
	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/dedup"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/metrics"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/retry"
)

var (
	errRecordDeadline = errors.New("notification deadline exceeded")
	errSendTimeout    = errors.New("send timeout exceeded")
	errAdapterPanic   = errors.New("adapter panicked")
)

// Dispatcher accepts notifications and delivers them through channel
// adapters with dedup, circuit breaking and retries. Each channel kind has
// its own queue and worker pool.
type Dispatcher struct {
	adapters        map[channel.Kind]channel.Adapter
	storage         Storage
	guard           dedup.Guard
	windows         dedup.Windows
	policy          retry.Policy
	breakerOpts     []breaker.Option
	queueOpts       []queue.Option
	sendTimeout     time.Duration
	bulkConcurrency int
	sweepInterval   time.Duration
	publisher       Publisher
	metrics         *metrics.Collector
	logger          *slog.Logger
	now             func() time.Time

	breakers map[channel.Kind]*breaker.Breaker
	queues   map[channel.Kind]*queue.Queue
	locks    *keyedMutex

	mu        sync.Mutex
	inflight  map[string]context.CancelCauseFunc
	cancelReq map[string]struct{}
	stopped   bool
	sweepStop chan struct{}
	sweepDone chan struct{}
}

// New creates a Dispatcher. At least one adapter is required.
func New(opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		adapters: make(map[channel.Kind]channel.Adapter),
		windows: dedup.Windows{
			Default:      10 * time.Minute,
			HighPriority: time.Minute,
			PerChannel:   map[string]time.Duration{string(channel.KindChatBot): 5 * time.Minute},
		},
		policy:      retry.DefaultPolicy(),
		sendTimeout: 30 * time.Second,
		publisher:   NoOpPublisher{},
		logger:      slog.Default(),
		now:         time.Now,
		breakers:    make(map[channel.Kind]*breaker.Breaker),
		queues:      make(map[channel.Kind]*queue.Queue),
		locks:       newKeyedMutex(),
		inflight:    make(map[string]context.CancelCauseFunc),
		cancelReq:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if len(d.adapters) == 0 {
		return nil, ErrNoAdapters
	}
	if d.storage == nil {
		d.storage = NewMemoryStorage()
	}
	if d.guard == nil {
		d.guard = dedup.NewMemoryGuard(0)
	}
	if d.bulkConcurrency <= 0 {
		d.bulkConcurrency = 4 * len(d.adapters)
	}

	base := d.logger
	d.logger = base.With(logger.Component("dispatcher"))

	for kind := range d.adapters {
		bopts := append(slices.Clone(d.breakerOpts),
			breaker.WithClassifier(breakerOutcome),
			breaker.WithOnStateChange(d.breakerChanged),
		)
		d.breakers[kind] = breaker.New(string(kind), bopts...)

		qopts := append([]queue.Option{queue.WithWorkers(4), queue.WithLogger(base)}, d.queueOpts...)
		q, err := queue.New(string(kind), d.handle, qopts...)
		if err != nil {
			return nil, fmt.Errorf("notifications: create %s queue: %w", kind, err)
		}
		d.queues[kind] = q
	}
	return d, nil
}

// Channels returns the registered channel kinds, sorted.
func (d *Dispatcher) Channels() []channel.Kind {
	return slices.Sorted(maps.Keys(d.adapters))
}

// BreakerStats returns a snapshot of every channel breaker.
func (d *Dispatcher) BreakerStats() []breaker.Stats {
	out := make([]breaker.Stats, 0, len(d.breakers))
	for _, kind := range d.Channels() {
		out = append(out, d.breakers[kind].Stats())
	}
	return out
}

// Submit validates req, records it as queued and schedules its delivery.
// It never waits on network I/O. A re-submitted id returns the existing
// record. A duplicate within the dedup window is recorded as
// DuplicateSuppressed and returned with a nil error. A deadline on ctx
// becomes the record's delivery deadline.
func (d *Dispatcher) Submit(ctx context.Context, req Request) (Record, error) {
	if d.isStopped() {
		return Record{}, ErrStopped
	}

	req = req.normalize(d.now())
	kind := string(req.Channel)

	adapter, ok := d.adapters[req.Channel]
	if !ok {
		d.metrics.Submitted(kind, "rejected")
		return Record{}, invalid("channel", fmt.Errorf("%w: %q", ErrUnknownChannel, req.Channel))
	}
	if !req.Priority.Valid() {
		d.metrics.Submitted(kind, "rejected")
		return Record{}, invalid("priority", fmt.Errorf("unknown priority %d", int(req.Priority)))
	}
	if strings.TrimSpace(req.Body) == "" {
		d.metrics.Submitted(kind, "rejected")
		return Record{}, invalid("body", errors.New("body is required"))
	}
	if err := adapter.ValidateRecipient(req.Recipient); err != nil {
		d.metrics.Submitted(kind, "rejected")
		return Record{}, invalid("recipient", err)
	}

	unlock := d.locks.Lock(req.ID)
	defer unlock()

	existing, err := d.storage.Get(ctx, req.ID)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, ErrNotFound):
		return Record{}, fmt.Errorf("notifications: load record: %w", err)
	}

	window := d.windows.For(kind, req.Priority.High())
	acquired, err := d.guard.Acquire(ctx, req.IdempotencyKey, window)
	if err != nil {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "dedup check failed, sending anyway",
			logger.NotificationID(req.ID),
			logger.IdempotencyKey(req.IdempotencyKey),
			logger.Error(err),
		)
		acquired = true
	}

	now := d.now()
	rec := Record{
		ID:        req.ID,
		Request:   req,
		State:     StateQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if dl, ok := ctx.Deadline(); ok {
		rec.Deadline = dl
	}

	if err := d.storage.Create(ctx, rec); err != nil {
		if acquired {
			d.releaseKey(ctx, req.IdempotencyKey)
		}
		if errors.Is(err, ErrAlreadyExists) {
			return d.storage.Get(ctx, req.ID)
		}
		return Record{}, fmt.Errorf("notifications: create record: %w", err)
	}

	if !acquired {
		d.metrics.Submitted(kind, "duplicate")
		rec.State = StateDuplicateSuppressed
		rec.Reason = ReasonDuplicate
		rec, err = d.save(ctx, rec, StateQueued)
		if err != nil {
			return rec, fmt.Errorf("notifications: suppress duplicate: %w", err)
		}
		d.finished(ctx, rec)
		return rec, nil
	}

	d.metrics.Submitted(kind, "accepted")
	d.logger.LogAttrs(ctx, slog.LevelDebug, "notification queued",
		logger.NotificationID(rec.ID),
		logger.Channel(kind),
		slog.String("priority", req.Priority.String()),
	)
	d.schedule(ctx, rec)
	return rec, nil
}

// SubmitResult pairs a bulk request with its outcome.
type SubmitResult struct {
	Record Record
	Err    error
}

// SubmitBulk submits every request with bounded concurrency. Results are in
// input order and a failed request never aborts the others.
func (d *Dispatcher) SubmitBulk(ctx context.Context, reqs []Request) []SubmitResult {
	results := make([]SubmitResult, len(reqs))

	var g errgroup.Group
	g.SetLimit(d.bulkConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			rec, err := d.Submit(ctx, req)
			results[i] = SubmitResult{Record: rec, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// GetStatus returns the current record for id, or ErrNotFound.
func (d *Dispatcher) GetStatus(ctx context.Context, id string) (Record, error) {
	return d.storage.Get(ctx, id)
}

// Attempts returns the attempt history of a notification.
func (d *Dispatcher) Attempts(ctx context.Context, id string) ([]Attempt, error) {
	return d.storage.Attempts(ctx, id)
}

// List returns ledger records matching opts, newest first.
func (d *Dispatcher) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	return d.storage.List(ctx, opts)
}

// Cancel aborts an in-flight send or a pending retry and marks the record
// failed with reason canceled. A terminal record is returned unchanged, so a
// send that completed first stays delivered.
func (d *Dispatcher) Cancel(ctx context.Context, id string) (Record, error) {
	d.mu.Lock()
	d.cancelReq[id] = struct{}{}
	if cancel, ok := d.inflight[id]; ok {
		cancel(ErrCanceled)
	}
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.cancelReq, id)
		d.mu.Unlock()
	}()

	unlock := d.locks.Lock(id)
	defer unlock()

	rec, err := d.storage.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if rec.State.Terminal() {
		return rec, nil
	}
	if q, ok := d.queues[rec.Channel()]; ok {
		q.Remove(id)
	}
	return d.fail(ctx, rec, ReasonCanceled, ErrCanceled.Error())
}

// Recover schedules every non-terminal record found in storage. Records left
// in sending by a previous process are moved to retrying first. It returns
// the number of records scheduled.
func (d *Dispatcher) Recover(ctx context.Context) (int, error) {
	pending, err := d.storage.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("notifications: load pending records: %w", err)
	}

	var (
		n    int
		errs []error
	)
	for _, p := range pending {
		if _, ok := d.queues[p.Channel()]; !ok {
			d.logger.LogAttrs(ctx, slog.LevelWarn, "no adapter for pending notification",
				logger.NotificationID(p.ID),
				logger.Channel(string(p.Channel())),
			)
			continue
		}

		rec, err := d.reclaim(ctx, p.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("recover %s: %w", p.ID, err))
			continue
		}
		if rec.State.Terminal() {
			continue
		}
		d.schedule(ctx, rec)
		n++
	}

	d.logger.LogAttrs(ctx, slog.LevelInfo, "pending notifications recovered",
		slog.Int("scheduled", n),
		slog.Int("found", len(pending)),
	)
	return n, errors.Join(errs...)
}

func (d *Dispatcher) reclaim(ctx context.Context, id string) (Record, error) {
	unlock := d.locks.Lock(id)
	defer unlock()

	rec, err := d.storage.Get(ctx, id)
	if err != nil || rec.State != StateSending {
		return rec, err
	}
	rec.State = StateRetrying
	rec.NextAttemptAt = d.now()
	return d.save(ctx, rec, StateSending)
}

// Start launches the channel workers.
func (d *Dispatcher) Start(ctx context.Context) error {
	for _, kind := range d.Channels() {
		if err := d.queues[kind].Start(ctx); err != nil {
			return fmt.Errorf("notifications: start %s queue: %w", kind, err)
		}
	}
	if d.sweepInterval > 0 {
		d.mu.Lock()
		if d.sweepStop == nil {
			d.sweepStop, d.sweepDone = make(chan struct{}), make(chan struct{})
			go d.sweepLoop(ctx, d.sweepStop, d.sweepDone)
		}
		d.mu.Unlock()
	}
	d.logger.LogAttrs(ctx, slog.LevelInfo, "dispatcher started",
		slog.Int("channels", len(d.queues)),
	)
	return nil
}

// Stop stops accepting submissions and waits for in-flight sends. Pending
// retries stay in storage for Recover.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	d.stopped = true
	stop, done := d.sweepStop, d.sweepDone
	d.sweepStop = nil
	d.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}

	var errs []error
	for _, kind := range d.Channels() {
		if err := d.queues[kind].Stop(); err != nil && !errors.Is(err, queue.ErrNotStarted) {
			errs = append(errs, fmt.Errorf("stop %s queue: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}

// Run starts the dispatcher and stops it when ctx is done. It fits errgroup.Go.
func (d *Dispatcher) Run(ctx context.Context) func() error {
	return func() error {
		if err := d.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return d.Stop()
	}
}

func (d *Dispatcher) isStopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

func (d *Dispatcher) schedule(ctx context.Context, rec Record) {
	kind := rec.Channel()
	q := d.queues[kind]
	err := q.Enqueue(queue.Task{
		ID:       rec.ID,
		Priority: int(rec.Request.Priority),
		RunAt:    rec.runAt(),
	})
	if err != nil && !errors.Is(err, queue.ErrDuplicateTask) {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "notification not scheduled, left for recovery",
			logger.NotificationID(rec.ID),
			logger.Channel(string(kind)),
			logger.Error(err),
		)
	}
	d.metrics.QueueDepth(string(kind), q.Len())
}

// save validates and persists a transition from the given state.
func (d *Dispatcher) save(ctx context.Context, rec Record, from State) (Record, error) {
	if !CanTransition(from, rec.State) {
		return rec, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, rec.State)
	}
	rec.UpdatedAt = d.now()
	if err := d.storage.Update(ctx, rec, from); err != nil {
		return rec, err
	}
	return rec, nil
}

func (d *Dispatcher) fail(ctx context.Context, rec Record, reason Reason, msg string) (Record, error) {
	from := rec.State
	rec.State = StateFailed
	rec.Reason = reason
	rec.LastError = msg
	rec.NextAttemptAt = time.Time{}
	rec, err := d.save(ctx, rec, from)
	if err != nil {
		return rec, err
	}
	d.finished(ctx, rec)
	return rec, nil
}

// finished runs the side effects of a terminal transition.
func (d *Dispatcher) finished(ctx context.Context, rec Record) {
	kind := string(rec.Channel())
	d.metrics.Terminal(kind, rec.State.String())

	level := slog.LevelInfo
	if rec.State == StateFailed {
		level = slog.LevelWarn
		d.releaseKey(ctx, rec.Request.IdempotencyKey)
	}
	d.logger.LogAttrs(ctx, level, "notification finished",
		logger.NotificationID(rec.ID),
		logger.Channel(kind),
		logger.State(rec.State.String()),
		logger.Reason(rec.Reason.String()),
		logger.Attempt(rec.Attempts),
	)

	err := d.publisher.Publish(ctx, eventFor(rec))
	d.metrics.EventPublished(err)
	if err != nil {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "delivery event not published",
			logger.NotificationID(rec.ID),
			logger.Error(err),
		)
	}
}

func (d *Dispatcher) releaseKey(ctx context.Context, key string) {
	if err := d.guard.Release(ctx, key); err != nil {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "dedup key not released",
			logger.IdempotencyKey(key),
			logger.Error(err),
		)
	}
}

func (d *Dispatcher) cancelRequested(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.cancelReq[id]
	return ok
}

// trackInflight registers cancel for id, firing it at once when a Cancel
// is already waiting.
func (d *Dispatcher) trackInflight(id string, cancel context.CancelCauseFunc) func() {
	d.mu.Lock()
	if _, ok := d.cancelReq[id]; ok {
		cancel(ErrCanceled)
	}
	d.inflight[id] = cancel
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.inflight, id)
		d.mu.Unlock()
	}
}

func (d *Dispatcher) breakerChanged(name string, from, to breaker.State) {
	d.metrics.BreakerState(name, int(to))
	level := slog.LevelInfo
	if to == breaker.StateOpen {
		level = slog.LevelWarn
	}
	d.logger.LogAttrs(context.Background(), level, "circuit breaker state changed",
		logger.Channel(name),
		slog.String("from", from.String()),
		logger.State(to.String()),
	)
}

// breakerOutcome counts transient failures against a channel. A permanent
// rejection proves the provider is reachable. Cancellations say nothing
// about its health.
func breakerOutcome(err error) breaker.Outcome {
	switch {
	case err == nil:
		return breaker.Success
	case channel.IsTransient(err):
		return breaker.Failure
	case channel.IsPermanent(err):
		return breaker.Success
	default:
		return breaker.Ignore
	}
}
