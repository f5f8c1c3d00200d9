package queue

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Queue is a delayed priority queue with a fixed worker pool.
type Queue struct {
	name           string
	handler        Handler
	workers        int
	handlerTimeout time.Duration
	logger         *slog.Logger

	mu      sync.Mutex
	ready   readyHeap
	delayed delayedHeap
	pending map[string]*item
	seq     uint64
	stopped bool
	cancel  context.CancelFunc

	wake chan struct{}
	wg   sync.WaitGroup
}

// New creates a queue. The name is used in logs only.
func New(name string, handler Handler, opts ...Option) (*Queue, error) {
	if handler == nil {
		return nil, ErrHandlerNil
	}
	q := &Queue{
		name:    name,
		handler: handler,
		workers: 1,
		logger:  slog.Default(),
		pending: make(map[string]*item),
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With(logger.Component("queue"), slog.String("queue", name))
	return q, nil
}

func (q *Queue) Name() string { return q.name }

// Enqueue adds a task. A zero RunAt means now.
func (q *Queue) Enqueue(t Task) error {
	if t.ID == "" {
		return ErrEmptyTaskID
	}
	now := time.Now()
	if t.RunAt.IsZero() {
		t.RunAt = now
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrStopped
	}
	if _, ok := q.pending[t.ID]; ok {
		q.mu.Unlock()
		return ErrDuplicateTask
	}
	q.seq++
	it := &item{task: t, seq: q.seq}
	q.pending[t.ID] = it
	if t.RunAt.After(now) {
		it.delayed = true
		heap.Push(&q.delayed, it)
	} else {
		heap.Push(&q.ready, it)
	}
	q.mu.Unlock()

	q.signal()
	return nil
}

// Remove drops a pending task and reports whether it was found.
// A task already handed to a worker is not affected.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.pending[id]
	if !ok {
		return false
	}
	delete(q.pending, id)
	if it.delayed {
		heap.Remove(&q.delayed, it.index)
	} else {
		heap.Remove(&q.ready, it.index)
	}
	return true
}

// Has reports whether a task with id is pending.
func (q *Queue) Has(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[id]
	return ok
}

// Len returns the number of pending tasks, due or not.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Start launches the workers. Tasks enqueued before Start are kept.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrStopped
	}
	if q.cancel != nil {
		q.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.mu.Unlock()

	q.wg.Add(q.workers)
	for range q.workers {
		go q.work(ctx)
	}

	q.logger.LogAttrs(ctx, slog.LevelDebug, "queue started", slog.Int("workers", q.workers))
	return nil
}

// Stop stops the workers and waits for running handlers to return.
// The queue cannot be restarted.
func (q *Queue) Stop() error {
	q.mu.Lock()
	if q.cancel == nil {
		q.mu.Unlock()
		return ErrNotStarted
	}
	cancel := q.cancel
	q.cancel = nil
	q.stopped = true
	dropped := len(q.pending)
	q.mu.Unlock()

	cancel()
	q.wg.Wait()

	q.logger.LogAttrs(context.Background(), slog.LevelDebug, "queue stopped",
		slog.Int("pending", dropped))
	return nil
}

// Run starts the queue and returns a function suitable for errgroup.
func (q *Queue) Run(ctx context.Context) func() error {
	return func() error {
		if err := q.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return q.Stop()
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		task, wait, ok := q.next()
		if ok {
			q.process(task)
			continue
		}

		if wait > 0 {
			timer.Reset(wait)
		}
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// next pops the most urgent due task. When nothing is due it returns the time
// until the earliest delayed task, or zero if there is none.
func (q *Queue) next() (Task, time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for q.delayed.Len() > 0 && !q.delayed.readyHeap[0].task.RunAt.After(now) {
		it := heap.Pop(&q.delayed).(*item)
		it.delayed = false
		heap.Push(&q.ready, it)
	}

	if q.ready.Len() == 0 {
		if q.delayed.Len() == 0 {
			return Task{}, 0, false
		}
		return Task{}, q.delayed.readyHeap[0].task.RunAt.Sub(now), false
	}

	it := heap.Pop(&q.ready).(*item)
	delete(q.pending, it.task.ID)

	// pass the baton so an idle worker picks up what is left
	if q.ready.Len() > 0 || q.delayed.Len() > 0 {
		q.signal()
	}
	return it.task, 0, true
}

func (q *Queue) process(task Task) {
	ctx := context.Background()
	if q.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.handlerTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			q.logger.LogAttrs(ctx, slog.LevelError, "task handler panicked",
				slog.String("task_id", task.ID),
				logger.Error(fmt.Errorf("panic: %v", r)))
		}
	}()

	start := time.Now()
	if err := q.handler(ctx, task); err != nil {
		q.logger.LogAttrs(ctx, slog.LevelError, "task handler failed",
			slog.String("task_id", task.ID),
			logger.Duration(time.Since(start)),
			logger.Error(err))
	}
}
