package queue

import (
	"context"
	"time"
)

// Task is a unit of work. Priority is compared numerically, higher first.
type Task struct {
	ID       string
	Priority int
	RunAt    time.Time
}

// Handler processes a task. Returned errors are logged; retries are the
// handler's business.
type Handler func(ctx context.Context, task Task) error

type item struct {
	task    Task
	seq     uint64
	index   int
	delayed bool
}

// readyHeap orders due tasks by priority, then RunAt, then insertion order.
type readyHeap []*item

func (h readyHeap) Len() int { return len(h) }

func (h readyHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.task.Priority != b.task.Priority {
		return a.task.Priority > b.task.Priority
	}
	if !a.task.RunAt.Equal(b.task.RunAt) {
		return a.task.RunAt.Before(b.task.RunAt)
	}
	return a.seq < b.seq
}

func (h readyHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *readyHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// delayedHeap orders future tasks by RunAt.
type delayedHeap struct{ readyHeap }

func (h delayedHeap) Less(i, j int) bool {
	a, b := h.readyHeap[i], h.readyHeap[j]
	if !a.task.RunAt.Equal(b.task.RunAt) {
		return a.task.RunAt.Before(b.task.RunAt)
	}
	return a.seq < b.seq
}
