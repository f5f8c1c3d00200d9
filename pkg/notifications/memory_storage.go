package notifications

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/channel"
)

// MemoryStorage is an in-memory Storage for development and tests.
type MemoryStorage struct {
	records  map[string]Record
	attempts map[string][]Attempt
	mu       sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records:  make(map[string]Record),
		attempts: make(map[string][]Attempt),
	}
}

func (s *MemoryStorage) Create(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; ok {
		return ErrAlreadyExists
	}
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *MemoryStorage) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStorage) Update(_ context.Context, rec Record, expected State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[rec.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.State != expected {
		return ErrStateConflict
	}
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *MemoryStorage) AppendAttempt(_ context.Context, a Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[a.NotificationID]; !ok {
		return ErrNotFound
	}
	s.attempts[a.NotificationID] = append(s.attempts[a.NotificationID], a)
	return nil
}

func (s *MemoryStorage) Attempts(_ context.Context, id string) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.records[id]; !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(s.attempts[id]), nil
}

func (s *MemoryStorage) List(_ context.Context, opts ListOptions) ([]Record, error) {
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if opts.match(r) {
			out = append(out, cloneRecord(r))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Record) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []Record{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *MemoryStorage) Pending(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	var out []Record
	for _, r := range s.records {
		if !r.State.Terminal() {
			out = append(out, cloneRecord(r))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Record) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStorage) Stats(_ context.Context, since time.Time) ([]StateCount, error) {
	type key struct {
		kind  channel.Kind
		state State
	}
	counts := make(map[key]int)
	s.mu.RLock()
	for _, r := range s.records {
		if r.CreatedAt.Before(since) {
			continue
		}
		counts[key{r.Channel(), r.State}]++
	}
	s.mu.RUnlock()

	out := make([]StateCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, StateCount{Channel: k.kind, State: k.state, Count: n})
	}
	slices.SortFunc(out, func(a, b StateCount) int {
		return cmp.Or(cmp.Compare(a.Channel, b.Channel), cmp.Compare(a.State, b.State))
	})
	return out, nil
}

// cloneRecord copies the metadata map so callers cannot mutate stored data.
func cloneRecord(r Record) Record {
	if r.Request.Metadata != nil {
		r.Request.Metadata = maps.Clone(r.Request.Metadata)
	}
	return r
}
