package notifications

import (
	"context"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/channel"
)

// Storage is the delivery ledger.
type Storage interface {
	// Create stores a new record. It returns ErrAlreadyExists for a known id.
	Create(ctx context.Context, rec Record) error

	// Get returns ErrNotFound for an unknown id.
	Get(ctx context.Context, id string) (Record, error)

	// Update replaces the record only if its stored state is still expected,
	// otherwise it returns ErrStateConflict.
	Update(ctx context.Context, rec Record, expected State) error

	AppendAttempt(ctx context.Context, a Attempt) error

	// Attempts returns a record's attempts in order.
	Attempts(ctx context.Context, id string) ([]Attempt, error)

	// List returns records newest first.
	List(ctx context.Context, opts ListOptions) ([]Record, error)

	// Pending returns every non-terminal record, oldest first.
	Pending(ctx context.Context) ([]Record, error)

	// Stats counts records created at or after since per channel and state.
	// A zero since counts every record.
	Stats(ctx context.Context, since time.Time) ([]StateCount, error)
}

// ListOptions filters and pages List results.
type ListOptions struct {
	Channel channel.Kind // empty means all channels
	States  []State      // empty means all states
	Since   time.Time    // only records created at or after Since
	Limit   int          // 0 means no limit
	Offset  int
}

func (o ListOptions) match(r Record) bool {
	if o.Channel != "" && r.Channel() != o.Channel {
		return false
	}
	if !o.Since.IsZero() && r.CreatedAt.Before(o.Since) {
		return false
	}
	if len(o.States) == 0 {
		return true
	}
	for _, s := range o.States {
		if r.State == s {
			return true
		}
	}
	return false
}
