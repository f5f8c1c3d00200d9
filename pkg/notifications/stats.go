package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/channel"
)

// StateCount is the number of records of one channel in one state.
type StateCount struct {
	Channel channel.Kind
	State   State
	Count   int
}

// Stats summarizes the ledger over records created at or after Since.
type Stats struct {
	Since     time.Time            `json:"since,omitzero"`
	Total     int                  `json:"total"`
	ByState   map[State]int        `json:"by_state"`
	ByChannel map[channel.Kind]int `json:"by_channel"`

	// SuccessRate is delivered over delivered plus failed, 0 when neither.
	SuccessRate float64 `json:"success_rate"`
}

// ReadStats aggregates storage counts. A zero since covers the whole ledger.
func ReadStats(ctx context.Context, s Storage, since time.Time) (Stats, error) {
	counts, err := s.Stats(ctx, since)
	if err != nil {
		return Stats{}, fmt.Errorf("notifications: read stats: %w", err)
	}
	return summarize(since, counts), nil
}

func summarize(since time.Time, counts []StateCount) Stats {
	st := Stats{
		Since:     since,
		ByState:   make(map[State]int),
		ByChannel: make(map[channel.Kind]int),
	}
	for _, c := range counts {
		st.Total += c.Count
		st.ByState[c.State] += c.Count
		st.ByChannel[c.Channel] += c.Count
	}
	if done := st.ByState[StateDelivered] + st.ByState[StateFailed]; done > 0 {
		st.SuccessRate = float64(st.ByState[StateDelivered]) / float64(done)
	}
	return st
}

// Stats summarizes records created at or after since.
func (d *Dispatcher) Stats(ctx context.Context, since time.Time) (Stats, error) {
	return ReadStats(ctx, d.storage, since)
}
