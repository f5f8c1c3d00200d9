package notifications

import (
	"time"

	"github.com/dmitrymomot/notifykit/pkg/channel"
)

// State is a position in the delivery lifecycle.
type State string

const (
	StateQueued              State = "queued"
	StateSending             State = "sending"
	StateRetrying            State = "retrying"
	StateDelivered           State = "delivered"
	StateFailed              State = "failed"
	StateDuplicateSuppressed State = "duplicate_suppressed"
)

func (s State) String() string { return string(s) }

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateDelivered, StateFailed, StateDuplicateSuppressed:
		return true
	default:
		return false
	}
}

var transitions = map[State][]State{
	StateQueued:   {StateSending, StateDuplicateSuppressed, StateFailed},
	StateSending:  {StateDelivered, StateRetrying, StateFailed},
	StateRetrying: {StateSending, StateFailed},
}

// CanTransition reports whether the lifecycle allows moving from one state to another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Reason explains why a record ended the way it did.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonTransient        Reason = "transient"
	ReasonPermanent        Reason = "permanent"
	ReasonCircuitOpen      Reason = "circuit_open"
	ReasonDeadlineExceeded Reason = "deadline_exceeded"
	ReasonCanceled         Reason = "canceled"
	ReasonDuplicate        Reason = "duplicate"
)

func (r Reason) String() string { return string(r) }

// Record is the ledger entry of one notification.
type Record struct {
	ID                string    `json:"id"`
	Request           Request   `json:"request"`
	State             State     `json:"state"`
	Attempts          int       `json:"attempts"`
	TransientFailures int       `json:"transient_failures"`
	LastError         string    `json:"last_error,omitempty"`
	Reason            Reason    `json:"reason,omitempty"`
	LastAttemptAt     time.Time `json:"last_attempt_at,omitzero"`
	NextAttemptAt     time.Time `json:"next_attempt_at,omitzero"`
	DeliveredAt       time.Time `json:"delivered_at,omitzero"`
	Deadline          time.Time `json:"deadline,omitzero"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Channel returns the record's channel kind.
func (r Record) Channel() channel.Kind { return r.Request.Channel }

func (r Record) deadlinePassed(now time.Time) bool {
	return !r.Deadline.IsZero() && !now.Before(r.Deadline)
}

// runAt is when the next task for the record should run.
func (r Record) runAt() time.Time {
	at := r.Request.SendAt
	if r.State == StateRetrying {
		at = r.NextAttemptAt
	}
	if !at.IsZero() && !r.Deadline.IsZero() && r.Deadline.Before(at) {
		at = r.Deadline
	}
	return at
}

// Attempt is one adapter invocation.
type Attempt struct {
	NotificationID string        `json:"notification_id"`
	Number         int           `json:"number"`
	Outcome        string        `json:"outcome"`
	Error          string        `json:"error,omitempty"`
	StatusCode     int           `json:"status_code,omitempty"`
	ProviderID     string        `json:"provider_id,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
}

// Attempt outcomes. Failure outcomes reuse the Reason values.
const (
	OutcomeDelivered = "delivered"
)

// DeliveryEvent is published on every terminal transition.
type DeliveryEvent struct {
	NotificationID string       `json:"notification_id"`
	Channel        channel.Kind `json:"channel"`
	State          State        `json:"state"`
	Reason         Reason       `json:"reason,omitempty"`
	Attempts       int          `json:"attempts"`
	At             time.Time    `json:"at"`
}

func eventFor(r Record) DeliveryEvent {
	return DeliveryEvent{
		NotificationID: r.ID,
		Channel:        r.Channel(),
		State:          r.State,
		Reason:         r.Reason,
		Attempts:       r.Attempts,
		At:             r.UpdatedAt,
	}
}
