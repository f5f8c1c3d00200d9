package notifications_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

func TestIdempotencyKey(t *testing.T) {
	t.Parallel()

	k := notifications.IdempotencyKey(channel.KindEmail, "user@example.com", "Hi", "body")
	assert.Len(t, k, 32)
	assert.Equal(t, k, notifications.IdempotencyKey(channel.KindEmail, "user@example.com", "Hi", "body"))

	assert.NotEqual(t, k, notifications.IdempotencyKey(channel.KindChatBot, "user@example.com", "Hi", "body"))
	assert.NotEqual(t, k, notifications.IdempotencyKey(channel.KindEmail, "other@example.com", "Hi", "body"))
	assert.NotEqual(t, k, notifications.IdempotencyKey(channel.KindEmail, "user@example.com", "Hi", "body2"))

	// field boundaries are part of the key
	assert.NotEqual(t, notifications.IdempotencyKey(channel.KindEmail, "a", "bc", ""),
		notifications.IdempotencyKey(channel.KindEmail, "ab", "c", ""))
}

func TestParsePriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    notifications.Priority
		wantErr bool
	}{
		{in: "", want: notifications.PriorityNormal},
		{in: "low", want: notifications.PriorityLow},
		{in: "Normal", want: notifications.PriorityNormal},
		{in: " high ", want: notifications.PriorityHigh},
		{in: "URGENT", want: notifications.PriorityUrgent},
		{in: "critical", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := notifications.ParsePriority(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.False(t, notifications.PriorityNormal.High())
	assert.True(t, notifications.PriorityHigh.High())
	assert.True(t, notifications.PriorityUrgent.High())

	assert.True(t, notifications.PriorityLow.Valid())
	assert.True(t, notifications.PriorityUrgent.Valid())
	assert.False(t, notifications.Priority(0).Valid())
	assert.False(t, notifications.Priority(5).Valid())
}

func TestRequest_JSON(t *testing.T) {
	t.Parallel()

	req := notifications.Request{
		ID:        "n1",
		Channel:   channel.KindChatBot,
		Recipient: "-100123",
		Body:      "deploy finished",
		Priority:  notifications.PriorityHigh,
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	b, err := json.Marshal(req)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"priority":"high"`)
	assert.NotContains(t, string(b), "send_at")

	var got notifications.Request
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, req, got)

	err = json.Unmarshal([]byte(`{"priority":"whenever"}`), &got)
	assert.Error(t, err)

	_, err = json.Marshal(notifications.Request{Priority: notifications.Priority(9)})
	assert.Error(t, err)
}

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	allowed := []struct{ from, to notifications.State }{
		{notifications.StateQueued, notifications.StateSending},
		{notifications.StateQueued, notifications.StateDuplicateSuppressed},
		{notifications.StateQueued, notifications.StateFailed},
		{notifications.StateSending, notifications.StateDelivered},
		{notifications.StateSending, notifications.StateRetrying},
		{notifications.StateSending, notifications.StateFailed},
		{notifications.StateRetrying, notifications.StateSending},
		{notifications.StateRetrying, notifications.StateFailed},
	}
	for _, tr := range allowed {
		assert.True(t, notifications.CanTransition(tr.from, tr.to), "%s -> %s", tr.from, tr.to)
	}

	denied := []struct{ from, to notifications.State }{
		{notifications.StateDelivered, notifications.StateSending},
		{notifications.StateFailed, notifications.StateRetrying},
		{notifications.StateDuplicateSuppressed, notifications.StateSending},
		{notifications.StateRetrying, notifications.StateQueued},
		{notifications.StateSending, notifications.StateQueued},
		{notifications.StateQueued, notifications.StateDelivered},
	}
	for _, tr := range denied {
		assert.False(t, notifications.CanTransition(tr.from, tr.to), "%s -> %s", tr.from, tr.to)
	}

	for _, s := range []notifications.State{notifications.StateDelivered, notifications.StateFailed, notifications.StateDuplicateSuppressed} {
		assert.True(t, s.Terminal())
	}
	assert.False(t, notifications.StateRetrying.Terminal())
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	cause := errors.New("bad address")
	var err error = &notifications.ValidationError{Field: "recipient", Err: cause}

	assert.True(t, notifications.IsValidationError(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "notifications: invalid recipient: bad address", err.Error())
	assert.False(t, notifications.IsValidationError(cause))
}
