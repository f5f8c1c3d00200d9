package pgstore

import (
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

func TestListQuery(t *testing.T) {
	t.Parallel()

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		opts      notifications.ListOptions
		wantWhere string
		wantTail  string
		wantArgs  []any
	}{
		{
			name:     "no filters",
			opts:     notifications.ListOptions{},
			wantTail: "FROM notifications ORDER BY created_at DESC, id",
		},
		{
			name:      "channel and states",
			opts:      notifications.ListOptions{Channel: channel.KindWebhook, States: []notifications.State{notifications.StateFailed}},
			wantWhere: "WHERE channel = $1 AND state = ANY($2)",
			wantArgs:  []any{"webhook", []string{"failed"}},
		},
		{
			name:      "since with paging",
			opts:      notifications.ListOptions{Since: since, Limit: 10, Offset: 20},
			wantWhere: "WHERE created_at >= $1",
			wantTail:  "ORDER BY created_at DESC, id LIMIT $2 OFFSET $3",
			wantArgs:  []any{since, 10, 20},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args := listQuery(tt.opts)
			assert.Contains(t, q, "SELECT "+recordColumns)
			if tt.wantWhere != "" {
				assert.Contains(t, q, tt.wantWhere)
			} else {
				assert.NotContains(t, q, "WHERE")
			}
			if tt.wantTail != "" {
				assert.Contains(t, q, tt.wantTail)
			}
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestStatsQuery(t *testing.T) {
	t.Parallel()

	q, args := statsQuery(time.Time{})
	assert.Equal(t, "SELECT channel, state, count(*) FROM notifications GROUP BY channel, state ORDER BY channel, state", q)
	assert.Empty(t, args)

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q, args = statsQuery(since)
	assert.Contains(t, q, "WHERE created_at >= $1 GROUP BY channel, state")
	assert.Equal(t, []any{since}, args)
}

func TestNullTime(t *testing.T) {
	t.Parallel()

	assert.Nil(t, nullTime(time.Time{}))
	now := time.Now()
	p := nullTime(now)
	require.NotNil(t, p)
	assert.True(t, now.Equal(timeOf(p)))
	assert.True(t, timeOf(nil).IsZero())
}

func TestMigrations(t *testing.T) {
	t.Parallel()

	files, err := fs.Glob(Migrations(), "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	b, err := fs.ReadFile(Migrations(), files[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), "-- +goose Up")
	assert.Contains(t, string(b), "-- +goose Down")
}
