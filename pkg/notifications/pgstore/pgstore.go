// Package pgstore keeps the notification ledger in PostgreSQL.
//
// Apply the schema with pg.Migrate(ctx, pool, pgstore.Migrations(), cfg, log)
// before serving traffic. Update is a compare-and-set on the stored state, so
// several dispatcher processes may share one database.
package pgstore

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/pg"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrations returns the goose migrations for the ledger schema.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err) // embedded path is fixed at build time
	}
	return sub
}

// DB is the subset of *pgxpool.Pool the store needs. pgx.Tx satisfies it too.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Storage implements notifications.Storage.
type Storage struct {
	db DB
}

var _ notifications.Storage = (*Storage)(nil)

func New(db DB) *Storage {
	return &Storage{db: db}
}

const recordColumns = `id, channel, recipient, title, body, priority, idempotency_key, metadata,
	send_at, requested_at, state, attempts, transient_failures, last_error, reason,
	last_attempt_at, next_attempt_at, delivered_at, deadline, created_at, updated_at`

const terminalStates = `('delivered', 'failed', 'duplicate_suppressed')`

func (s *Storage) Create(ctx context.Context, rec notifications.Record) error {
	q := `INSERT INTO notifications (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	r := rec.Request
	_, err := s.db.Exec(ctx, q,
		rec.ID, string(r.Channel), r.Recipient, r.Title, r.Body, int(r.Priority), r.IdempotencyKey, r.Metadata,
		nullTime(r.SendAt), r.CreatedAt, string(rec.State), rec.Attempts, rec.TransientFailures, rec.LastError, string(rec.Reason),
		nullTime(rec.LastAttemptAt), nullTime(rec.NextAttemptAt), nullTime(rec.DeliveredAt), nullTime(rec.Deadline),
		rec.CreatedAt, rec.UpdatedAt,
	)
	switch {
	case pg.IsDuplicateKeyError(err):
		return notifications.ErrAlreadyExists
	case err != nil:
		return fmt.Errorf("pgstore: insert notification: %w", err)
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, id string) (notifications.Record, error) {
	row := s.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM notifications WHERE id = $1`, id)
	rec, err := scanRecord(row)
	switch {
	case pg.IsNotFoundError(err):
		return notifications.Record{}, notifications.ErrNotFound
	case err != nil:
		return notifications.Record{}, fmt.Errorf("pgstore: get notification: %w", err)
	}
	return rec, nil
}

// Update writes the mutable lifecycle columns. The request itself is never rewritten.
func (s *Storage) Update(ctx context.Context, rec notifications.Record, expected notifications.State) error {
	tag, err := s.db.Exec(ctx, `UPDATE notifications SET
			state = $2, attempts = $3, transient_failures = $4, last_error = $5, reason = $6,
			last_attempt_at = $7, next_attempt_at = $8, delivered_at = $9, deadline = $10, updated_at = $11
		WHERE id = $1 AND state = $12`,
		rec.ID, string(rec.State), rec.Attempts, rec.TransientFailures, rec.LastError, string(rec.Reason),
		nullTime(rec.LastAttemptAt), nullTime(rec.NextAttemptAt), nullTime(rec.DeliveredAt), nullTime(rec.Deadline),
		rec.UpdatedAt, string(expected),
	)
	if err != nil {
		return fmt.Errorf("pgstore: update notification: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	exists, err := s.exists(ctx, rec.ID)
	if err != nil {
		return err
	}
	if !exists {
		return notifications.ErrNotFound
	}
	return notifications.ErrStateConflict
}

func (s *Storage) AppendAttempt(ctx context.Context, a notifications.Attempt) error {
	_, err := s.db.Exec(ctx, `INSERT INTO notification_attempts
			(notification_id, number, outcome, error, status_code, provider_id, started_at, duration_us)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.NotificationID, a.Number, a.Outcome, a.Error, a.StatusCode, a.ProviderID, a.StartedAt, a.Duration.Microseconds(),
	)
	switch {
	case pg.IsForeignKeyViolationError(err):
		return notifications.ErrNotFound
	case err != nil:
		return fmt.Errorf("pgstore: insert attempt: %w", err)
	}
	return nil
}

func (s *Storage) Attempts(ctx context.Context, id string) ([]notifications.Attempt, error) {
	rows, err := s.db.Query(ctx, `SELECT notification_id, number, outcome, error, status_code, provider_id, started_at, duration_us
		FROM notification_attempts WHERE notification_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query attempts: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (notifications.Attempt, error) {
		var (
			a  notifications.Attempt
			us int64
		)
		err := row.Scan(&a.NotificationID, &a.Number, &a.Outcome, &a.Error, &a.StatusCode, &a.ProviderID, &a.StartedAt, &us)
		a.Duration = time.Duration(us) * time.Microsecond
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("pgstore: scan attempts: %w", err)
	}
	if len(out) > 0 {
		return out, nil
	}

	exists, err := s.exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, notifications.ErrNotFound
	}
	return []notifications.Attempt{}, nil
}

func (s *Storage) List(ctx context.Context, opts notifications.ListOptions) ([]notifications.Record, error) {
	q, args := listQuery(opts)
	return s.query(ctx, q, args...)
}

func (s *Storage) Pending(ctx context.Context) ([]notifications.Record, error) {
	return s.query(ctx, `SELECT `+recordColumns+` FROM notifications
		WHERE state NOT IN `+terminalStates+` ORDER BY created_at, id`)
}

func (s *Storage) Stats(ctx context.Context, since time.Time) ([]notifications.StateCount, error) {
	q, args := statsQuery(since)
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query stats: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (notifications.StateCount, error) {
		var (
			c           notifications.StateCount
			kind, state string
		)
		err := row.Scan(&kind, &state, &c.Count)
		c.Channel, c.State = channel.Kind(kind), notifications.State(state)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("pgstore: scan stats: %w", err)
	}
	return out, nil
}

func (s *Storage) query(ctx context.Context, q string, args ...any) ([]notifications.Record, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query notifications: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (notifications.Record, error) {
		return scanRecord(row)
	})
	if err != nil {
		return nil, fmt.Errorf("pgstore: scan notifications: %w", err)
	}
	return out, nil
}

func (s *Storage) exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1)`, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("pgstore: check notification: %w", err)
	}
	return ok, nil
}

// listQuery builds the filtered, newest-first List query.
func listQuery(opts notifications.ListOptions) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.Channel != "" {
		where = append(where, "channel = "+arg(string(opts.Channel)))
	}
	if len(opts.States) > 0 {
		states := make([]string, len(opts.States))
		for i, st := range opts.States {
			states[i] = string(st)
		}
		where = append(where, "state = ANY("+arg(states)+")")
	}
	if !opts.Since.IsZero() {
		where = append(where, "created_at >= "+arg(opts.Since))
	}

	var b strings.Builder
	b.WriteString("SELECT " + recordColumns + " FROM notifications")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id")
	if opts.Limit > 0 {
		b.WriteString(" LIMIT " + arg(opts.Limit))
	}
	if opts.Offset > 0 {
		b.WriteString(" OFFSET " + arg(opts.Offset))
	}
	return b.String(), args
}

func statsQuery(since time.Time) (string, []any) {
	q := "SELECT channel, state, count(*) FROM notifications"
	var args []any
	if !since.IsZero() {
		q += " WHERE created_at >= $1"
		args = append(args, since)
	}
	return q + " GROUP BY channel, state ORDER BY channel, state", args
}

func scanRecord(row pgx.Row) (notifications.Record, error) {
	var (
		rec                                  notifications.Record
		kind, state, reason                  string
		priority                             int16
		sendAt, lastAt, nextAt, doneAt, dlAt *time.Time
	)
	err := row.Scan(
		&rec.ID, &kind, &rec.Request.Recipient, &rec.Request.Title, &rec.Request.Body, &priority,
		&rec.Request.IdempotencyKey, &rec.Request.Metadata,
		&sendAt, &rec.Request.CreatedAt, &state, &rec.Attempts, &rec.TransientFailures, &rec.LastError, &reason,
		&lastAt, &nextAt, &doneAt, &dlAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return notifications.Record{}, err
	}

	rec.Request.ID = rec.ID
	rec.Request.Channel = channel.Kind(kind)
	rec.Request.Priority = notifications.Priority(priority)
	rec.Request.SendAt = timeOf(sendAt)
	rec.State = notifications.State(state)
	rec.Reason = notifications.Reason(reason)
	rec.LastAttemptAt = timeOf(lastAt)
	rec.NextAttemptAt = timeOf(nextAt)
	rec.DeliveredAt = timeOf(doneAt)
	rec.Deadline = timeOf(dlAt)
	return rec, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeOf(p *time.Time) time.Time {
	if p == nil {
		return time.Time{}
	}
	return *p
}
