// Package history records one row per streaming worker run in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 200
)

// Outcome values stored for finished sessions.
const (
	OutcomeExpired = "expired"
	OutcomeFailed  = "failed"
)

// ErrWorkerIDRequired is returned when a record has no worker id.
var ErrWorkerIDRequired = errors.New("history: worker id is required")

// Session is one row of session_history.
type Session struct {
	ID        int64      `json:"id"`
	WorkerID  string     `json:"worker_id"`
	Address   string     `json:"address"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	Frames    uint64     `json:"frames"`
	Bytes     uint64     `json:"bytes"`
	Outcome   string     `json:"outcome,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Stop carries the final counters of a worker run.
type Stop struct {
	Frames  uint64
	Bytes   uint64
	Outcome string
	Error   string
	At      time.Time
}

// Repository stores session history rows.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repository over an open database whose schema
// has been migrated.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// RecordStart inserts the row for a worker that has just been started.
// Recording the same worker twice is a no-op.
func (r *Repository) RecordStart(ctx context.Context, workerID, address string, at time.Time) error {
	if workerID == "" {
		return ErrWorkerIDRequired
	}
	if at.IsZero() {
		at = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_history (worker_id, address, started_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (worker_id) DO NOTHING`,
		workerID, address, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// RecordStop fills in the final counters of a worker run. A stop for a
// worker that was never recorded inserts a complete row instead, using the
// stop time as the start time.
func (r *Repository) RecordStop(ctx context.Context, workerID, address string, stop Stop) error {
	if workerID == "" {
		return ErrWorkerIDRequired
	}
	if stop.At.IsZero() {
		stop.At = time.Now()
	}
	stoppedAt := formatTime(stop.At)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_history (worker_id, address, started_at, stopped_at, frames, bytes, outcome, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (worker_id) DO UPDATE SET
		     stopped_at = excluded.stopped_at,
		     frames = excluded.frames,
		     bytes = excluded.bytes,
		     outcome = excluded.outcome,
		     error = excluded.error`,
		workerID, address, stoppedAt, stoppedAt,
		int64(stop.Frames), int64(stop.Bytes), //nolint:gosec // counters stay far below MaxInt64
		nullableString(stop.Outcome), nullableString(stop.Error),
	)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	return nil
}

// Recent returns the newest sessions first. An empty address returns
// sessions of every device. limit defaults to 50 and is capped at 200.
func (r *Repository) Recent(ctx context.Context, address string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	query := `SELECT id, worker_id, address, started_at, stopped_at, frames, bytes, outcome, error
		FROM session_history`
	args := []any{}
	if address != "" {
		query += " WHERE address = ?"
		args = append(args, address)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]Session, 0, limit)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// Prune deletes finished sessions that stopped more than olderThan ago.
func (r *Repository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := formatTime(time.Now().Add(-olderThan))
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM session_history WHERE stopped_at IS NOT NULL AND stopped_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting sessions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var (
		s                  Session
		startedAt          string
		stoppedAt          sql.NullString
		frames, bytes      int64
		outcome, errString sql.NullString
	)
	if err := row.Scan(&s.ID, &s.WorkerID, &s.Address, &startedAt, &stoppedAt,
		&frames, &bytes, &outcome, &errString); err != nil {
		return Session{}, fmt.Errorf("scanning session: %w", err)
	}

	var err error
	if s.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return Session{}, fmt.Errorf("parsing started_at %q: %w", startedAt, err)
	}
	if stoppedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, stoppedAt.String)
		if err != nil {
			return Session{}, fmt.Errorf("parsing stopped_at %q: %w", stoppedAt.String, err)
		}
		s.StoppedAt = &t
	}
	s.Frames = uint64(frames) //nolint:gosec // written from uint64
	s.Bytes = uint64(bytes)   //nolint:gosec // written from uint64
	s.Outcome = outcome.String
	s.Error = errString.String
	return s, nil
}

// timeLayout has a fixed width so stored timestamps sort as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
