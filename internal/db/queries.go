package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/hpungsan/transferbot/internal/errors"
	"github.com/hpungsan/transferbot/internal/session"
)

// Store is the SQLite session backend.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ session.Backend = (*Store)(nil)

// NewStore wraps an initialized database.
func NewStore(database *sql.DB) *Store {
	return &Store{db: database, now: time.Now}
}

// DB exposes the underlying handle for maintenance tasks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// wrapErr maps driver and context failures onto TransferErrors.
func wrapErr(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewCancelled(op)
	}
	return errors.NewInternal(err)
}

// Get retrieves a session by id. Returns nil, nil if it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	query := `
		SELECT id, buffer, last_result, version, created_at, updated_at
		FROM sessions
		WHERE id = ?
	`

	var sess session.Session
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&sess.ID, &sess.Buffer, &sess.LastResult, &sess.Version, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(ctx, "get session", err)
	}
	return &sess, nil
}

// GetBuffer returns the session buffer, or "" for an unknown session.
func (s *Store) GetBuffer(ctx context.Context, id string) (string, error) {
	sess, err := s.Get(ctx, id)
	if err != nil || sess == nil {
		return "", err
	}
	return sess.Buffer, nil
}

// GetLastResult returns the last rendered table, or "" for an unknown session.
func (s *Store) GetLastResult(ctx context.Context, id string) (string, error) {
	sess, err := s.Get(ctx, id)
	if err != nil || sess == nil {
		return "", err
	}
	return sess.LastResult, nil
}

// AppendBuffer joins text onto the session buffer and returns the new buffer.
// The write is a compare-and-swap on version; a lost race is retried up to
// session.MaxAppendRetries times before failing with CONFLICT.
func (s *Store) AppendBuffer(ctx context.Context, id, text string) (string, error) {
	for attempt := 0; attempt < session.MaxAppendRetries; attempt++ {
		sess, err := s.Get(ctx, id)
		if err != nil {
			return "", err
		}
		now := s.now().Unix()

		if sess == nil {
			buf := session.JoinBuffer("", text)
			result, err := s.db.ExecContext(ctx, `
				INSERT INTO sessions (id, buffer, last_result, version, created_at, updated_at)
				VALUES (?, ?, '', 1, ?, ?)
				ON CONFLICT(id) DO NOTHING
			`, id, buf, now, now)
			if err != nil {
				return "", wrapErr(ctx, "append", err)
			}
			if n, _ := result.RowsAffected(); n == 1 {
				return buf, nil
			}
			continue
		}

		buf := session.JoinBuffer(sess.Buffer, text)
		result, err := s.db.ExecContext(ctx, `
			UPDATE sessions
			SET buffer = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?
		`, buf, now, id, sess.Version)
		if err != nil {
			return "", wrapErr(ctx, "append", err)
		}
		if n, _ := result.RowsAffected(); n == 1 {
			return buf, nil
		}
	}
	return "", errors.NewConflict("session was modified concurrently; retry the append")
}

// upsert writes one column, creating the session if needed.
func (s *Store) upsert(ctx context.Context, op, id, buffer, lastResult string, setBuffer bool) error {
	now := s.now().Unix()
	query := `
		INSERT INTO sessions (id, buffer, last_result, version, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_result = excluded.last_result,
			version = sessions.version + 1,
			updated_at = excluded.updated_at
	`
	if setBuffer {
		query = `
		INSERT INTO sessions (id, buffer, last_result, version, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			buffer = excluded.buffer,
			last_result = excluded.last_result,
			version = sessions.version + 1,
			updated_at = excluded.updated_at
	`
	}
	_, err := s.db.ExecContext(ctx, query, id, buffer, lastResult, now, now)
	return wrapErr(ctx, op, err)
}

// ClearBuffer empties the buffer and the last result.
func (s *Store) ClearBuffer(ctx context.Context, id string) error {
	return s.upsert(ctx, "reset", id, "", "", true)
}

// SetLastResult stores the rendered table for the session.
func (s *Store) SetLastResult(ctx context.Context, id, result string) error {
	return s.upsert(ctx, "set result", id, "", result, false)
}

// List returns session summaries ordered by updated_at DESC, id DESC, and the total count.
func (s *Store) List(ctx context.Context, limit, offset int) ([]session.Summary, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&total); err != nil {
		return nil, 0, wrapErr(ctx, "list", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, length(buffer), last_result != '', created_at, updated_at
		FROM sessions
		ORDER BY updated_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, wrapErr(ctx, "list", err)
	}
	defer rows.Close()

	items := []session.Summary{}
	for rows.Next() {
		var it session.Summary
		if err := rows.Scan(&it.ID, &it.BufferChars, &it.HasResult, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, wrapErr(ctx, "list", err)
	}
	return items, total, nil
}

// Purge deletes sessions idle since before the cutoff, with their runs.
func (s *Store) Purge(ctx context.Context, idleBefore time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapErr(ctx, "purge", err)
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := idleBefore.Unix()
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM runs WHERE session_id IN (SELECT id FROM sessions WHERE updated_at < ?)
	`, cutoff); err != nil {
		return 0, wrapErr(ctx, "purge", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, wrapErr(ctx, "purge", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	if err := tx.Commit(); err != nil {
		return 0, wrapErr(ctx, "purge", err)
	}
	return int(n), nil
}

// RecordRun stores one finish in the history. ID and CreatedAt are filled in when empty.
func (s *Store) RecordRun(ctx context.Context, run *session.Run) error {
	if run.ID == "" {
		run.ID = NewRunID(s.now())
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = s.now().Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, session_id, policy, records, incomplete, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.SessionID, run.Policy, run.Records, run.Incomplete, run.CreatedAt)
	return wrapErr(ctx, "record run", err)
}

// ListRuns returns a session's runs newest first.
func (s *Store) ListRuns(ctx context.Context, sessionID string, limit int) ([]session.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, policy, records, incomplete, created_at
		FROM runs
		WHERE session_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, wrapErr(ctx, "history", err)
	}
	defer rows.Close()

	runs := []session.Run{}
	for rows.Next() {
		var r session.Run
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Policy, &r.Records, &r.Incomplete, &r.CreatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(ctx, "history", err)
	}
	return runs, nil
}
