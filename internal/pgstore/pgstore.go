// Package pgstore is the PostgreSQL session backend, for deployments where
// several web instances share one session table.
package pgstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hpungsan/transferbot/internal/db"
	"github.com/hpungsan/transferbot/internal/errors"
	"github.com/hpungsan/transferbot/internal/session"
)

// Store wraps a PostgreSQL connection pool.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ session.Backend = (*Store)(nil)

// Open connects to dsn, verifies the connection and ensures the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{pool: pool, now: time.Now}
	if err := s.CreateSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// CreateSchema creates the session tables.
func (s *Store) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS transfer_sessions (
		id          TEXT PRIMARY KEY,
		buffer      TEXT NOT NULL DEFAULT '',
		last_result TEXT NOT NULL DEFAULT '',
		version     BIGINT NOT NULL DEFAULT 1,
		created_at  BIGINT NOT NULL,
		updated_at  BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transfer_sessions_updated ON transfer_sessions(updated_at DESC);

	CREATE TABLE IF NOT EXISTS transfer_runs (
		id          TEXT PRIMARY KEY,
		session_id  TEXT NOT NULL,
		policy      TEXT NOT NULL,
		records     INTEGER NOT NULL,
		incomplete  INTEGER NOT NULL,
		created_at  BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transfer_runs_session ON transfer_runs(session_id, created_at DESC);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

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
	var sess session.Session
	err := s.pool.QueryRow(ctx, `
		SELECT id, buffer, last_result, version, created_at, updated_at
		FROM transfer_sessions WHERE id = $1
	`, id).Scan(&sess.ID, &sess.Buffer, &sess.LastResult, &sess.Version, &sess.CreatedAt, &sess.UpdatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(ctx, "get session", err)
	}
	return &sess, nil
}

func (s *Store) GetBuffer(ctx context.Context, id string) (string, error) {
	sess, err := s.Get(ctx, id)
	if err != nil || sess == nil {
		return "", err
	}
	return sess.Buffer, nil
}

func (s *Store) GetLastResult(ctx context.Context, id string) (string, error) {
	sess, err := s.Get(ctx, id)
	if err != nil || sess == nil {
		return "", err
	}
	return sess.LastResult, nil
}

// AppendBuffer joins text onto the buffer with a versioned compare-and-swap.
func (s *Store) AppendBuffer(ctx context.Context, id, text string) (string, error) {
	for attempt := 0; attempt < session.MaxAppendRetries; attempt++ {
		sess, err := s.Get(ctx, id)
		if err != nil {
			return "", err
		}
		now := s.now().Unix()

		if sess == nil {
			buf := session.JoinBuffer("", text)
			tag, err := s.pool.Exec(ctx, `
				INSERT INTO transfer_sessions (id, buffer, last_result, version, created_at, updated_at)
				VALUES ($1, $2, '', 1, $3, $3)
				ON CONFLICT (id) DO NOTHING
			`, id, buf, now)
			if err != nil {
				return "", wrapErr(ctx, "append", err)
			}
			if tag.RowsAffected() == 1 {
				return buf, nil
			}
			continue
		}

		buf := session.JoinBuffer(sess.Buffer, text)
		tag, err := s.pool.Exec(ctx, `
			UPDATE transfer_sessions
			SET buffer = $1, version = version + 1, updated_at = $2
			WHERE id = $3 AND version = $4
		`, buf, now, id, sess.Version)
		if err != nil {
			return "", wrapErr(ctx, "append", err)
		}
		if tag.RowsAffected() == 1 {
			return buf, nil
		}
	}
	return "", errors.NewConflict("session was modified concurrently; retry the append")
}

// ClearBuffer empties the buffer and the last result.
func (s *Store) ClearBuffer(ctx context.Context, id string) error {
	now := s.now().Unix()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transfer_sessions (id, buffer, last_result, version, created_at, updated_at)
		VALUES ($1, '', '', 1, $2, $2)
		ON CONFLICT (id) DO UPDATE SET
			buffer = '', last_result = '',
			version = transfer_sessions.version + 1,
			updated_at = EXCLUDED.updated_at
	`, id, now)
	return wrapErr(ctx, "reset", err)
}

// SetLastResult stores the rendered table for the session.
func (s *Store) SetLastResult(ctx context.Context, id, result string) error {
	now := s.now().Unix()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transfer_sessions (id, buffer, last_result, version, created_at, updated_at)
		VALUES ($1, '', $2, 1, $3, $3)
		ON CONFLICT (id) DO UPDATE SET
			last_result = EXCLUDED.last_result,
			version = transfer_sessions.version + 1,
			updated_at = EXCLUDED.updated_at
	`, id, result, now)
	return wrapErr(ctx, "set result", err)
}

// List returns session summaries ordered by updated_at DESC, id DESC, and the total count.
func (s *Store) List(ctx context.Context, limit, offset int) ([]session.Summary, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transfer_sessions`).Scan(&total); err != nil {
		return nil, 0, wrapErr(ctx, "list", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, char_length(buffer), last_result <> '', created_at, updated_at
		FROM transfer_sessions
		ORDER BY updated_at DESC, id DESC
		LIMIT $1 OFFSET $2
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
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, wrapErr(ctx, "purge", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cutoff := idleBefore.Unix()
	if _, err := tx.Exec(ctx, `
		DELETE FROM transfer_runs
		WHERE session_id IN (SELECT id FROM transfer_sessions WHERE updated_at < $1)
	`, cutoff); err != nil {
		return 0, wrapErr(ctx, "purge", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM transfer_sessions WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, wrapErr(ctx, "purge", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, wrapErr(ctx, "purge", err)
	}
	return int(tag.RowsAffected()), nil
}

// RecordRun stores one finish in the history.
func (s *Store) RecordRun(ctx context.Context, run *session.Run) error {
	if run.ID == "" {
		run.ID = db.NewRunID(s.now())
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = s.now().Unix()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transfer_runs (id, session_id, policy, records, incomplete, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, run.ID, run.SessionID, run.Policy, run.Records, run.Incomplete, run.CreatedAt)
	return wrapErr(ctx, "record run", err)
}

// ListRuns returns a session's runs newest first. A limit of 0 returns all.
func (s *Store) ListRuns(ctx context.Context, sessionID string, limit int) ([]session.Run, error) {
	query := `
		SELECT id, session_id, policy, records, incomplete, created_at
		FROM transfer_runs
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
	`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(ctx, "history", err)
	}
	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (session.Run, error) {
		var r session.Run
		err := row.Scan(&r.ID, &r.SessionID, &r.Policy, &r.Records, &r.Incomplete, &r.CreatedAt)
		return r, err
	})
	if err != nil {
		return nil, wrapErr(ctx, "history", err)
	}
	if runs == nil {
		runs = []session.Run{}
	}
	return runs, nil
}
