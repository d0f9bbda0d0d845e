// Package session defines the key-value collaborator that holds a per-user
// input buffer and the last rendered result between requests.
package session

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxAppendRetries bounds optimistic-concurrency retries on AppendBuffer.
const MaxAppendRetries = 5

// Session is one user's accumulated input and latest output.
type Session struct {
	ID         string `json:"id"`
	Buffer     string `json:"buffer"`
	LastResult string `json:"last_result"`
	Version    int64  `json:"version"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

// Run is one finish of a session, kept for history.
type Run struct {
	ID         string `json:"id"`
	SessionID  string `json:"session_id"`
	Policy     string `json:"policy"`
	Records    int    `json:"records"`
	Incomplete int    `json:"incomplete"`
	CreatedAt  int64  `json:"created_at"`
}

// Summary is a session listing row without the buffer contents.
type Summary struct {
	ID          string `json:"id"`
	BufferChars int    `json:"buffer_chars"`
	HasResult   bool   `json:"has_result"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Store is the minimal contract the extraction shells need. Missing
// sessions read as empty strings; writes create the session.
type Store interface {
	GetBuffer(ctx context.Context, id string) (string, error)
	AppendBuffer(ctx context.Context, id, text string) (string, error)
	ClearBuffer(ctx context.Context, id string) error
	SetLastResult(ctx context.Context, id, result string) error
	GetLastResult(ctx context.Context, id string) (string, error)
}

// Backend is a Store with inspection, history and housekeeping.
type Backend interface {
	Store
	Get(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context, limit, offset int) ([]Summary, int, error)
	Purge(ctx context.Context, idleBefore time.Time) (int, error)
	RecordRun(ctx context.Context, run *Run) error
	ListRuns(ctx context.Context, sessionID string, limit int) ([]Run, error)
	Close() error
}

// NewID returns a fresh random session id.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id looks like a session id this package issued.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// JoinBuffer appends text to existing with exactly one newline between them.
// Blank lines at the join point are dropped; blank lines inside either part
// are kept.
func JoinBuffer(existing, text string) string {
	existing = strings.TrimRight(existing, " \t\r\n")
	text = strings.TrimLeft(text, "\r\n")
	text = strings.TrimRight(text, " \t\r\n")
	switch {
	case existing == "":
		return text
	case strings.TrimSpace(text) == "":
		return existing
	}
	return existing + "\n" + text
}
