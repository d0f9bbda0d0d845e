package ops

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/transferbot/internal/errors"
	"github.com/hpungsan/transferbot/internal/session"
)

// ShowInput contains parameters for the Show operation.
type ShowInput struct {
	SessionID string
}

// ShowOutput contains the result of the Show operation.
type ShowOutput struct {
	SessionID   string `json:"session_id"`
	Buffer      string `json:"buffer"`
	BufferChars int    `json:"buffer_chars"`
	BufferLines int    `json:"buffer_lines"`
	LastResult  string `json:"last_result"`
	Version     int64  `json:"version"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Show returns a session's buffer and last result.
// A session that was never written is NOT_FOUND.
func Show(ctx context.Context, backend session.Backend, input ShowInput) (*ShowOutput, error) {
	id, err := ValidateSessionID(input.SessionID)
	if err != nil {
		return nil, err
	}

	sess, err := backend.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errors.NewNotFound(id)
	}

	lines := 0
	if sess.Buffer != "" {
		lines = strings.Count(sess.Buffer, "\n") + 1
	}

	return &ShowOutput{
		SessionID:   sess.ID,
		Buffer:      sess.Buffer,
		BufferChars: utf8.RuneCountInString(sess.Buffer),
		BufferLines: lines,
		LastResult:  sess.LastResult,
		Version:     sess.Version,
		CreatedAt:   sess.CreatedAt,
		UpdatedAt:   sess.UpdatedAt,
	}, nil
}
