package ops

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/transferbot/internal/config"
	"github.com/hpungsan/transferbot/internal/errors"
	"github.com/hpungsan/transferbot/internal/session"
)

// AddInput contains parameters for the Add operation.
type AddInput struct {
	SessionID string
	Text      string
}

// AddOutput contains the result of the Add operation.
type AddOutput struct {
	SessionID   string `json:"session_id"`
	BufferChars int    `json:"buffer_chars"`
	BufferLines int    `json:"buffer_lines"`
}

// Add appends pasted text to a session buffer.
func Add(ctx context.Context, store session.Store, cfg *config.Config, input AddInput) (*AddOutput, error) {
	id, err := ValidateSessionID(input.SessionID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Text) == "" {
		return nil, errors.NewInvalidRequest("text is required")
	}
	if err := checkSize(cfg, input.Text); err != nil {
		return nil, err
	}

	existing, err := store.GetBuffer(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkSize(cfg, session.JoinBuffer(existing, input.Text)); err != nil {
		return nil, err
	}

	buf, err := store.AppendBuffer(ctx, id, input.Text)
	if err != nil {
		return nil, err
	}

	return &AddOutput{
		SessionID:   id,
		BufferChars: utf8.RuneCountInString(buf),
		BufferLines: strings.Count(buf, "\n") + 1,
	}, nil
}
