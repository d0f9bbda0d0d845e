package ops

import (
	"context"

	"github.com/hpungsan/transferbot/internal/session"
)

// ResetInput contains parameters for the Reset operation.
type ResetInput struct {
	SessionID string
}

// ResetOutput contains the result of the Reset operation.
type ResetOutput struct {
	SessionID string `json:"session_id"`
	Reset     bool   `json:"reset"`
}

// Reset wipes the buffer and the last result of a session.
func Reset(ctx context.Context, store session.Store, input ResetInput) (*ResetOutput, error) {
	id, err := ValidateSessionID(input.SessionID)
	if err != nil {
		return nil, err
	}
	if err := store.ClearBuffer(ctx, id); err != nil {
		return nil, err
	}
	return &ResetOutput{SessionID: id, Reset: true}, nil
}
