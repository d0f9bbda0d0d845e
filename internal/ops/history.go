package ops

import (
	"context"

	"github.com/hpungsan/transferbot/internal/session"
)

// HistoryInput contains parameters for the History operation.
type HistoryInput struct {
	SessionID string
	Limit     int // default: 20, max: 100
}

// HistoryOutput contains the result of the History operation.
type HistoryOutput struct {
	SessionID string        `json:"session_id"`
	Runs      []session.Run `json:"runs"`
}

// History lists a session's finish runs, newest first.
func History(ctx context.Context, backend session.Backend, input HistoryInput) (*HistoryOutput, error) {
	id, err := ValidateSessionID(input.SessionID)
	if err != nil {
		return nil, err
	}

	// Apply limit defaults and bounds
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	runs, err := backend.ListRuns(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []session.Run{}
	}
	return &HistoryOutput{SessionID: id, Runs: runs}, nil
}
