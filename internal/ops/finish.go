package ops

import (
	"context"
	"time"

	"github.com/hpungsan/transferbot/internal/config"
	"github.com/hpungsan/transferbot/internal/db"
	"github.com/hpungsan/transferbot/internal/session"
)

// FinishInput contains parameters for the Finish operation.
type FinishInput struct {
	SessionID string
	RunSettings
}

// FinishOutput contains the result of the Finish operation.
type FinishOutput struct {
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id,omitempty"`
	Conversion
}

// runRecorder is implemented by stores that keep run history.
type runRecorder interface {
	RecordRun(ctx context.Context, run *session.Run) error
}

// Finish extracts the session buffer, caches the rendered table as the
// session's last result, and records the run when the store keeps history.
// The buffer is left in place.
func Finish(ctx context.Context, store session.Store, cfg *config.Config, input FinishInput) (*FinishOutput, error) {
	id, err := ValidateSessionID(input.SessionID)
	if err != nil {
		return nil, err
	}

	buf, err := store.GetBuffer(ctx, id)
	if err != nil {
		return nil, err
	}

	conv, err := convert(ctx, cfg, "finish", buf, input.RunSettings)
	if err != nil {
		return nil, err
	}

	if err := store.SetLastResult(ctx, id, conv.Table); err != nil {
		return nil, err
	}

	out := &FinishOutput{SessionID: id, Conversion: *conv}

	if rr, ok := store.(runRecorder); ok {
		now := time.Now()
		run := &session.Run{
			ID:         db.NewRunID(now),
			SessionID:  id,
			Policy:     string(conv.Policy),
			Records:    len(conv.Records),
			Incomplete: len(conv.Incomplete),
			CreatedAt:  now.Unix(),
		}
		if err := rr.RecordRun(ctx, run); err != nil {
			return nil, err
		}
		out.RunID = run.ID
	}

	return out, nil
}
