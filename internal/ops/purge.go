package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/hpungsan/transferbot/internal/errors"
	"github.com/hpungsan/transferbot/internal/session"
)

// DefaultPurgeDays is the idle age purged when none is given.
const DefaultPurgeDays = 7

// PurgeInput contains parameters for the Purge operation.
type PurgeInput struct {
	OlderThanDays *int // optional, default 7; 0 purges every session
}

// PurgeOutput contains the result of the Purge operation.
type PurgeOutput struct {
	Purged  int    `json:"purged"`
	Message string `json:"message"`
}

// Purge deletes sessions not updated in the given number of days, with their runs.
func Purge(ctx context.Context, backend session.Backend, input PurgeInput) (*PurgeOutput, error) {
	days := DefaultPurgeDays
	if input.OlderThanDays != nil {
		days = *input.OlderThanDays
	}
	if days < 0 {
		return nil, errors.NewInvalidRequest("older_than_days must not be negative")
	}

	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	if days == 0 {
		// include sessions touched in the current second
		cutoff = time.Now().Add(time.Second)
	}

	count, err := backend.Purge(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	return &PurgeOutput{
		Purged:  count,
		Message: formatPurgeMessage(count, days),
	}, nil
}

// formatPurgeMessage creates a human-readable message for the purge result.
func formatPurgeMessage(count, days int) string {
	if count == 0 {
		return "No idle sessions to purge"
	}

	word := "session"
	if count > 1 {
		word = "sessions"
	}

	msg := fmt.Sprintf("Permanently deleted %d %s", count, word)
	if days > 0 {
		msg += fmt.Sprintf(" (idle more than %d days)", days)
	}
	return msg
}
