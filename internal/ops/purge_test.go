package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/transferbot/internal/errors"
	"github.com/hpungsan/transferbot/internal/session"
)

func TestPurge(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemory()
	seedSessions(t, store, 3)

	out, err := Purge(ctx, store, PurgeInput{})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Purged, "fresh sessions survive the default age")

	zero := 0
	out, err = Purge(ctx, store, PurgeInput{OlderThanDays: &zero})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Purged)
	assert.Equal(t, "Permanently deleted 3 sessions", out.Message)

	neg := -1
	_, err = Purge(ctx, store, PurgeInput{OlderThanDays: &neg})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
}

func TestFormatPurgeMessage(t *testing.T) {
	tests := []struct {
		count int
		days  int
		want  string
	}{
		{0, 7, "No idle sessions to purge"},
		{1, 7, "Permanently deleted 1 session (idle more than 7 days)"},
		{4, 30, "Permanently deleted 4 sessions (idle more than 30 days)"},
		{2, 0, "Permanently deleted 2 sessions"},
	}

	for _, tc := range tests {
		if got := formatPurgeMessage(tc.count, tc.days); got != tc.want {
			t.Errorf("formatPurgeMessage(%d, %d) = %q, want %q", tc.count, tc.days, got, tc.want)
		}
	}
}
