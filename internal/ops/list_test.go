package ops

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/transferbot/internal/session"
)

func mustTime(t *testing.T) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, "2026-03-14T09:30:00Z")
	require.NoError(t, err)
	return ts
}

func seedSessions(t *testing.T, store session.Store, n int) {
	t.Helper()
	for i := range n {
		_, err := store.AppendBuffer(context.Background(), fmt.Sprintf("s%02d", i), "18:05")
		require.NoError(t, err)
	}
}

func TestList_Pagination(t *testing.T) {
	store := session.NewMemory()
	seedSessions(t, store, 5)

	tests := []struct {
		name      string
		input     ListInput
		wantItems int
		wantLimit int
		hasMore   bool
	}{
		{"defaults", ListInput{}, 5, DefaultListLimit, false},
		{"first page", ListInput{Limit: 2}, 2, 2, true},
		{"last page", ListInput{Limit: 2, Offset: 4}, 1, 2, false},
		{"past the end", ListInput{Limit: 2, Offset: 10}, 0, 2, false},
		{"negative offset", ListInput{Limit: 3, Offset: -5}, 3, 3, true},
		{"limit capped", ListInput{Limit: 1000}, 5, MaxListLimit, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := List(context.Background(), store, tc.input)
			require.NoError(t, err)
			assert.Len(t, out.Items, tc.wantItems)
			assert.NotNil(t, out.Items)
			assert.Equal(t, tc.wantLimit, out.Pagination.Limit)
			assert.Equal(t, tc.hasMore, out.Pagination.HasMore)
			assert.Equal(t, 5, out.Pagination.Total)
			assert.Equal(t, "updated_at_desc", out.Sort)
		})
	}
}

func TestHistory_LimitBounds(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemory()
	for i := range 3 {
		require.NoError(t, store.RecordRun(ctx, &session.Run{ID: fmt.Sprint(i), SessionID: "s1"}))
	}

	out, err := History(ctx, store, HistoryInput{SessionID: "s1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, out.Runs, 2)
	assert.Equal(t, "2", out.Runs[0].ID)

	out, err = History(ctx, store, HistoryInput{SessionID: "none"})
	require.NoError(t, err)
	assert.NotNil(t, out.Runs)
	assert.Empty(t, out.Runs)
}
