package db

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hpungsan/transferbot/internal/errors"
	"github.com/hpungsan/transferbot/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	s := NewStore(database)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_MissingSessionReadsEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	buf, err := s.GetBuffer(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, buf)

	res, err := s.GetLastResult(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, res)

	sess, err := s.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestStore_AppendBuffer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	buf, err := s.AppendBuffer(ctx, "s1", "18:05\n\n")
	require.NoError(t, err)
	assert.Equal(t, "18:05", buf)

	buf, err = s.AppendBuffer(ctx, "s1", "\nTK1710\nFunda Kara")
	require.NoError(t, err)
	assert.Equal(t, "18:05\nTK1710\nFunda Kara", buf)

	got, err := s.GetBuffer(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, buf, got)

	sess, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, int64(2), sess.Version)
	assert.NotZero(t, sess.CreatedAt)
}

func TestStore_AppendBuffer_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const writers = 4
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AppendBuffer(ctx, "shared", fmt.Sprintf("line %d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, errors.Is(err, errors.ErrConflict), "unexpected error: %v", err)
	}

	sess, err := s.Get(ctx, "shared")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, int64(ok), sess.Version, "every successful append bumps the version once")
}

func TestStore_LastResultAndClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AppendBuffer(ctx, "s1", "18:05")
	require.NoError(t, err)
	require.NoError(t, s.SetLastResult(ctx, "s1", "Saat\t\tUçuş\tYolcu"))

	buf, err := s.GetBuffer(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "18:05", buf, "setting the result keeps the buffer")

	res, err := s.GetLastResult(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Saat\t\tUçuş\tYolcu", res)

	require.NoError(t, s.ClearBuffer(ctx, "s1"))
	buf, _ = s.GetBuffer(ctx, "s1")
	res, _ = s.GetLastResult(ctx, "s1")
	assert.Empty(t, buf)
	assert.Empty(t, res)
}

func TestStore_SetLastResultCreatesSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetLastResult(ctx, "fresh", "table"))
	sess, err := s.Get(ctx, "fresh")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "table", sess.LastResult)
	assert.Empty(t, sess.Buffer)
}

func TestStore_ListAndPurge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	clock := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return clock }
	_, err := s.AppendBuffer(ctx, "old", "a")
	require.NoError(t, err)
	require.NoError(t, s.RecordRun(ctx, &session.Run{SessionID: "old", Policy: "time_anchored", Records: 1}))

	clock = clock.Add(72 * time.Hour)
	_, err = s.AppendBuffer(ctx, "new", "bb")
	require.NoError(t, err)
	require.NoError(t, s.SetLastResult(ctx, "new", "table"))

	items, total, err := s.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, items, 2)
	assert.Equal(t, "new", items[0].ID)
	assert.Equal(t, 2, items[0].BufferChars)
	assert.True(t, items[0].HasResult)
	assert.False(t, items[1].HasResult)

	items, _, err = s.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "old", items[0].ID)

	n, err := s.Purge(ctx, clock.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	runs, err := s.ListRuns(ctx, "old", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)

	_, total, err = s.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestStore_RecordRunAndHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	clock := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return clock }
	for i := range 3 {
		clock = clock.Add(time.Minute)
		run := &session.Run{SessionID: "s1", Policy: "grouped", Records: i}
		require.NoError(t, s.RecordRun(ctx, run))
		assert.Len(t, run.ID, 26)
	}

	runs, err := s.ListRuns(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 2, runs[0].Records)
	assert.Equal(t, 1, runs[1].Records)

	all, err := s.ListRuns(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_CancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.AppendBuffer(ctx, "s1", "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCancelled), "got %v", err)
}
