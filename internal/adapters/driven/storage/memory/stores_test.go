package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskhub-io/deskhub/internal/core/domain"
)

func TestPageStore_SaveGetList(t *testing.T) {
	store := NewPageStore()
	ctx := context.Background()

	page := &domain.CachedPage{PageID: "p1", Kind: domain.KindTask, Title: "A", Version: 1}
	require.NoError(t, store.Save(ctx, page))

	got, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Title)

	// Mutating the returned page must not change the stored copy.
	got.Title = "mutated"
	again, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "A", again.Title)

	require.NoError(t, store.Save(ctx, &domain.CachedPage{PageID: "m1", Kind: domain.KindMeeting}))

	tasks, err := store.List(ctx, domain.KindTask)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPageStore_GetNotFound(t *testing.T) {
	store := NewPageStore()

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPageStore_SaveRejectsEmptyID(t *testing.T) {
	store := NewPageStore()

	err := store.Save(context.Background(), &domain.CachedPage{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestThreadStore_CreateIsInsertOnly(t *testing.T) {
	store := NewThreadStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &domain.ThreadMapping{PageID: "p1", ThreadID: "t1"}))

	err := store.Create(ctx, &domain.ThreadMapping{PageID: "p1", ThreadID: "t2"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	got, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ThreadID)
}

func TestThreadStore_GetNotFound(t *testing.T) {
	store := NewThreadStore()

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCursorStore_SaveGetList(t *testing.T) {
	store := NewCursorStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.SyncCursor{ServiceID: "notion", Cursor: "c1"}))
	require.NoError(t, store.Save(ctx, domain.SyncCursor{ServiceID: "notion", Cursor: "c2"}))

	got, err := store.Get(ctx, "notion")
	require.NoError(t, err)
	assert.Equal(t, "c2", got.Cursor)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWorkflowStore_SaveGetPrune(t *testing.T) {
	store := NewWorkflowStore()
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.Save(ctx, &domain.WorkflowRun{
		RunID: "old", Status: domain.RunFailed, FinishedAt: now.Add(-48 * time.Hour),
	}))
	require.NoError(t, store.Save(ctx, &domain.WorkflowRun{
		RunID: "fresh", Status: domain.RunCommitted, FinishedAt: now,
	}))
	require.NoError(t, store.Save(ctx, &domain.WorkflowRun{
		RunID: "running", Status: domain.RunRunning,
	}))

	n, err := store.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.Get(ctx, "old")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.Get(ctx, "fresh")
	assert.NoError(t, err)
	_, err = store.Get(ctx, "running")
	assert.NoError(t, err)
}
