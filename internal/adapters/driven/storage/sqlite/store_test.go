package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskhub-io/deskhub/internal/core/domain"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, store)

	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})

	return store
}

func testPage(id string, kind domain.RecordKind) *domain.CachedPage {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.CachedPage{
		PageID: id,
		Kind:   kind,
		Title:  "Page " + id,
		Owner:  "alice",
		Fields: domain.Fields{
			{Name: domain.FieldTitle, Value: "Page " + id},
			{Name: "priority", Value: "High"},
		},
		CreatedAt:    now.Add(-time.Hour),
		LastSyncedAt: now,
		Version:      1,
	}
}

// ==================== Store Creation and Initialization Tests ====================

func TestNewStore_ErrorHandling(t *testing.T) {
	// Test with invalid path (should fail to create directory)
	_, err := NewStore("/invalid\x00path")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "creating data directory")
}

func TestNewStore_Success(t *testing.T) {
	tempDir := t.TempDir()

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	// Verify database file was created
	dbPath := filepath.Join(tempDir, "deskhub.db")
	assert.Equal(t, dbPath, store.Path())
	assert.FileExists(t, dbPath)

	// Verify database connection is working
	err = store.db.Ping()
	assert.NoError(t, err)
}

func TestNewStore_MigrationsAreIdempotent(t *testing.T) {
	tempDir := t.TempDir()

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening the same database must not re-run applied migrations.
	store, err = NewStore(tempDir)
	require.NoError(t, err)
	defer store.Close()

	var version int
	err = store.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestNewStore_DefaultDirectory(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	store, err := NewStore("")
	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	assert.Contains(t, store.Path(), ".deskhub")
	assert.Contains(t, store.Path(), "data")
	assert.Contains(t, store.Path(), "deskhub.db")

	_ = os.RemoveAll(filepath.Join(tempHome, ".deskhub"))
}

// ==================== Page Store Tests ====================

func TestPageStore_SaveAndGet(t *testing.T) {
	store := setupTestStore(t)
	pages := store.PageStore()
	ctx := context.Background()

	page := testPage("p1", domain.KindTask)
	require.NoError(t, pages.Save(ctx, page))

	got, err := pages.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, page.PageID, got.PageID)
	assert.Equal(t, page.Kind, got.Kind)
	assert.Equal(t, page.Title, got.Title)
	assert.Equal(t, page.Owner, got.Owner)
	assert.Equal(t, page.Version, got.Version)
	assert.True(t, page.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, page.LastSyncedAt.Equal(got.LastSyncedAt))
	assert.Equal(t, "High", got.Fields.GetString("priority"))
}

func TestPageStore_GetNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.PageStore().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPageStore_SaveUpsertsByID(t *testing.T) {
	store := setupTestStore(t)
	pages := store.PageStore()
	ctx := context.Background()

	page := testPage("p1", domain.KindTask)
	require.NoError(t, pages.Save(ctx, page))

	page.Title = "Renamed"
	page.Version = 2
	page.MissedCycles = 1
	require.NoError(t, pages.Save(ctx, page))

	got, err := pages.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, 1, got.MissedCycles)
}

func TestPageStore_SaveRejectsEmptyID(t *testing.T) {
	store := setupTestStore(t)

	err := store.PageStore().Save(context.Background(), &domain.CachedPage{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPageStore_ListByKindIncludesDeleted(t *testing.T) {
	store := setupTestStore(t)
	pages := store.PageStore()
	ctx := context.Background()

	require.NoError(t, pages.Save(ctx, testPage("t1", domain.KindTask)))
	deleted := testPage("t2", domain.KindTask)
	deleted.Deleted = true
	require.NoError(t, pages.Save(ctx, deleted))
	require.NoError(t, pages.Save(ctx, testPage("m1", domain.KindMeeting)))

	tasks, err := pages.List(ctx, domain.KindTask)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	all, err := pages.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestPageStore_DeletedFlagRoundTrips(t *testing.T) {
	store := setupTestStore(t)
	pages := store.PageStore()
	ctx := context.Background()

	page := testPage("p1", domain.KindTask)
	page.Deleted = true
	page.MissedCycles = 2
	require.NoError(t, pages.Save(ctx, page))

	got, err := pages.Get(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.Equal(t, 2, got.MissedCycles)
}

// ==================== Thread Store Tests ====================

func TestThreadStore_CreateAndGet(t *testing.T) {
	store := setupTestStore(t)
	threads := store.ThreadStore()
	ctx := context.Background()

	mapping := &domain.ThreadMapping{
		PageID:    "p1",
		ThreadID:  "thread-1",
		BucketKey: "2026-08-20",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, threads.Create(ctx, mapping))

	got, err := threads.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "thread-1", got.ThreadID)
	assert.Equal(t, "2026-08-20", got.BucketKey)
	assert.True(t, mapping.CreatedAt.Equal(got.CreatedAt))
}

func TestThreadStore_CreateDuplicateReturnsAlreadyExists(t *testing.T) {
	store := setupTestStore(t)
	threads := store.ThreadStore()
	ctx := context.Background()

	first := &domain.ThreadMapping{PageID: "p1", ThreadID: "thread-1", BucketKey: "2026-08-20"}
	require.NoError(t, threads.Create(ctx, first))

	second := &domain.ThreadMapping{PageID: "p1", ThreadID: "thread-2", BucketKey: "2026-08-21"}
	err := threads.Create(ctx, second)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	// The original mapping is untouched.
	got, err := threads.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "thread-1", got.ThreadID)
}

func TestThreadStore_GetNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.ThreadStore().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ==================== Cursor Store Tests ====================

func TestCursorStore_SaveGetAndList(t *testing.T) {
	store := setupTestStore(t)
	cursors := store.CursorStore()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, cursors.Save(ctx, domain.SyncCursor{
		ServiceID: "notion", Cursor: "2026-08-20T10:00:00Z", LastSync: now,
	}))

	got, err := cursors.Get(ctx, "notion")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-20T10:00:00Z", got.Cursor)
	assert.True(t, now.Equal(got.LastSync))

	// Upsert replaces the cursor value.
	require.NoError(t, cursors.Save(ctx, domain.SyncCursor{
		ServiceID: "notion", Cursor: "2026-08-21T10:00:00Z", LastSync: now,
	}))
	got, err = cursors.Get(ctx, "notion")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-21T10:00:00Z", got.Cursor)

	all, err := cursors.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCursorStore_GetNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.CursorStore().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ==================== Workflow Store Tests ====================

func TestWorkflowStore_SaveAndGet(t *testing.T) {
	store := setupTestStore(t)
	runs := store.WorkflowStore()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	run := &domain.WorkflowRun{
		RunID:     "run-1",
		Operation: domain.OpCreateMeeting,
		Status:    domain.RunCommitted,
		Steps: []domain.WorkflowStep{
			{Name: "create-page", ServiceID: "notion", Status: domain.StepDone, ExternalID: "page-1"},
			{Name: "create-calendar-event", ServiceID: "calendar", Status: domain.StepDone, ExternalID: "cal-1"},
		},
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
	}
	require.NoError(t, runs.Save(ctx, run))

	got, err := runs.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunCommitted, got.Status)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "page-1", got.Steps[0].ExternalID)
	assert.True(t, now.Equal(got.FinishedAt))
}

func TestWorkflowStore_GetNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.WorkflowStore().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWorkflowStore_PruneRemovesOnlyExpiredRuns(t *testing.T) {
	store := setupTestStore(t)
	runs := store.WorkflowStore()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	old := &domain.WorkflowRun{
		RunID: "old", Operation: domain.OpCreateTask, Status: domain.RunFailed,
		StartedAt: now.Add(-40 * 24 * time.Hour), FinishedAt: now.Add(-40 * 24 * time.Hour),
	}
	fresh := &domain.WorkflowRun{
		RunID: "fresh", Operation: domain.OpCreateTask, Status: domain.RunCommitted,
		StartedAt: now.Add(-time.Hour), FinishedAt: now,
	}
	running := &domain.WorkflowRun{
		RunID: "running", Operation: domain.OpCreateTask, Status: domain.RunRunning,
		StartedAt: now.Add(-40 * 24 * time.Hour),
	}
	require.NoError(t, runs.Save(ctx, old))
	require.NoError(t, runs.Save(ctx, fresh))
	require.NoError(t, runs.Save(ctx, running))

	n, err := runs.Prune(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = runs.Get(ctx, "old")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = runs.Get(ctx, "fresh")
	assert.NoError(t, err)
	// A run without a finish time is never pruned.
	_, err = runs.Get(ctx, "running")
	assert.NoError(t, err)
}
