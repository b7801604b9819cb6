package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskhub-io/deskhub/internal/core/domain"
)

func TestSchedulerStore_GetTaskNotFoundReturnsNil(t *testing.T) {
	store := setupTestStore(t)

	task, err := store.SchedulerStore().GetTask(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestSchedulerStore_SaveAndGetTask(t *testing.T) {
	store := setupTestStore(t)
	scheduler := store.SchedulerStore()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	task := &domain.ScheduledTask{
		ID:          domain.TaskIDReconcileFull,
		Name:        "Full Reconciliation",
		Interval:    180 * time.Second,
		LastRun:     now.Add(-3 * time.Minute),
		NextRun:     now,
		LastSuccess: now.Add(-3 * time.Minute),
		Enabled:     true,
	}
	require.NoError(t, scheduler.SaveTask(ctx, task))

	got, err := scheduler.GetTask(ctx, domain.TaskIDReconcileFull)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.Name, got.Name)
	assert.Equal(t, task.Interval, got.Interval)
	assert.True(t, task.NextRun.Equal(got.NextRun))
	assert.True(t, got.Enabled)
	assert.Empty(t, got.LastError)
}

func TestSchedulerStore_SaveTaskUpserts(t *testing.T) {
	store := setupTestStore(t)
	scheduler := store.SchedulerStore()
	ctx := context.Background()

	task := &domain.ScheduledTask{ID: "t1", Name: "T", Interval: time.Minute, Enabled: true}
	require.NoError(t, scheduler.SaveTask(ctx, task))

	task.Interval = 2 * time.Minute
	task.LastError = "boom"
	task.Enabled = false
	require.NoError(t, scheduler.SaveTask(ctx, task))

	got, err := scheduler.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, got.Interval)
	assert.Equal(t, "boom", got.LastError)
	assert.False(t, got.Enabled)

	tasks, err := scheduler.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestSchedulerStore_DeleteTask(t *testing.T) {
	store := setupTestStore(t)
	scheduler := store.SchedulerStore()
	ctx := context.Background()

	require.NoError(t, scheduler.SaveTask(ctx, &domain.ScheduledTask{ID: "t1", Name: "T", Interval: time.Minute}))
	require.NoError(t, scheduler.DeleteTask(ctx, "t1"))

	task, err := scheduler.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestSchedulerStore_RecordAndGetHistory(t *testing.T) {
	store := setupTestStore(t)
	scheduler := store.SchedulerStore()
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)
	for i := 0; i < 3; i++ {
		result := &domain.TaskResult{
			TaskID:         domain.TaskIDReconcileFull,
			StartedAt:      base.Add(time.Duration(i) * time.Minute),
			EndedAt:        base.Add(time.Duration(i)*time.Minute + 10*time.Second),
			Success:        i != 1,
			ItemsProcessed: i,
		}
		if i == 1 {
			result.Error = "sources unavailable"
		}
		require.NoError(t, scheduler.RecordResult(ctx, result))
	}

	history, err := scheduler.GetTaskHistory(ctx, domain.TaskIDReconcileFull, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	// Most recent first.
	assert.Equal(t, 2, history[0].ItemsProcessed)
	assert.Equal(t, 1, history[1].ItemsProcessed)
	assert.False(t, history[1].Success)
	assert.Equal(t, "sources unavailable", history[1].Error)
}

func TestSchedulerStore_PruneHistory(t *testing.T) {
	store := setupTestStore(t)
	scheduler := store.SchedulerStore()
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, scheduler.RecordResult(ctx, &domain.TaskResult{
			TaskID:    "t1",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			EndedAt:   base.Add(time.Duration(i)*time.Minute + time.Second),
			Success:   true,
		}))
	}

	require.NoError(t, scheduler.PruneHistory(ctx, 2))

	history, err := scheduler.GetTaskHistory(ctx, "t1", 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
