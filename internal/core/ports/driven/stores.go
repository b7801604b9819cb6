package driven

import (
	"context"
	"time"

	"github.com/deskhub-io/deskhub/internal/core/domain"
)

// PageStore persists cached pages. Mutated only by the reconciler;
// the query layer and orchestrator only read.
type PageStore interface {
	// Get returns a page by ID, or domain.ErrNotFound.
	Get(ctx context.Context, pageID string) (*domain.CachedPage, error)

	// Save inserts or replaces a page.
	Save(ctx context.Context, page *domain.CachedPage) error

	// List returns all pages of a kind, including deleted ones.
	List(ctx context.Context, kind domain.RecordKind) ([]domain.CachedPage, error)

	// ListAll returns every cached page.
	ListAll(ctx context.Context) ([]domain.CachedPage, error)
}

// ThreadStore persists thread mappings. At most one mapping per page.
type ThreadStore interface {
	// Get returns the mapping for a page, or domain.ErrNotFound.
	Get(ctx context.Context, pageID string) (*domain.ThreadMapping, error)

	// Create inserts a mapping. Returns domain.ErrAlreadyExists if the
	// page already has one.
	Create(ctx context.Context, mapping *domain.ThreadMapping) error
}

// CursorStore persists per-service sync cursors.
type CursorStore interface {
	// Get returns the cursor for a service, or domain.ErrNotFound on
	// first run.
	Get(ctx context.Context, serviceID string) (*domain.SyncCursor, error)

	// Save stores or updates a cursor.
	Save(ctx context.Context, cursor domain.SyncCursor) error

	// List returns all known cursors.
	List(ctx context.Context) ([]domain.SyncCursor, error)
}

// WorkflowStore archives terminal workflow runs. Mutated only by the
// orchestrator.
type WorkflowStore interface {
	// Save archives a run (insert or replace by run ID).
	Save(ctx context.Context, run *domain.WorkflowRun) error

	// Get returns an archived run, or domain.ErrNotFound.
	Get(ctx context.Context, runID string) (*domain.WorkflowRun, error)

	// Prune removes runs that finished before the given time and
	// returns how many were removed.
	Prune(ctx context.Context, before time.Time) (int, error)
}

// SchedulerStore persists scheduled task state and execution history.
type SchedulerStore interface {
	// GetTask returns a task by ID, or nil if it does not exist.
	GetTask(ctx context.Context, taskID string) (*domain.ScheduledTask, error)

	// ListTasks returns all tasks.
	ListTasks(ctx context.Context) ([]domain.ScheduledTask, error)

	// SaveTask stores or updates a task.
	SaveTask(ctx context.Context, task *domain.ScheduledTask) error

	// DeleteTask removes a task.
	DeleteTask(ctx context.Context, taskID string) error

	// RecordResult appends a task execution result.
	RecordResult(ctx context.Context, result *domain.TaskResult) error

	// GetTaskHistory returns the most recent results for a task.
	GetTaskHistory(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error)

	// PruneHistory keeps only the most recent N results per task.
	PruneHistory(ctx context.Context, keep int) error
}
