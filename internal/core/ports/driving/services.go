package driving

import (
	"context"

	"github.com/deskhub-io/deskhub/internal/core/domain"
)

// Orchestrator executes composite operations as sagas with compensation.
type Orchestrator interface {
	// Orchestrate dispatches a named composite operation with loosely
	// typed parameters (the shape chat command layers produce).
	// Validation errors surface before any external call.
	Orchestrate(ctx context.Context, operation string, params map[string]any) (*domain.RunSummary, error)

	// CreateMeeting runs the create-meeting saga: document-store page,
	// calendar event, chat event, thread notification.
	CreateMeeting(ctx context.Context, req domain.MeetingRequest) (*domain.RunSummary, error)

	// CreateTask runs the create-task saga: document-store task page
	// with a mandatory due date, then a chat notification.
	CreateTask(ctx context.Context, req domain.TaskRequest) (*domain.RunSummary, error)
}

// Reconciler keeps the local cache converged with the external source
// of truth and owns thread mappings.
type Reconciler interface {
	// ApplyRecord idempotently upserts one record snapshot. Returns
	// true when the snapshot was applied, false when discarded as
	// stale or duplicate.
	ApplyRecord(ctx context.Context, rec domain.ExternalRecord) (bool, error)

	// ApplyPush handles one inbound push notification: it re-fetches
	// the record through its adapter and applies it.
	ApplyPush(ctx context.Context, n domain.PushNotification) error

	// ReconcileFull runs one full reconciliation cycle across all
	// sources: cursor fetch, batch apply, live-set diff for deletions.
	ReconcileFull(ctx context.Context) (*domain.ReconcileSummary, error)

	// EnsureThreadMapping returns the thread mapping for a page,
	// creating the chat thread first if none exists. Idempotent.
	EnsureThreadMapping(ctx context.Context, pageID, bucketKey string) (*domain.ThreadMapping, error)

	// SyncStatus reports the current synchronization state.
	SyncStatus(ctx context.Context) (*domain.SyncStatus, error)
}

// Query provides read-only projections over the cache.
type Query interface {
	// Search returns non-deleted pages matching the query, most recent
	// CreatedAt first, ties broken by page ID ascending.
	Search(ctx context.Context, q domain.SearchQuery) ([]domain.CachedPage, error)

	// Aggregate folds non-deleted pages into time buckets and
	// kind/owner counts. Never consumes rate budget.
	Aggregate(ctx context.Context, q domain.AggregateQuery) (*domain.AggregateResult, error)
}
