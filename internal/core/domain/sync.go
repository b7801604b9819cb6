package domain

import "time"

// SyncCursor is the per-service resume position for polling. It advances
// only after a fetched batch has been fully applied to the cache, so a
// crash mid-batch replays from the last committed position.
type SyncCursor struct {
	// ServiceID identifies the external service.
	ServiceID string

	// Cursor is an opaque service-specific token. Empty means
	// "beginning of time" (first run).
	Cursor string

	// LastSync is when the cursor last advanced.
	LastSync time.Time
}

// ReconcileSummary reports one full reconciliation cycle.
type ReconcileSummary struct {
	// StartedAt and FinishedAt bound the cycle.
	StartedAt  time.Time
	FinishedAt time.Time

	// Applied counts records upserted into the cache.
	Applied int

	// Discarded counts stale or duplicate snapshots dropped by the
	// idempotent upsert.
	Discarded int

	// Deleted counts pages marked deleted this cycle.
	Deleted int

	// Missing counts pages absent from the live set for the first time
	// (not yet deleted; pending a second miss).
	Missing int

	// Skipped lists services whose cycle was skipped after a fetch
	// failure. Their cursors did not advance.
	Skipped []string
}

// SyncStatus is the externally visible synchronization state.
type SyncStatus struct {
	// LastReconcileAt is when the last full reconciliation finished.
	LastReconcileAt time.Time

	// Cursors holds the current resume position per service.
	Cursors map[string]SyncCursor

	// PendingErrors lists the errors recorded by skipped cycles since
	// the last successful full reconciliation.
	PendingErrors []string
}
