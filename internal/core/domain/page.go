package domain

import "time"

// CachedPage is the reconciler's durable cache entry for one external
// record. For a given PageID the Version only ever increases; a snapshot
// with an equal-or-older source timestamp than LastSyncedAt is a no-op.
type CachedPage struct {
	// PageID equals the source record ID and is unique in the cache.
	PageID string

	// Kind classifies the page.
	Kind RecordKind

	// Title is the denormalized title used for search.
	Title string

	// Owner is the denormalized owner used for search and analytics.
	Owner string

	// Fields is the full normalized property snapshot.
	Fields Fields

	// CreatedAt is the source-side creation time.
	CreatedAt time.Time

	// LastSyncedAt is the source modification timestamp of the applied
	// snapshot, not the local wall-clock apply time.
	LastSyncedAt time.Time

	// Version increases by one on every applied snapshot.
	Version int64

	// Deleted marks pages absent from the live source set. Deleted pages
	// are retained for audit but excluded from search and analytics.
	Deleted bool

	// MissedCycles counts consecutive full reconciliations in which the
	// page was absent from the live set. Deletion requires two misses so
	// one transient listing failure is never misread as mass deletion.
	MissedCycles int
}

// ThreadMapping associates a cached page with a chat discussion thread
// and the calendar-day bucket it was created under. At most one mapping
// exists per page.
type ThreadMapping struct {
	// PageID is the cached page the thread belongs to.
	PageID string

	// ThreadID is the chat-platform thread identifier.
	ThreadID string

	// BucketKey is the calendar-day bucket the thread was created under,
	// formatted as YYYY-MM-DD.
	BucketKey string

	// CreatedAt is when the mapping was created locally.
	CreatedAt time.Time
}
