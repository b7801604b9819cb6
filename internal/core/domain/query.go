package domain

import "time"

// SearchDaysCap is the hard upper bound on the search look-back window.
const SearchDaysCap = 90

// SearchQuery selects cached pages by text match and filters.
type SearchQuery struct {
	// Text is matched case-insensitively against title and field values.
	Text string

	// Kind restricts results to one record kind when non-empty.
	Kind RecordKind

	// Owner restricts results to one owner when non-empty.
	Owner string

	// SinceDays bounds CreatedAt to the last N days. Zero means the
	// default of 90; values above the cap are clamped to 90.
	SinceDays int

	// Limit caps the number of results. Zero means no limit.
	Limit int
}

// TimeBucket is the grouping granularity for aggregation.
type TimeBucket string

const (
	// BucketDay groups by calendar day (YYYY-MM-DD).
	BucketDay TimeBucket = "day"
	// BucketWeek groups by ISO-style week starting Monday (the Monday's
	// date is the key).
	BucketWeek TimeBucket = "week"
	// BucketMonth groups by calendar month (YYYY-MM).
	BucketMonth TimeBucket = "month"
)

// IsValid reports whether the bucket is a known granularity.
func (b TimeBucket) IsValid() bool {
	switch b {
	case BucketDay, BucketWeek, BucketMonth:
		return true
	}
	return false
}

// AggregateQuery groups non-deleted cached pages by a time bucket.
// It is a pure read-side fold over the cache: no external calls, no
// rate budget consumed.
type AggregateQuery struct {
	// Bucket is the time granularity. Required.
	Bucket TimeBucket

	// Kind restricts the fold to one record kind when non-empty.
	Kind RecordKind

	// Owner restricts the fold to one owner when non-empty.
	Owner string

	// SinceDays bounds CreatedAt to the last N days. Zero means the
	// default of 90; values above the cap are clamped to 90.
	SinceDays int
}

// AggregateResult is the outcome of one aggregation.
type AggregateResult struct {
	// Bucket echoes the requested granularity.
	Bucket TimeBucket

	// Buckets maps bucket key to page count.
	Buckets map[string]int

	// ByKind maps record kind to page count over the whole window.
	ByKind map[RecordKind]int

	// ByOwner maps owner to page count over the whole window.
	ByOwner map[string]int

	// Total is the number of pages folded.
	Total int

	// GeneratedAt is when the fold ran.
	GeneratedAt time.Time
}
