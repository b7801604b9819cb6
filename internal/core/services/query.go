package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/deskhub-io/deskhub/internal/core/domain"
	"github.com/deskhub-io/deskhub/internal/core/ports/driven"
	"github.com/deskhub-io/deskhub/internal/core/ports/driving"
)

// Ensure QueryService implements the interface.
var _ driving.Query = (*QueryService)(nil)

// QueryService serves read-only projections over the page cache. It
// never talks to external services and never consumes rate budget.
type QueryService struct {
	pages driven.PageStore
	now   func() time.Time
}

// NewQueryService creates a query service over the page store.
func NewQueryService(pages driven.PageStore) *QueryService {
	return &QueryService{
		pages: pages,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Search returns non-deleted pages matching the query, most recent
// CreatedAt first, ties broken by page ID ascending.
func (s *QueryService) Search(ctx context.Context, q domain.SearchQuery) ([]domain.CachedPage, error) {
	if q.Kind != "" && !q.Kind.IsValid() {
		return nil, &domain.ValidationError{Param: "kind", Reason: fmt.Sprintf("unknown kind %q", q.Kind)}
	}

	pages, err := s.pages.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	cutoff := s.cutoff(q.SinceDays)
	needle := strings.ToLower(q.Text)

	var out []domain.CachedPage
	for _, p := range pages {
		if p.Deleted {
			continue
		}
		if p.CreatedAt.Before(cutoff) {
			continue
		}
		if q.Kind != "" && p.Kind != q.Kind {
			continue
		}
		if q.Owner != "" && !strings.EqualFold(p.Owner, q.Owner) {
			continue
		}
		if needle != "" && !matches(&p, needle) {
			continue
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].PageID < out[j].PageID
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Aggregate folds non-deleted pages into time buckets plus kind and
// owner counts.
func (s *QueryService) Aggregate(ctx context.Context, q domain.AggregateQuery) (*domain.AggregateResult, error) {
	if !q.Bucket.IsValid() {
		return nil, &domain.ValidationError{Param: "bucket", Reason: fmt.Sprintf("unknown bucket %q", q.Bucket)}
	}

	pages, err := s.pages.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	cutoff := s.cutoff(q.SinceDays)
	res := &domain.AggregateResult{
		Bucket:      q.Bucket,
		Buckets:     make(map[string]int),
		ByKind:      make(map[domain.RecordKind]int),
		ByOwner:     make(map[string]int),
		GeneratedAt: s.now(),
	}

	for _, p := range pages {
		if p.Deleted || p.CreatedAt.Before(cutoff) {
			continue
		}
		if q.Kind != "" && p.Kind != q.Kind {
			continue
		}
		if q.Owner != "" && !strings.EqualFold(p.Owner, q.Owner) {
			continue
		}
		res.Buckets[bucketKey(q.Bucket, p.CreatedAt)]++
		res.ByKind[p.Kind]++
		if p.Owner != "" {
			res.ByOwner[p.Owner]++
		}
		res.Total++
	}
	return res, nil
}

// cutoff converts a look-back window in days into an absolute bound.
// Zero means the 90-day default; larger values are clamped to 90.
func (s *QueryService) cutoff(sinceDays int) time.Time {
	days := sinceDays
	if days <= 0 || days > domain.SearchDaysCap {
		days = domain.SearchDaysCap
	}
	return s.now().AddDate(0, 0, -days)
}

// matches reports whether the lowercase needle occurs in the page title
// or any string field value.
func matches(p *domain.CachedPage, needle string) bool {
	if strings.Contains(strings.ToLower(p.Title), needle) {
		return true
	}
	for _, f := range p.Fields {
		if s, ok := f.Value.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

// bucketKey formats a timestamp into its bucket key: the calendar day,
// the week's Monday, or the calendar month.
func bucketKey(bucket domain.TimeBucket, t time.Time) string {
	switch bucket {
	case domain.BucketWeek:
		weekday := int(t.Weekday())
		if weekday == 0 {
			weekday = 7 // Sunday belongs to the week started 6 days back
		}
		monday := t.AddDate(0, 0, -(weekday - 1))
		return monday.Format("2006-01-02")
	case domain.BucketMonth:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}
