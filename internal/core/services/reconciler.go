package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/deskhub-io/deskhub/internal/core/domain"
	"github.com/deskhub-io/deskhub/internal/core/ports/driven"
	"github.com/deskhub-io/deskhub/internal/core/ports/driving"
	"github.com/deskhub-io/deskhub/internal/logger"
	"github.com/deskhub-io/deskhub/internal/ratelimit"
)

// deletionMissThreshold is how many consecutive full reconciliations a
// page must be absent from the live set before it is marked deleted.
// Two passes guard against a transient listing failure being misread as
// mass deletion.
const deletionMissThreshold = 2

// Ensure Reconciler implements the interface.
var _ driving.Reconciler = (*Reconciler)(nil)

// Reconciler is the cache reconciliation engine. It is the only
// component that mutates cached pages and thread mappings.
type Reconciler struct {
	pages   driven.PageStore
	threads driven.ThreadStore
	cursors driven.CursorStore
	sources []driven.RecordSource
	chat    driven.ChatService
	client  *ratelimit.Client

	// defaultChannelID is where new discussion threads are opened.
	defaultChannelID string

	// keys serializes reconciliation per page ID.
	keys *keyedMutex

	// status tracking
	mu              sync.Mutex
	reconciling     bool
	lastReconcileAt time.Time
	pendingErrors   []string
}

// NewReconciler creates a reconciler over the given sources.
func NewReconciler(
	pages driven.PageStore,
	threads driven.ThreadStore,
	cursors driven.CursorStore,
	sources []driven.RecordSource,
	chat driven.ChatService,
	client *ratelimit.Client,
	defaultChannelID string,
) *Reconciler {
	return &Reconciler{
		pages:            pages,
		threads:          threads,
		cursors:          cursors,
		sources:          sources,
		chat:             chat,
		client:           client,
		defaultChannelID: defaultChannelID,
		keys:             newKeyedMutex(),
	}
}

// ApplyRecord idempotently upserts one record snapshot into the cache.
// Returns true when the snapshot was applied, false when it was
// discarded because the cache already holds an equal-or-newer version.
func (r *Reconciler) ApplyRecord(ctx context.Context, rec domain.ExternalRecord) (bool, error) {
	if rec.RecordID == "" {
		return false, fmt.Errorf("%w: record has no ID", domain.ErrInvalidInput)
	}

	unlock := r.keys.Lock(rec.RecordID)
	defer unlock()

	page, err := r.pages.Get(ctx, rec.RecordID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		page = &domain.CachedPage{
			PageID:    rec.RecordID,
			CreatedAt: rec.CreatedAt,
		}
	case err != nil:
		return false, fmt.Errorf("get page: %w", err)
	default:
		// Duplicate delivery or stale snapshot: discard silently.
		if !rec.LastModified.After(page.LastSyncedAt) {
			logger.Debug("discarding stale snapshot for %s (%s <= %s)",
				rec.RecordID, rec.LastModified.Format(time.RFC3339), page.LastSyncedAt.Format(time.RFC3339))
			return false, nil
		}
	}

	page.Kind = rec.Kind
	page.Title = rec.Title()
	page.Owner = rec.Owner()
	page.Fields = rec.Fields
	page.LastSyncedAt = rec.LastModified
	page.Deleted = rec.Deleted
	page.MissedCycles = 0
	page.Version++
	if page.CreatedAt.IsZero() {
		page.CreatedAt = rec.LastModified
	}

	if err := r.pages.Save(ctx, page); err != nil {
		return false, fmt.Errorf("save page: %w", err)
	}
	logger.Debug("applied %s v%d (%s)", page.PageID, page.Version, page.Kind)
	return true, nil
}

// ApplyPush handles one inbound push notification by re-fetching the
// referenced record through its adapter and applying the result. Safe
// to replay: the upsert discards duplicates.
func (r *Reconciler) ApplyPush(ctx context.Context, n domain.PushNotification) error {
	if n.RecordID == "" {
		return fmt.Errorf("%w: push has no record ID", domain.ErrInvalidInput)
	}
	src := r.sourceFor(n.Kind)
	if src == nil {
		return fmt.Errorf("%w: no source handles kind %q", domain.ErrUnknownService, n.Kind)
	}

	var rec *domain.ExternalRecord
	err := r.client.Execute(ctx, src.ServiceID(), func(ctx context.Context) error {
		var ferr error
		rec, ferr = src.FetchRecord(ctx, n.RecordID)
		return ferr
	})
	if errors.Is(err, domain.ErrNotFound) {
		// The record is gone at the source. Mark the cached page
		// deleted if we hold one; an unknown ID is a no-op.
		if _, gerr := r.pages.Get(ctx, n.RecordID); errors.Is(gerr, domain.ErrNotFound) {
			return nil
		} else if gerr != nil {
			return fmt.Errorf("get page: %w", gerr)
		}
		rec = &domain.ExternalRecord{
			RecordID:     n.RecordID,
			Kind:         n.Kind,
			LastModified: time.Now().UTC(),
			Deleted:      true,
		}
	} else if err != nil {
		return fmt.Errorf("fetch record %s: %w", n.RecordID, err)
	}

	if _, err := r.ApplyRecord(ctx, *rec); err != nil {
		return err
	}
	return nil
}

// ReconcileFull runs one full reconciliation cycle: per-source cursor
// fetch with batch apply, then a live-set diff per kind for deletion
// detection. A fetch failure skips that service for the cycle without
// advancing its cursor.
func (r *Reconciler) ReconcileFull(ctx context.Context) (*domain.ReconcileSummary, error) {
	r.mu.Lock()
	if r.reconciling {
		r.mu.Unlock()
		return nil, domain.ErrReconcileInProgress
	}
	r.reconciling = true
	r.pendingErrors = nil
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.reconciling = false
		r.mu.Unlock()
	}()

	summary := &domain.ReconcileSummary{StartedAt: time.Now().UTC()}
	logger.Section("full reconciliation")

	for _, src := range r.sources {
		r.syncSource(ctx, src, summary)
	}

	summary.FinishedAt = time.Now().UTC()

	r.mu.Lock()
	r.lastReconcileAt = summary.FinishedAt
	r.mu.Unlock()

	logger.Info("reconcile complete: %d applied, %d discarded, %d deleted, %d missing, %d skipped",
		summary.Applied, summary.Discarded, summary.Deleted, summary.Missing, len(summary.Skipped))
	return summary, nil
}

// syncSource fetches and applies one service's changes, then diffs its
// live key set against the cache.
func (r *Reconciler) syncSource(ctx context.Context, src driven.RecordSource, summary *domain.ReconcileSummary) {
	serviceID := src.ServiceID()

	cursorVal := ""
	cur, err := r.cursors.Get(ctx, serviceID)
	if err == nil {
		cursorVal = cur.Cursor
	} else if !errors.Is(err, domain.ErrNotFound) {
		r.skipService(summary, serviceID, fmt.Errorf("load cursor: %w", err))
		return
	}

	// Each batch is fetched through its own rate-limited call. A failure
	// mid-scan leaves the cursor untouched, so the whole scan replays
	// next cycle (the upsert discards what already landed).
	var (
		scan      string
		newCursor string
	)
	for {
		var batch []domain.ExternalRecord
		err = r.client.Execute(ctx, serviceID, func(ctx context.Context) error {
			var ferr error
			batch, scan, newCursor, ferr = src.FetchSince(ctx, cursorVal, scan)
			return ferr
		})
		if err != nil {
			r.skipService(summary, serviceID, fmt.Errorf("fetch since: %w", err))
			return
		}

		for _, rec := range batch {
			applied, aerr := r.ApplyRecord(ctx, rec)
			if aerr != nil {
				// Cursor must not advance past an unapplied record.
				r.skipService(summary, serviceID, fmt.Errorf("apply %s: %w", rec.RecordID, aerr))
				return
			}
			if applied {
				summary.Applied++
			} else {
				summary.Discarded++
			}
		}

		if scan == "" {
			break
		}
	}

	if err := r.cursors.Save(ctx, domain.SyncCursor{
		ServiceID: serviceID,
		Cursor:    newCursor,
		LastSync:  time.Now().UTC(),
	}); err != nil {
		r.skipService(summary, serviceID, fmt.Errorf("save cursor: %w", err))
		return
	}

	for _, kind := range src.Kinds() {
		r.detectDeletions(ctx, src, kind, summary)
	}
}

// detectDeletions diffs the live ID set for one kind against the cache.
// Pages absent for deletionMissThreshold consecutive cycles are marked
// deleted; their thread mappings are retained for audit.
func (r *Reconciler) detectDeletions(ctx context.Context, src driven.RecordSource, kind domain.RecordKind, summary *domain.ReconcileSummary) {
	serviceID := src.ServiceID()

	var (
		ids       []string
		pageToken string
	)
	for {
		var chunk []string
		err := r.client.Execute(ctx, serviceID, func(ctx context.Context) error {
			var ferr error
			chunk, pageToken, ferr = src.ListIDs(ctx, kind, pageToken)
			return ferr
		})
		if err != nil {
			// A failed listing must never be misread as deletion.
			r.skipService(summary, serviceID, fmt.Errorf("list %s ids: %w", kind, err))
			return
		}
		ids = append(ids, chunk...)
		if pageToken == "" {
			break
		}
	}

	live := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		live[id] = struct{}{}
	}

	cached, err := r.pages.List(ctx, kind)
	if err != nil {
		r.skipService(summary, serviceID, fmt.Errorf("list cached %s pages: %w", kind, err))
		return
	}

	for i := range cached {
		pageID := cached[i].PageID
		if _, ok := live[pageID]; ok {
			if cached[i].MissedCycles > 0 && !cached[i].Deleted {
				r.resetMisses(ctx, pageID)
			}
			continue
		}
		if cached[i].Deleted {
			continue
		}
		r.recordMiss(ctx, pageID, summary)
	}
}

// resetMisses clears the miss counter for a page that reappeared in the
// live set.
func (r *Reconciler) resetMisses(ctx context.Context, pageID string) {
	unlock := r.keys.Lock(pageID)
	defer unlock()

	page, err := r.pages.Get(ctx, pageID)
	if err != nil {
		return
	}
	if page.MissedCycles == 0 {
		return
	}
	page.MissedCycles = 0
	if err := r.pages.Save(ctx, page); err != nil {
		logger.Warn("reset misses for %s: %v", pageID, err)
	}
}

// recordMiss increments a page's miss counter, marking it deleted on
// the second consecutive miss.
func (r *Reconciler) recordMiss(ctx context.Context, pageID string, summary *domain.ReconcileSummary) {
	unlock := r.keys.Lock(pageID)
	defer unlock()

	page, err := r.pages.Get(ctx, pageID)
	if err != nil || page.Deleted {
		return
	}

	page.MissedCycles++
	if page.MissedCycles >= deletionMissThreshold {
		page.Deleted = true
		page.Version++
		summary.Deleted++
		logger.Info("page %s absent for %d cycles, marked deleted", pageID, page.MissedCycles)
	} else {
		summary.Missing++
		logger.Debug("page %s missing from live set (miss %d)", pageID, page.MissedCycles)
	}

	if err := r.pages.Save(ctx, page); err != nil {
		logger.Warn("record miss for %s: %v", pageID, err)
	}
}

// EnsureThreadMapping returns the page's thread mapping, creating the
// chat thread first when none exists. Idempotent: a second call returns
// the existing mapping and opens no second thread.
func (r *Reconciler) EnsureThreadMapping(ctx context.Context, pageID, bucketKey string) (*domain.ThreadMapping, error) {
	if pageID == "" {
		return nil, fmt.Errorf("%w: empty page ID", domain.ErrInvalidInput)
	}

	unlock := r.keys.Lock("thread/" + pageID)
	defer unlock()

	mapping, err := r.threads.Get(ctx, pageID)
	if err == nil {
		return mapping, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get thread mapping: %w", err)
	}

	title := bucketKey
	if page, perr := r.pages.Get(ctx, pageID); perr == nil && page.Title != "" {
		title = fmt.Sprintf("%s %s", bucketKey, page.Title)
	}

	var threadID string
	err = r.client.Execute(ctx, r.chat.ServiceID(), func(ctx context.Context) error {
		var cerr error
		threadID, cerr = r.chat.CreateThread(ctx, r.defaultChannelID, title)
		return cerr
	})
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}

	mapping = &domain.ThreadMapping{
		PageID:    pageID,
		ThreadID:  threadID,
		BucketKey: bucketKey,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.threads.Create(ctx, mapping); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Lost a race with another process; the existing mapping wins.
			return r.threads.Get(ctx, pageID)
		}
		return nil, fmt.Errorf("save thread mapping: %w", err)
	}
	return mapping, nil
}

// SyncStatus reports the current synchronization state.
func (r *Reconciler) SyncStatus(ctx context.Context) (*domain.SyncStatus, error) {
	cursors, err := r.cursors.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}

	byService := make(map[string]domain.SyncCursor, len(cursors))
	for _, c := range cursors {
		byService[c.ServiceID] = c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return &domain.SyncStatus{
		LastReconcileAt: r.lastReconcileAt,
		Cursors:         byService,
		PendingErrors:   append([]string(nil), r.pendingErrors...),
	}, nil
}

// skipService records a skipped cycle for one service.
func (r *Reconciler) skipService(summary *domain.ReconcileSummary, serviceID string, err error) {
	skipped := &domain.ReconcileSkippedError{ServiceID: serviceID, Err: err}
	logger.Warn("%v", skipped)

	for _, s := range summary.Skipped {
		if s == serviceID {
			r.appendPendingError(skipped.Error())
			return
		}
	}
	summary.Skipped = append(summary.Skipped, serviceID)
	r.appendPendingError(skipped.Error())
}

func (r *Reconciler) appendPendingError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingErrors = append(r.pendingErrors, msg)
}

// sourceFor returns the source that handles a kind, or nil.
func (r *Reconciler) sourceFor(kind domain.RecordKind) driven.RecordSource {
	for _, src := range r.sources {
		for _, k := range src.Kinds() {
			if k == kind {
				return src
			}
		}
	}
	return nil
}
