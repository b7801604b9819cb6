// Package memory provides in-memory implementations of the driven store
// ports, used in tests and for ephemeral runs without a data directory.
package memory

import (
	"context"
	"sync"

	"github.com/deskhub-io/deskhub/internal/core/domain"
	"github.com/deskhub-io/deskhub/internal/core/ports/driven"
)

// Ensure PageStore implements the interface.
var _ driven.PageStore = (*PageStore)(nil)

// PageStore is an in-memory implementation of driven.PageStore.
type PageStore struct {
	mu    sync.RWMutex
	pages map[string]domain.CachedPage
}

// NewPageStore creates a new in-memory page store.
func NewPageStore() *PageStore {
	return &PageStore{
		pages: make(map[string]domain.CachedPage),
	}
}

// Save inserts or replaces a page.
func (s *PageStore) Save(_ context.Context, page *domain.CachedPage) error {
	if page == nil || page.PageID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[page.PageID] = *page
	return nil
}

// Get retrieves a page by ID.
func (s *PageStore) Get(_ context.Context, pageID string) (*domain.CachedPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, ok := s.pages[pageID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &page, nil
}

// List returns all pages of a kind, including deleted ones.
func (s *PageStore) List(_ context.Context, kind domain.RecordKind) ([]domain.CachedPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pages []domain.CachedPage
	for _, p := range s.pages {
		if p.Kind == kind {
			pages = append(pages, p)
		}
	}
	return pages, nil
}

// ListAll returns every cached page.
func (s *PageStore) ListAll(_ context.Context) ([]domain.CachedPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pages := make([]domain.CachedPage, 0, len(s.pages))
	for _, p := range s.pages {
		pages = append(pages, p)
	}
	return pages, nil
}
