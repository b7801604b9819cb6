package memory

import (
	"context"
	"sync"

	"github.com/deskhub-io/deskhub/internal/core/domain"
	"github.com/deskhub-io/deskhub/internal/core/ports/driven"
)

// Ensure ThreadStore implements the interface.
var _ driven.ThreadStore = (*ThreadStore)(nil)

// ThreadStore is an in-memory implementation of driven.ThreadStore.
type ThreadStore struct {
	mu       sync.RWMutex
	mappings map[string]domain.ThreadMapping
}

// NewThreadStore creates a new in-memory thread store.
func NewThreadStore() *ThreadStore {
	return &ThreadStore{
		mappings: make(map[string]domain.ThreadMapping),
	}
}

// Create inserts a mapping. Returns domain.ErrAlreadyExists if the page
// already has one.
func (s *ThreadStore) Create(_ context.Context, mapping *domain.ThreadMapping) error {
	if mapping == nil || mapping.PageID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mappings[mapping.PageID]; ok {
		return domain.ErrAlreadyExists
	}
	s.mappings[mapping.PageID] = *mapping
	return nil
}

// Get retrieves the mapping for a page.
func (s *ThreadStore) Get(_ context.Context, pageID string) (*domain.ThreadMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mapping, ok := s.mappings[pageID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &mapping, nil
}
