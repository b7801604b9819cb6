package memory

import (
	"context"
	"sync"

	"github.com/deskhub-io/deskhub/internal/core/domain"
	"github.com/deskhub-io/deskhub/internal/core/ports/driven"
)

// Ensure CursorStore implements the interface.
var _ driven.CursorStore = (*CursorStore)(nil)

// CursorStore is an in-memory implementation of driven.CursorStore.
type CursorStore struct {
	mu      sync.RWMutex
	cursors map[string]domain.SyncCursor
}

// NewCursorStore creates a new in-memory cursor store.
func NewCursorStore() *CursorStore {
	return &CursorStore{
		cursors: make(map[string]domain.SyncCursor),
	}
}

// Save stores or updates a cursor.
func (s *CursorStore) Save(_ context.Context, cursor domain.SyncCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[cursor.ServiceID] = cursor
	return nil
}

// Get retrieves the cursor for a service.
func (s *CursorStore) Get(_ context.Context, serviceID string) (*domain.SyncCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cursor, ok := s.cursors[serviceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &cursor, nil
}

// List returns all known cursors.
func (s *CursorStore) List(_ context.Context) ([]domain.SyncCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cursors := make([]domain.SyncCursor, 0, len(s.cursors))
	for _, c := range s.cursors {
		cursors = append(cursors, c)
	}
	return cursors, nil
}
