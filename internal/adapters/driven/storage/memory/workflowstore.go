package memory

import (
	"context"
	"sync"
	"time"

	"github.com/deskhub-io/deskhub/internal/core/domain"
	"github.com/deskhub-io/deskhub/internal/core/ports/driven"
)

// Ensure WorkflowStore implements the interface.
var _ driven.WorkflowStore = (*WorkflowStore)(nil)

// WorkflowStore is an in-memory implementation of driven.WorkflowStore.
type WorkflowStore struct {
	mu   sync.RWMutex
	runs map[string]domain.WorkflowRun
}

// NewWorkflowStore creates a new in-memory workflow store.
func NewWorkflowStore() *WorkflowStore {
	return &WorkflowStore{
		runs: make(map[string]domain.WorkflowRun),
	}
}

// Save archives a run (insert or replace by run ID).
func (s *WorkflowStore) Save(_ context.Context, run *domain.WorkflowRun) error {
	if run == nil || run.RunID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = *run
	return nil
}

// Get retrieves an archived run.
func (s *WorkflowStore) Get(_ context.Context, runID string) (*domain.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &run, nil
}

// Prune removes runs that finished before the given time.
func (s *WorkflowStore) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, run := range s.runs {
		if !run.FinishedAt.IsZero() && run.FinishedAt.Before(before) {
			delete(s.runs, id)
			n++
		}
	}
	return n, nil
}
