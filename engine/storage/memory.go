package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/evaldash/engine/types"
)

// MemoryStore is an in-memory HistoryStore.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*types.RunRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*types.RunRecord)}
}

// SaveRun stores a run, assigning an id when none is set.
func (s *MemoryStore) SaveRun(ctx context.Context, run *types.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	s.runs[run.ID] = run
	return nil
}

// GetRun returns the run with the given id.
func (s *MemoryStore) GetRun(ctx context.Context, id string) (*types.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// ListRuns returns all runs, newest first, optionally filtered by
// project.
func (s *MemoryStore) ListRuns(ctx context.Context, project string) ([]*types.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]*types.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		if project != "" && run.ProjectName != project {
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

// DeleteRun removes the run with the given id.
func (s *MemoryStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return ErrRunNotFound
	}
	delete(s.runs, id)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
