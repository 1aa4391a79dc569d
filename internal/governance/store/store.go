// Package store implements the State Store (C3): persistence and
// reload of RunState by run_id, with an in-memory implementation for
// tests and a single-file SQLite implementation for production.
package store

import (
	"context"
	"sync"

	"github.com/novapact/gcu-go/internal/domain"
)

// Store is the four-operation persistence contract of spec §4.3.
// Concurrent Save/Load for the same run_id must be linearizable; Save
// calls for distinct run_ids must not block each other beyond
// store-level serialization.
type Store interface {
	Save(ctx context.Context, state domain.RunState) error
	Load(ctx context.Context, runID string) (domain.RunState, bool, error)
	Delete(ctx context.Context, runID string) error
	Exists(ctx context.Context, runID string) (bool, error)
}

// InMemoryStore is a mutex-guarded map, the reference implementation
// used by unit tests across the governance packages.
type InMemoryStore struct {
	mu    sync.Mutex
	runs  map[string]domain.RunState
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{runs: make(map[string]domain.RunState)}
}

func (s *InMemoryStore) Save(_ context.Context, state domain.RunState) error {
	if err := state.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	history := make([]domain.TransitionRecord, len(state.History))
	copy(history, state.History)
	state.History = history
	s.runs[state.RunID] = state
	return nil
}

func (s *InMemoryStore) Load(_ context.Context, runID string) (domain.RunState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.runs[runID]
	if !ok {
		return domain.RunState{}, false, nil
	}
	history := make([]domain.TransitionRecord, len(state.History))
	copy(history, state.History)
	state.History = history
	return state, true, nil
}

func (s *InMemoryStore) Delete(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
	return nil
}

func (s *InMemoryStore) Exists(_ context.Context, runID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.runs[runID]
	return ok, nil
}
