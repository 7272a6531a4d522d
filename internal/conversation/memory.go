package conversation

import (
	"context"
	"maps"
	"sync"
)

// MemoryStore loses everything on restart, which puts every user back to
// idle.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[int64]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[int64]State)}
}

func (m *MemoryStore) Get(_ context.Context, userID int64) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.states[userID]
	if !ok {
		return Idle(), nil
	}
	return State{Stage: s.Stage, Fields: maps.Clone(s.Fields)}, nil
}

func (m *MemoryStore) Set(ctx context.Context, userID int64, state State) error {
	if state.IsIdle() {
		return m.Clear(ctx, userID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[userID] = State{Stage: state.Stage, Fields: maps.Clone(state.Fields)}
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, userID)
	return nil
}
