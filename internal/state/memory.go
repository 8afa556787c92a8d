package state

import (
	"context"
	"fmt"
	"sync"
)

type memoryStore struct {
	mu    sync.RWMutex
	state State
	saves int
}

// NewMemoryStore creates a concurrency-safe in-memory store useful for unit
// tests. A nil initial state behaves like a missing state file.
func NewMemoryStore(initial State) Store {
	m := &memoryStore{}
	if initial != nil {
		m.state = initial.Clone()
	}
	return m
}

func (m *memoryStore) Load(_ context.Context) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return nil, fmt.Errorf("%w: %w", ErrStateFile, ErrNoState)
	}
	return m.state.Clone(), nil
}

func (m *memoryStore) Save(_ context.Context, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s.Clone()
	m.saves++
	return nil
}

// SaveCount is a test helper reporting how many times Save succeeded on a
// store created with NewMemoryStore.
func SaveCount(s Store) int {
	if mem, ok := s.(*memoryStore); ok {
		mem.mu.RLock()
		defer mem.mu.RUnlock()
		return mem.saves
	}
	return 0
}
