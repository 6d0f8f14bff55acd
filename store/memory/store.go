package memory

import (
	"context"
	"sync"

	"github.com/getpup/fanout-orchestrator/store"
)

// Store is an in-memory implementation of StateStore for testing and
// single-process runs that do not need to survive a restart.
// It provides thread-safe access using a sync.RWMutex.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte // key -> value
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

// Load returns a copy of the value stored under key.
// Returns store.ErrNotFound if the key does not exist.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, store.ErrEmptyKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}

	return append([]byte(nil), value...), nil
}

// Save stores a copy of value under key.
func (s *Store) Save(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return store.ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = append([]byte(nil), value...)
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
