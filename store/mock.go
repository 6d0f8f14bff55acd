package store

import (
	"context"
	"sync"
)

// MockStateStore is a configurable mock implementation of StateStore
// for use in tests. Without hooks it behaves like an in-memory map, which
// lets tests inject errors for a single method while keeping real storage.
type MockStateStore struct {
	mu   sync.RWMutex
	data map[string][]byte

	// LoadFunc is called by Load if set.
	LoadFunc func(ctx context.Context, key string) ([]byte, error)

	// SaveFunc is called by Save if set.
	SaveFunc func(ctx context.Context, key string, value []byte) error

	// Call tracking
	LoadCalls []string
	SaveCalls []SaveCall
}

// SaveCall records the parameters of a single Save call.
type SaveCall struct {
	Key   string
	Value []byte
}

// NewMockStateStore creates a new mock state store.
func NewMockStateStore() *MockStateStore {
	return &MockStateStore{
		data: make(map[string][]byte),
	}
}

// Load implements StateStore.
func (m *MockStateStore) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	m.LoadCalls = append(m.LoadCalls, key)
	m.mu.Unlock()

	if m.LoadFunc != nil {
		return m.LoadFunc(ctx, key)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

// Save implements StateStore.
func (m *MockStateStore) Save(ctx context.Context, key string, value []byte) error {
	copied := append([]byte(nil), value...)

	m.mu.Lock()
	m.SaveCalls = append(m.SaveCalls, SaveCall{Key: key, Value: copied})
	m.mu.Unlock()

	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, key, value)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = copied
	return nil
}

// SavedKeys returns the keys passed to Save, in call order.
func (m *MockStateStore) SavedKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, len(m.SaveCalls))
	for i, c := range m.SaveCalls {
		keys[i] = c.Key
	}
	return keys
}

// Reset clears all call tracking and stored data.
func (m *MockStateStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make(map[string][]byte)
	m.LoadCalls = nil
	m.SaveCalls = nil
}
