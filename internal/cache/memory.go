package cache

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu   sync.RWMutex
	sets map[string][]byte
}

// NewMemoryStore creates a Store that keeps everything in process memory.
// It does not survive restarts and is meant for tests and dry runs.
func NewMemoryStore() Store {
	return &memoryStore{sets: make(map[string][]byte)}
}

func (m *memoryStore) ReadSet(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	payload, ok := m.sets[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

func (m *memoryStore) WriteSet(_ context.Context, key string, payload []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	stored := make([]byte, len(payload))
	copy(stored, payload)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets[key] = stored
	return nil
}

func (m *memoryStore) DeleteSet(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sets, key)
	return nil
}
