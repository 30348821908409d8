package store

import "sync"

// MemoryProvider is a map-backed Provider for tests and single-node
// deployments that do not need durability across restarts.
type MemoryProvider struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryProvider returns an empty in-memory store.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{data: make(map[string][]byte)}
}

// Get returns a copy of the stored value or ErrNotFound.
func (m *MemoryProvider) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

// Set stores a copy of the value under key.
func (m *MemoryProvider) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryProvider) Close() error { return nil }

// Len reports the number of stored keys. Exposed for tests.
func (m *MemoryProvider) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
