package storage

import (
	"errors"
	"sync"
)

// ErrKeyNotFound is returned by Get and propagated through
// entrykit.KVResult.Err when a field doesn't exist in an entry's Store.
var ErrKeyNotFound = errors.New("key not found")

// Store is the minimal key/value contract a KVEntry needs from its backing
// field storage. Implementations must be safe for concurrent use.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	// List returns every key currently stored, in no particular order.
	List() []string
	Stats() StoreStats
}

// StoreStats is a point-in-time snapshot of a Store's size, returned by the
// KVStats op so a caller can inspect an entry's footprint without listing
// and summing every field itself.
type StoreStats struct {
	Keys  int
	Bytes int
}

// MemoryStore is a Store backed by a plain map, with no persistence across
// restarts. internal/shard's remembered entry set records only which entry
// ids exist, so an entry restarted from it comes back with an empty Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (m *MemoryStore) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	return nil
}

// Delete is idempotent: deleting a key that isn't present is not an error.
func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

func (m *MemoryStore) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		keys = append(keys, key)
	}
	return keys
}

func (m *MemoryStore) Stats() StoreStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := StoreStats{Keys: len(m.data)}
	for _, value := range m.data {
		stats.Bytes += len(value)
	}
	return stats
}
