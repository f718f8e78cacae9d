package state

import (
	"context"
	"sync"
)

// MemoryStore keeps state in process memory only
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]int64
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]int64)}
}

// Get implements Store
func (m *MemoryStore) Get(ctx context.Context, namespace, key string) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[namespace][key]
	return v, ok, nil
}

// Set implements Store
func (m *MemoryStore) Set(ctx context.Context, namespace, key string, value int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string]int64)
		m.data[namespace] = ns
	}
	ns[key] = value
	return nil
}

// Raise implements Store
func (m *MemoryStore) Raise(ctx context.Context, namespace, key string, value int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string]int64)
		m.data[namespace] = ns
	}
	if cur, ok := ns[key]; ok && cur >= value {
		return cur, nil
	}
	ns[key] = value
	return value, nil
}

// List implements Lister
func (m *MemoryStore) List(ctx context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	for ns, keys := range m.data {
		for k, v := range keys {
			out = append(out, Entry{Namespace: ns, Key: k, Value: v})
		}
	}
	sortEntries(out)
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
