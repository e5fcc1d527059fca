package websession

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	st      State
	expires time.Time
}

// MemoryStore keeps states in process with lazy expiry.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
	puts    int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memEntry), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, id string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return State{}, ErrNotFound
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, id)
		return State{}, ErrNotFound
	}
	return e.st, nil
}

func (m *MemoryStore) Put(_ context.Context, id string, st State, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.entries[id] = memEntry{st: st, expires: now.Add(ttl)}

	// Amortized sweep so abandoned connections do not accumulate.
	m.puts++
	if m.puts%256 == 0 {
		for k, e := range m.entries {
			if !now.Before(e.expires) {
				delete(m.entries, k)
			}
		}
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
