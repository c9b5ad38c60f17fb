package dedup

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps ids in process memory. Expired ids are pruned lazily on
// Mark.
type MemoryStore struct {
	mu        sync.Mutex
	ttl       time.Duration
	seen      map[string]time.Time
	now       func() time.Time
	lastPrune time.Time
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Mark implements Store.
func (m *MemoryStore) Mark(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.prune(now)

	if expires, ok := m.seen[id]; ok && now.Before(expires) {
		return true, nil
	}
	m.seen[id] = now.Add(m.ttl)
	return false, nil
}

// Len returns the number of remembered ids, including expired ones not yet
// pruned.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = make(map[string]time.Time)
	return nil
}

// prune runs at most once per TTL.
func (m *MemoryStore) prune(now time.Time) {
	if now.Sub(m.lastPrune) < m.ttl {
		return
	}
	for id, expires := range m.seen {
		if !now.Before(expires) {
			delete(m.seen, id)
		}
	}
	m.lastPrune = now
}
