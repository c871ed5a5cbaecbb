package responsecache

import (
	"context"
	"sync"
	"time"

	"github.com/yanqian/smart-notes/internal/domain/provider"
)

type entry struct {
	payload   provider.CachedResponse
	expiresAt time.Time
}

// MemoryStore is an in-memory response cache for the CLI and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemoryStore constructs a store backed by process memory.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get implements provider.ResponseCache.
func (s *MemoryStore) Get(_ context.Context, key string) (provider.CachedResponse, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return provider.CachedResponse{}, false, nil
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return provider.CachedResponse{}, false, nil
	}
	return e.payload, true, nil
}

// Put caches the response with optional TTL.
func (s *MemoryStore) Put(_ context.Context, key string, resp provider.CachedResponse, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp := time.Time{}
	if ttl > 0 {
		exp = s.now().Add(ttl)
	}
	s.entries[key] = entry{payload: resp, expiresAt: exp}
	return nil
}

// Len reports the number of entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var _ provider.ResponseCache = (*MemoryStore)(nil)
