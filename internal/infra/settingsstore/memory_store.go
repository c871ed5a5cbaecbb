package settingsstore

import (
	"context"
	"sync"

	"github.com/yanqian/smart-notes/internal/domain/settings"
)

// MemoryStore keeps settings in process.
type MemoryStore struct {
	mu    sync.RWMutex
	value settings.Settings
	saves int
}

// NewMemoryStore seeds the store with initial settings.
func NewMemoryStore(initial settings.Settings) *MemoryStore {
	return &MemoryStore{value: initial.Clone()}
}

// Load implements settings.Store.
func (m *MemoryStore) Load(context.Context) (settings.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.value.Clone(), nil
}

// Save implements settings.Store.
func (m *MemoryStore) Save(_ context.Context, v settings.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = v.Clone()
	m.saves++
	return nil
}

// Saves reports how many times Save was called.
func (m *MemoryStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

var _ settings.Store = (*MemoryStore)(nil)
