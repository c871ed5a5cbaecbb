package historyrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yanqian/smart-notes/internal/domain/notes"
)

// MemoryRepository is an in-memory HistoryRepository used for tests/dev.
type MemoryRepository struct {
	mu     sync.RWMutex
	byNote map[int64][]notes.HistoryEntry
	now    func() time.Time
}

// NewMemoryRepository constructs a repo backed by memory.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byNote: make(map[int64][]notes.HistoryEntry),
		now:    time.Now,
	}
}

// Append implements notes.HistoryRepository.
func (r *MemoryRepository) Append(_ context.Context, entry notes.HistoryEntry) (notes.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	r.byNote[entry.NoteID] = append(r.byNote[entry.NoteID], entry)
	return entry, nil
}

// ListByNote implements notes.HistoryRepository, newest first.
func (r *MemoryRepository) ListByNote(_ context.Context, noteID int64, limit int) ([]notes.HistoryEntry, error) {
	r.mu.RLock()
	entries := append([]notes.HistoryEntry(nil), r.byNote[noteID]...)
	r.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

var _ notes.HistoryRepository = (*MemoryRepository)(nil)
