package mediastore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"sync"

	"github.com/yanqian/smart-notes/internal/domain/notes"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
)

// MemoryStorage keeps media in memory. Useful for tests and local dev.
type MemoryStorage struct {
	mu    sync.RWMutex
	blobs map[string]storedBlob
}

type storedBlob struct {
	data []byte
	meta notes.StoredMedia
}

// NewMemoryStorage constructs storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{blobs: make(map[string]storedBlob)}
}

// Put stores the blob and returns metadata.
func (s *MemoryStorage) Put(_ context.Context, key string, data []byte, mimeType string) (notes.StoredMedia, error) {
	hash := md5.Sum(data)
	meta := notes.StoredMedia{
		Key:      key,
		Size:     int64(len(data)),
		MimeType: mimeType,
		ETag:     hex.EncodeToString(hash[:]),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = storedBlob{data: append([]byte(nil), data...), meta: meta}
	return meta, nil
}

// Get returns a reader for the stored blob.
func (s *MemoryStorage) Get(_ context.Context, key string) (io.ReadCloser, notes.StoredMedia, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[key]
	if !ok {
		return nil, notes.StoredMedia{}, apperrors.Wrap(apperrors.CodeNotFound, "media not found", nil)
	}
	return io.NopCloser(bytes.NewReader(blob.data)), blob.meta, nil
}

var _ notes.MediaStorage = (*MemoryStorage)(nil)
