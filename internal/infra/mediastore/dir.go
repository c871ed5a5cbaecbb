package mediastore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/yanqian/smart-notes/internal/domain/notes"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
)

// DirStorage writes media as flat files into one directory, the layout of the
// host's collection.media folder.
type DirStorage struct {
	dir string
}

// NewDirStorage creates dir when needed.
func NewDirStorage(dir string) (*DirStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "failed to create media directory", err)
	}
	return &DirStorage{dir: dir}, nil
}

func (s *DirStorage) file(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", apperrors.Wrap(apperrors.CodeInvalidInput, "invalid media key "+key, nil)
	}
	return filepath.Join(s.dir, key), nil
}

// Put writes the blob through a temp file so readers never see partial media.
func (s *DirStorage) Put(_ context.Context, key string, data []byte, mimeType string) (notes.StoredMedia, error) {
	path, err := s.file(key)
	if err != nil {
		return notes.StoredMedia{}, err
	}
	tmp, err := os.CreateTemp(s.dir, ".media-*")
	if err != nil {
		return notes.StoredMedia{}, apperrors.Wrap(apperrors.CodeStorage, "failed to write media", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return notes.StoredMedia{}, apperrors.Wrap(apperrors.CodeStorage, "failed to write media", err)
	}
	if err := tmp.Close(); err != nil {
		return notes.StoredMedia{}, apperrors.Wrap(apperrors.CodeStorage, "failed to write media", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return notes.StoredMedia{}, apperrors.Wrap(apperrors.CodeStorage, "failed to write media", err)
	}
	hash := md5.Sum(data)
	return notes.StoredMedia{
		Key:      key,
		Size:     int64(len(data)),
		MimeType: mimeType,
		ETag:     hex.EncodeToString(hash[:]),
	}, nil
}

// Get opens a stored file. The mime type is derived from the extension.
func (s *DirStorage) Get(_ context.Context, key string) (io.ReadCloser, notes.StoredMedia, error) {
	path, err := s.file(key)
	if err != nil {
		return nil, notes.StoredMedia{}, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, notes.StoredMedia{}, apperrors.Wrap(apperrors.CodeNotFound, "media not found", err)
	}
	if err != nil {
		return nil, notes.StoredMedia{}, apperrors.Wrap(apperrors.CodeStorage, "failed to open media", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, notes.StoredMedia{}, apperrors.Wrap(apperrors.CodeStorage, "failed to stat media", err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(key))
	if mimeType == "" {
		mimeType = http.DetectContentType(nil)
	}
	return f, notes.StoredMedia{Key: key, Size: info.Size(), MimeType: mimeType}, nil
}

var _ notes.MediaStorage = (*DirStorage)(nil)
