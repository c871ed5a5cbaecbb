package mediastore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/smart-notes/pkg/errors"
)

func TestMemoryStorageRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage()
	ctx := context.Background()

	meta, err := store.Put(ctx, "smart-notes-a.mp3", []byte("ID3"), "audio/mpeg")
	require.NoError(t, err)
	require.Equal(t, int64(3), meta.Size)
	require.NotEmpty(t, meta.ETag)

	rc, got, err := store.Get(ctx, "smart-notes-a.mp3")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "ID3", string(data))
	require.Equal(t, "audio/mpeg", got.MimeType)

	_, _, err = store.Get(ctx, "missing.png")
	require.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestSanitizeEndpoint(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"https://acct.r2.cloudflarestorage.com/bucket": "acct.r2.cloudflarestorage.com",
		"http://localhost:9000":                        "localhost:9000",
		"  minio:9000  ":                               "minio:9000",
		"":                                             "",
	}
	for in, want := range tests {
		in, want := in, want
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, want, sanitizeEndpoint(in))
		})
	}
}

func TestDirStorage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewDirStorage(dir)
	require.NoError(t, err)
	ctx := context.Background()

	meta, err := store.Put(ctx, "smart-notes-b.png", []byte("\x89PNG\r\n\x1a\n"), "image/png")
	require.NoError(t, err)
	require.Equal(t, int64(8), meta.Size)
	require.FileExists(t, filepath.Join(dir, "smart-notes-b.png"))

	rc, got, err := store.Get(ctx, "smart-notes-b.png")
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "image/png", got.MimeType)
	require.Equal(t, int64(8), got.Size)

	_, _, err = store.Get(ctx, "absent.png")
	require.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	for _, key := range []string{"../escape.png", "nested/file.png", ".hidden", ""} {
		_, err := store.Put(ctx, key, []byte("x"), "text/plain")
		require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput), key)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
