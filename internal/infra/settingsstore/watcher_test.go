package settingsstore

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yanqian/smart-notes/internal/domain/settings"
)

type reloadFunc func(ctx context.Context) (settings.Settings, error)

func (f reloadFunc) Reload(ctx context.Context) (settings.Settings, error) { return f(ctx) }

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWatcherReloadsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "meta.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))

	reloaded := make(chan struct{}, 8)
	w := NewWatcher(path, reloadFunc(func(context.Context) (settings.Settings, error) {
		reloaded <- struct{}{}
		return settings.Defaults(), nil
	}), newTestLogger()).WithDebounce(20 * time.Millisecond)

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{}`), 0o644))
	require.NoError(t, NewFileStore(path).Save(context.Background(), settings.Defaults()))

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("settings were not reloaded")
	}

	w.Stop()
	w.Stop()
}

func TestWatcherStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWatcher(filepath.Join(t.TempDir(), "meta.json"), reloadFunc(func(context.Context) (settings.Settings, error) {
		return settings.Settings{}, nil
	}), newTestLogger())
	require.NoError(t, w.Start(ctx))
	cancel()
	w.Stop()
}

func TestWatcherMissingDirectory(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "missing", "meta.json"), reloadFunc(func(context.Context) (settings.Settings, error) {
		return settings.Settings{}, nil
	}), newTestLogger())
	require.Error(t, w.Start(context.Background()))
}
