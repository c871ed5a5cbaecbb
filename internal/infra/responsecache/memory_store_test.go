package responsecache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/smart-notes/internal/domain/provider"
)

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	key := provider.CacheKey("openai", "gpt-4o-mini", 1, "Define osmosis")
	require.NoError(t, store.Put(ctx, key, provider.CachedResponse{Message: "water moves"}, time.Minute))

	got, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "water moves", got.Message)

	now = now.Add(2 * time.Minute)
	_, ok, err = store.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, store.Len())
}

func TestMemoryStoreWithoutTTLNeverExpires(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "k", provider.CachedResponse{Message: "v"}, 0))
	store.now = func() time.Time { return time.Now().Add(24 * 365 * time.Hour) }
	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCacheKeyDistinguishesInputs(t *testing.T) {
	t.Parallel()

	base := provider.CacheKey("openai", "gpt-4o-mini", 1, "hi")
	require.Equal(t, base, provider.CacheKey("openai", "gpt-4o-mini", 1, "hi"))
	require.NotEqual(t, base, provider.CacheKey("openai", "gpt-4o-mini", 0.5, "hi"))
	require.NotEqual(t, base, provider.CacheKey("deepseek", "gpt-4o-mini", 1, "hi"))
	require.NotEqual(t, provider.CacheKey("a", "bc", 1, "d"), provider.CacheKey("ab", "c", 1, "d"))
	require.Len(t, base, 64)
}

func TestValkeyEntryKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "smartnotes:chat:abc", NewValkeyStore(nil, "").entryKey("abc"))
	require.Equal(t, "x:abc", NewValkeyStore(nil, "x").entryKey("abc"))
}
