package responsecache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/smart-notes/internal/domain/provider"
)

// ValkeyStore persists chat replies in a Valkey-compatible database.
type ValkeyStore struct {
	client valkey.Client
	prefix string
}

// NewValkeyStore constructs a new store backed by Valkey.
func NewValkeyStore(client valkey.Client, prefix string) *ValkeyStore {
	if prefix == "" {
		prefix = "smartnotes:chat"
	}
	return &ValkeyStore{client: client, prefix: prefix}
}

// Get implements provider.ResponseCache.
func (s *ValkeyStore) Get(ctx context.Context, key string) (provider.CachedResponse, bool, error) {
	cmd := s.client.B().Get().Key(s.entryKey(key)).Build()
	payload, err := s.client.Do(ctx, cmd).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return provider.CachedResponse{}, false, nil
		}
		return provider.CachedResponse{}, false, err
	}
	var resp provider.CachedResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return provider.CachedResponse{}, false, err
	}
	return resp, true, nil
}

// Put implements provider.ResponseCache.
func (s *ValkeyStore) Put(ctx context.Context, key string, resp provider.CachedResponse, ttl time.Duration) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	builder := s.client.B().Set().Key(s.entryKey(key)).Value(string(payload))
	var cmd valkey.Completed
	if ttl > 0 {
		if ttl < time.Second {
			ttl = time.Second
		}
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}
	return s.client.Do(ctx, cmd).Error()
}

func (s *ValkeyStore) entryKey(key string) string {
	return s.prefix + ":" + key
}

var _ provider.ResponseCache = (*ValkeyStore)(nil)
