package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/yanqian/smart-notes/pkg/metrics"
)

// CachedResponse is a chat reply kept for identical prompts.
type CachedResponse struct {
	Message   string             `json:"message"`
	Provider  string             `json:"provider"`
	Model     string             `json:"model"`
	Usage     metrics.TokenUsage `json:"usage"`
	CreatedAt time.Time          `json:"createdAt"`
}

// ResponseCache stores chat replies keyed by CacheKey.
type ResponseCache interface {
	Get(ctx context.Context, key string) (CachedResponse, bool, error)
	Put(ctx context.Context, key string, resp CachedResponse, ttl time.Duration) error
}

// CacheKey hashes everything that influences a completion.
func CacheKey(provider, model string, temperature float64, prompt string) string {
	h := sha256.New()
	for _, part := range []string{provider, model, strconv.FormatFloat(temperature, 'f', -1, 64), prompt} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
