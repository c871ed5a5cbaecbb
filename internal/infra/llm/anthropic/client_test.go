package anthropic

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/smart-notes/internal/domain/provider"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
	"github.com/yanqian/smart-notes/pkg/retry"
)

type stubGenerator struct {
	generateFn func(ctx context.Context, in []*schema.Message) (*schema.Message, error)
}

func (s *stubGenerator) Generate(ctx context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	return s.generateFn(ctx, in)
}

func newTestClient(key string, gen generator, seen *claude.Config) *Client {
	c := NewClient(Options{APIKey: key, Retry: retry.Policy{Base: time.Millisecond, MaxRetries: 2}},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.newModel = func(_ context.Context, cfg *claude.Config) (generator, error) {
		if seen != nil {
			*seen = *cfg
		}
		return gen, nil
	}
	return c
}

func TestCompleteBuildsModelFromRequest(t *testing.T) {
	t.Parallel()

	var cfg claude.Config
	gen := &stubGenerator{generateFn: func(_ context.Context, in []*schema.Message) (*schema.Message, error) {
		require.Len(t, in, 1)
		require.Equal(t, schema.User, in[0].Role)
		require.Equal(t, "Define osmosis", in[0].Content)
		return schema.AssistantMessage("Diffusion of water", nil), nil
	}}

	got, err := newTestClient("default", gen, &cfg).Complete(context.Background(), provider.CompletionRequest{
		APIKey: "sk-ant", Model: "claude-sonnet-4-0", Prompt: "Define osmosis", Temperature: 1.6,
	})
	require.NoError(t, err)
	require.Equal(t, "Diffusion of water", got)
	require.Equal(t, "sk-ant", cfg.APIKey)
	require.Equal(t, "claude-sonnet-4-0", cfg.Model)
	require.Equal(t, defaultMaxTokens, cfg.MaxTokens)
	require.NotNil(t, cfg.Temperature)
	require.Equal(t, float32(1), *cfg.Temperature)
}

func TestCompleteRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := newTestClient("", &stubGenerator{}, nil).Complete(context.Background(), provider.CompletionRequest{Prompt: "x"})
	require.True(t, apperrors.IsCode(err, apperrors.CodeMissingCredentials))
}

func TestCompleteRetriesRateLimits(t *testing.T) {
	t.Parallel()

	calls := 0
	gen := &stubGenerator{generateFn: func(context.Context, []*schema.Message) (*schema.Message, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("POST /v1/messages: 429 Too Many Requests")
		}
		return schema.AssistantMessage("ok", nil), nil
	}}
	got, err := newTestClient("k", gen, nil).Complete(context.Background(), provider.CompletionRequest{Prompt: "x"})
	require.NoError(t, err)
	require.Equal(t, "ok", got)
	require.Equal(t, 2, calls)
}

func TestCompleteSurfacesFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	gen := &stubGenerator{generateFn: func(context.Context, []*schema.Message) (*schema.Message, error) {
		calls++
		return nil, errors.New("invalid model")
	}}
	_, err := newTestClient("k", gen, nil).Complete(context.Background(), provider.CompletionRequest{Prompt: "x"})
	require.True(t, apperrors.IsCode(err, apperrors.CodeLLM))
	require.Equal(t, 1, calls)
}
