// Package anthropic adapts the eino Claude chat model to the router.
package anthropic

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/yanqian/smart-notes/internal/domain/provider"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
	"github.com/yanqian/smart-notes/pkg/retry"
)

const defaultMaxTokens = 4096

type generator interface {
	Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

type modelFactory func(ctx context.Context, cfg *claude.Config) (generator, error)

// Client sends single turn prompts to Claude.
type Client struct {
	apiKey    string
	baseURL   string
	maxTokens int
	policy    retry.Policy
	newModel  modelFactory
	logger    *slog.Logger
}

// Options configures the client.
type Options struct {
	APIKey    string
	BaseURL   string
	MaxTokens int
	Retry     retry.Policy
}

// NewClient constructs a Claude client. Models are built per request because
// the key and temperature come from the user's settings.
func NewClient(opts Options, logger *slog.Logger) *Client {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{
		apiKey:    opts.APIKey,
		baseURL:   strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		maxTokens: maxTokens,
		policy:    opts.Retry,
		newModel: func(ctx context.Context, cfg *claude.Config) (generator, error) {
			cm, err := claude.NewChatModel(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return cm, nil
		},
		logger: logger.With("component", "llm.anthropic"),
	}
}

// Complete implements provider.ChatBackend.
func (c *Client) Complete(ctx context.Context, req provider.CompletionRequest) (string, error) {
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		key = c.apiKey
	}
	if key == "" {
		return "", apperrors.Wrap(apperrors.CodeMissingCredentials, "anthropic api key cannot be empty", nil)
	}

	temp := float32(req.Temperature)
	// Claude accepts temperatures up to 1.
	if temp > 1 {
		temp = 1
	}
	cfg := &claude.Config{
		APIKey:      key,
		Model:       req.Model,
		MaxTokens:   c.maxTokens,
		Temperature: &temp,
	}
	if c.baseURL != "" {
		base := c.baseURL
		cfg.BaseURL = &base
	}

	cm, err := c.newModel(ctx, cfg)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeLLM, "create claude model", err)
	}

	var out string
	err = c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		c.logger.Debug("claude generate", "model", req.Model, "retry", attempt)
		msg, err := cm.Generate(ctx, []*schema.Message{schema.UserMessage(req.Prompt)})
		if err != nil {
			if isRateLimited(err) {
				return retry.Retryable(apperrors.Wrap(apperrors.CodeRateLimited, "claude rate limited", err))
			}
			return apperrors.Wrap(apperrors.CodeLLM, "claude request failed", err)
		}
		if msg != nil {
			out = msg.Content
		}
		return nil
	})
	if err != nil {
		c.logger.Error("claude request failed", "model", req.Model, "error", err)
		return "", err
	}
	return out, nil
}

func isRateLimited(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate_limit") || strings.Contains(msg, "overloaded")
}

var _ provider.ChatBackend = (*Client)(nil)
