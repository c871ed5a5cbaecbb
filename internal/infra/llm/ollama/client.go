// Package ollama is a client for the local Ollama chat server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/yanqian/smart-notes/internal/domain/catalog"
	"github.com/yanqian/smart-notes/internal/domain/provider"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
	"github.com/yanqian/smart-notes/pkg/retry"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Message *chatMessage `json:"message"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Client calls /api/chat and /api/tags on an Ollama server. The endpoint is
// chosen per call so the router can follow the user's settings.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	policy     retry.Policy
	logger     *slog.Logger
}

// NewClient constructs an Ollama client.
func NewClient(timeout time.Duration, policy retry.Policy, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = catalog.OllamaTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		policy:     policy,
		logger:     logger.With("component", "llm.ollama"),
	}
}

func endpointOrDefault(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return catalog.DefaultEndpoint
	}
	return endpoint
}

// Complete sends a single user message and returns the assistant reply.
func (c *Client) Complete(ctx context.Context, req provider.CompletionRequest) (string, error) {
	endpoint := endpointOrDefault(req.Endpoint)
	model := req.Model
	if model == "" {
		model = catalog.DefaultOllamaModel
	}
	payload, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: req.Prompt}},
		Stream:   false,
		Options:  map[string]any{"temperature": req.Temperature},
	})
	if err != nil {
		return "", fmt.Errorf("encode ollama request: %w", err)
	}

	var out string
	err = c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		c.logger.Debug("ollama chat", "endpoint", endpoint, "model", model, "retry", attempt)
		body, err := c.do(ctx, http.MethodPost, endpoint, "/api/chat", payload, "Ollama API error")
		if err != nil {
			return err
		}
		var resp chatResponse
		if err := json.Unmarshal(body, &resp); err != nil || resp.Message == nil {
			c.logger.Error("unexpected ollama response", "body", truncate(body))
			return apperrors.Wrap(apperrors.CodeLLM, "Unexpected response format from Ollama", err)
		}
		out = resp.Message.Content
		return nil
	})
	if err != nil {
		return "", c.finalError(err)
	}
	return out, nil
}

// Models lists the model names installed on the server.
func (c *Client) Models(ctx context.Context, endpoint string) ([]string, error) {
	endpoint = endpointOrDefault(endpoint)
	var names []string
	err := c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		c.logger.Debug("ollama tags", "endpoint", endpoint, "retry", attempt)
		body, err := c.do(ctx, http.MethodGet, endpoint, "/api/tags", nil, "Ollama tags API error")
		if err != nil {
			return err
		}
		var resp tagsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return apperrors.Wrap(apperrors.CodeLLM, "Unexpected response format from Ollama", err)
		}
		names = names[:0]
		for _, m := range resp.Models {
			if m.Name != "" {
				names = append(names, m.Name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, c.finalError(err)
	}
	c.logger.Debug("ollama models discovered", "models", names)
	return names, nil
}

func (c *Client) do(ctx context.Context, method, endpoint, path string, payload []byte, failure string) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint+path, body)
	if err != nil {
		return nil, fmt.Errorf("build ollama request: %w", err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.transportError(endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Retryable(fmt.Errorf("read ollama response: %w", err))
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Debug("ollama rate limited")
		return nil, retry.Retryable(apperrors.Wrap(apperrors.CodeRateLimited, fmt.Sprintf("%s: %d - %s", failure, resp.StatusCode, truncate(data)), nil))
	case resp.StatusCode >= 500:
		return nil, retry.Retryable(apperrors.Wrap(apperrors.CodeLLM, fmt.Sprintf("%s: %d - %s", failure, resp.StatusCode, truncate(data)), nil))
	case resp.StatusCode >= 400:
		c.logger.Error(failure, "status", resp.StatusCode, "body", truncate(data))
		return nil, apperrors.Wrap(apperrors.CodeLLM, fmt.Sprintf("%s: %d - %s", failure, resp.StatusCode, truncate(data)), nil)
	}
	return data, nil
}

func (c *Client) transportError(endpoint string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		c.logger.Error("ollama timeout", "endpoint", endpoint, "timeout", c.timeout)
		return apperrors.Wrap(apperrors.CodeTimeout,
			fmt.Sprintf("Ollama request timed out after %ds. Is Ollama running at %s?", int(c.timeout.Seconds()), endpoint), nil)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var opErr *net.OpError
	if errors.Is(err, syscall.ECONNREFUSED) || errors.As(err, &opErr) {
		c.logger.Error("ollama unreachable", "endpoint", endpoint, "error", err)
		return apperrors.Wrap(apperrors.CodeUnreachable,
			fmt.Sprintf("Could not connect to Ollama at %s. Is Ollama running?", endpoint), err)
	}
	return retry.Retryable(fmt.Errorf("request ollama: %w", err))
}

func (c *Client) finalError(err error) error {
	if errors.Is(err, retry.ErrMaxRetries) {
		code := apperrors.CodeOf(err)
		if code == "" {
			code = apperrors.CodeLLM
		}
		return apperrors.Wrap(code, "Max retries exceeded for Ollama API", err)
	}
	return err
}

func truncate(b []byte) string {
	const limit = 4 << 10
	if len(b) > limit {
		return string(b[:limit])
	}
	return string(b)
}

var _ provider.OllamaBackend = (*Client)(nil)
