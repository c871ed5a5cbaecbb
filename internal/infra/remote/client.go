// Package remote calls a running smart-notes server. The CLI uses it for
// providers it has no direct credentials for.
package remote

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
	"time"

	"github.com/yanqian/smart-notes/internal/domain/provider"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
)

type chatPayload struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Message     string  `json:"message"`
	Temperature float64 `json:"temperature"`
}

type chatResult struct {
	Messages []string `json:"messages"`
}

type ttsPayload struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Voice    string `json:"voice"`
	Input    string `json:"input"`
}

type imagePayload struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Prompt   string `json:"prompt"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the /api/v1 surface of a smart-notes server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient constructs a remote client. timeout bounds each call.
func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "remote.client"),
	}
}

// Complete implements provider.ChatBackend. An empty message list yields "".
func (c *Client) Complete(ctx context.Context, req provider.CompletionRequest) (string, error) {
	body, err := c.post(ctx, "/api/v1/chat", chatPayload{
		Provider:    req.Provider,
		Model:       req.Model,
		Message:     req.Prompt,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", err
	}
	var out chatResult
	if err := json.Unmarshal(body, &out); err != nil {
		return "", apperrors.Wrap(apperrors.CodeLLM, "decode chat response", err)
	}
	if len(out.Messages) == 0 {
		c.logger.Debug("empty response from chat provider", "provider", req.Provider)
		return "", nil
	}
	return out.Messages[0], nil
}

// Speak implements provider.SpeechBackend.
func (c *Client) Speak(ctx context.Context, req provider.SpeechRequest) ([]byte, error) {
	return c.post(ctx, "/api/v1/tts", ttsPayload{
		Provider: req.Provider,
		Model:    req.Model,
		Voice:    req.Voice,
		Input:    req.Input,
	})
}

// GenerateImage implements provider.ImageBackend.
func (c *Client) GenerateImage(ctx context.Context, req provider.ImageGenerationRequest) ([]byte, error) {
	return c.post(ctx, "/api/v1/image", imagePayload{
		Provider: req.Provider,
		Model:    req.Model,
		Prompt:   req.Prompt,
	})
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("remote request", "path", path)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, apperrors.Wrap(apperrors.CodeTimeout, "smart-notes server timed out", err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, apperrors.Wrap(apperrors.CodeUnreachable, "could not reach smart-notes server at "+c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, decodeError(resp.StatusCode, body)
	}
	return body, nil
}

func decodeError(status int, body []byte) error {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		code := env.Error.Code
		if code == "" {
			code = apperrors.CodeLLM
		}
		return apperrors.Wrap(code, env.Error.Message, nil)
	}
	code := apperrors.CodeLLM
	if status == http.StatusUnauthorized {
		code = apperrors.CodeInvalidToken
	}
	return apperrors.Wrap(code, fmt.Sprintf("smart-notes server error: %d - %s", status, strings.TrimSpace(string(body))), nil)
}

var _ provider.RemoteBackend = (*Client)(nil)
