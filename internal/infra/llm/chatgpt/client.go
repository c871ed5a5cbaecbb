package chatgpt

import (
	"bufio"
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
	"github.com/yanqian/smart-notes/pkg/retry"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Message mirrors the OpenAI chat message structure.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the payload sent to the chat completions API.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// ChatCompletionResponse captures the response for non streaming calls.
type ChatCompletionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ChatCompletionStreamChunk captures a streaming frame.
type ChatCompletionStreamChunk struct {
	Choices []struct {
		Delta        Message `json:"delta"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// SpeechRequest is the payload for /audio/speech.
type SpeechRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Voice string `json:"voice"`
}

// Client performs HTTP requests to an OpenAI compatible API. DeepSeek is
// served by the same client with a different base URL.
type Client struct {
	name       string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	policy     retry.Policy
	logger     *slog.Logger
}

// Options configures a Client.
type Options struct {
	// Name labels errors and logs, e.g. "openai" or "deepseek".
	Name    string
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Retry   retry.Policy
}

// NewClient constructs a client. The API key may be empty when every request
// supplies its own.
func NewClient(opts Options, logger *slog.Logger) *Client {
	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	name := opts.Name
	if name == "" {
		name = "openai"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		name:       name,
		apiKey:     opts.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		policy:     opts.Retry,
		logger:     logger.With("component", "llm.chatgpt", "provider", name),
	}
}

func (c *Client) key(override string) (string, error) {
	if k := strings.TrimSpace(override); k != "" {
		return k, nil
	}
	if c.apiKey != "" {
		return c.apiKey, nil
	}
	return "", apperrors.Wrap(apperrors.CodeMissingCredentials, c.name+" api key cannot be empty", nil)
}

// Complete implements provider.ChatBackend.
func (c *Client) Complete(ctx context.Context, req provider.CompletionRequest) (string, error) {
	temp := req.Temperature
	resp, err := c.CreateChatCompletion(ctx, req.APIKey, ChatCompletionRequest{
		Model:       req.Model,
		Messages:    []Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteStream implements provider.StreamingChatBackend.
func (c *Client) CompleteStream(ctx context.Context, req provider.CompletionRequest, onDelta func(string) error) (string, error) {
	temp := req.Temperature
	stream, err := c.CreateChatCompletionStream(ctx, req.APIKey, ChatCompletionRequest{
		Model:       req.Model,
		Messages:    []Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var full strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return full.String(), nil
		}
		if err != nil {
			return full.String(), apperrors.Wrap(apperrors.CodeLLM, c.name+" stream interrupted", err)
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			full.WriteString(choice.Delta.Content)
			if onDelta != nil {
				if err := onDelta(choice.Delta.Content); err != nil {
					return full.String(), err
				}
			}
		}
	}
}

// Speak implements provider.SpeechBackend using /audio/speech.
func (c *Client) Speak(ctx context.Context, req provider.SpeechRequest) ([]byte, error) {
	key, err := c.key(req.APIKey)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(SpeechRequest{Model: req.Model, Input: req.Input, Voice: req.Voice})
	if err != nil {
		return nil, fmt.Errorf("encode speech request: %w", err)
	}
	c.logger.Debug("speech request", "model", req.Model, "voice", req.Voice)
	audio, err := c.send(ctx, key, "/audio/speech", payload)
	if err != nil {
		return nil, retag(err, apperrors.CodeTTS)
	}
	return audio, nil
}

// CreateChatCompletion triggers a sync call.
func (c *Client) CreateChatCompletion(ctx context.Context, apiKey string, req ChatCompletionRequest) (ChatCompletionResponse, error) {
	var out ChatCompletionResponse
	key, err := c.key(apiKey)
	if err != nil {
		return out, err
	}
	req.Stream = false
	payload, err := json.Marshal(req)
	if err != nil {
		return out, fmt.Errorf("encode chat completion request: %w", err)
	}
	c.logger.Debug("chat completion", "model", req.Model)
	body, err := c.send(ctx, key, "/chat/completions", payload)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, apperrors.Wrap(apperrors.CodeLLM, "decode chat completion", err)
	}
	return out, nil
}

// CreateChatCompletionStream starts a streaming call.
func (c *Client) CreateChatCompletionStream(ctx context.Context, apiKey string, req ChatCompletionRequest) (Stream, error) {
	key, err := c.key(apiKey)
	if err != nil {
		return nil, err
	}
	req.Stream = true
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode chat completion request: %w", err)
	}
	httpReq, err := c.newHTTPRequest(ctx, key, "/chat/completions", payload, true)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.transportError(err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, c.statusError(resp.StatusCode, data)
	}

	reader := bufio.NewScanner(resp.Body)
	reader.Buffer(make([]byte, 0, 1024), 1<<20)

	return &ChatCompletionStream{
		scanner: reader,
		closer:  resp.Body,
	}, nil
}

// send posts payload, retrying rate limits with the client's policy.
func (c *Client) send(ctx context.Context, key, path string, payload []byte) ([]byte, error) {
	var out []byte
	err := c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			c.logger.Debug("retrying request", "path", path, "retry", attempt)
		}
		httpReq, err := c.newHTTPRequest(ctx, key, path, payload, false)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return c.transportError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			statusErr := c.statusError(resp.StatusCode, data)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return retry.Retryable(statusErr)
			}
			return statusErr
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read %s response: %w", c.name, err)
		}
		out = body
		return nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrMaxRetries) {
			c.logger.Error("max retries exceeded", "path", path, "error", err)
		}
		return nil, err
	}
	return out, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, key, path string, payload []byte, stream bool) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", c.name, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	return httpReq, nil
}

func (c *Client) statusError(status int, body []byte) error {
	code := apperrors.CodeLLM
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code = apperrors.CodeMissingCredentials
	case status == http.StatusTooManyRequests:
		code = apperrors.CodeRateLimited
	}
	return apperrors.Wrap(code, fmt.Sprintf("%s request failed: status=%d body=%s", c.name, status, strings.TrimSpace(string(body))), nil)
}

func (c *Client) transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.Wrap(apperrors.CodeTimeout, fmt.Sprintf("%s request timed out after %ds", c.name, int(c.httpClient.Timeout.Seconds())), err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperrors.Wrap(apperrors.CodeUnreachable, "request "+c.name, err)
}

// retag moves generic llm failures to another code, e.g. tts_error.
func retag(err error, code string) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code == apperrors.CodeLLM {
		return apperrors.Wrap(code, appErr.Message, appErr.Err)
	}
	return err
}

// Stream defines the interface for streaming chat completions.
type Stream interface {
	Recv() (ChatCompletionStreamChunk, error)
	Close() error
}

// ChatCompletionStream wraps a streaming HTTP response.
type ChatCompletionStream struct {
	scanner *bufio.Scanner
	closer  io.Closer
}

// Recv reads the next streaming chunk.
func (s *ChatCompletionStream) Recv() (ChatCompletionStreamChunk, error) {
	for {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				s.Close()
				return ChatCompletionStreamChunk{}, err
			}
			s.Close()
			return ChatCompletionStreamChunk{}, io.EOF
		}
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			s.Close()
			return ChatCompletionStreamChunk{}, io.EOF
		}
		var chunk ChatCompletionStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			s.Close()
			return ChatCompletionStreamChunk{}, fmt.Errorf("decode stream chunk: %w", err)
		}
		return chunk, nil
	}
}

// Close closes the underlying stream.
func (s *ChatCompletionStream) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

var (
	_ provider.ChatBackend          = (*Client)(nil)
	_ provider.StreamingChatBackend = (*Client)(nil)
	_ provider.SpeechBackend        = (*Client)(nil)
)
