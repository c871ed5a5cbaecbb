// Package replicate generates images with Replicate's predictions API.
package replicate

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

	"github.com/yanqian/smart-notes/internal/domain/catalog"
	"github.com/yanqian/smart-notes/internal/domain/provider"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
	"github.com/yanqian/smart-notes/pkg/retry"
)

const defaultBaseURL = "https://api.replicate.com/v1"

type predictionRequest struct {
	Input map[string]any `json:"input"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

func (p prediction) done() bool {
	switch p.Status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

// firstOutput handles both list and single string outputs.
func (p prediction) firstOutput() string {
	var list []string
	if err := json.Unmarshal(p.Output, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil {
		return single
	}
	return ""
}

// Client creates predictions for official models and downloads the result.
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	policy       retry.Policy
	pollInterval time.Duration
	logger       *slog.Logger
}

// Options configures the client.
type Options struct {
	APIKey       string
	BaseURL      string
	Timeout      time.Duration
	Retry        retry.Policy
	PollInterval time.Duration
}

// NewClient constructs a Replicate client.
func NewClient(opts Options, logger *slog.Logger) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = catalog.ImageTimeout
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &Client{
		apiKey:       opts.APIKey,
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: timeout},
		policy:       opts.Retry,
		pollInterval: poll,
		logger:       logger.With("component", "llm.replicate"),
	}
}

// GenerateImage implements provider.ImageBackend.
func (c *Client) GenerateImage(ctx context.Context, req provider.ImageGenerationRequest) ([]byte, error) {
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		key = c.apiKey
	}
	if key == "" {
		return nil, apperrors.Wrap(apperrors.CodeMissingCredentials,
			"Image generation provider 'replicate' requires API credentials. "+
				"Please configure your API key or use local Ollama with image models like flux.", nil)
	}
	ref := catalog.ReplicateModel(req.Model)

	pred, err := c.create(ctx, key, ref, req.Prompt)
	if err != nil {
		return nil, err
	}
	pred, err = c.wait(ctx, key, pred)
	if err != nil {
		return nil, err
	}
	if pred.Status != "succeeded" {
		return nil, apperrors.Wrap(apperrors.CodeImage, fmt.Sprintf("Replicate prediction %s %s: %v", pred.ID, pred.Status, pred.Error), nil)
	}
	url := pred.firstOutput()
	if url == "" {
		return nil, apperrors.Wrap(apperrors.CodeImage, "No output from Replicate API", nil)
	}
	return c.download(ctx, url)
}

func (c *Client) create(ctx context.Context, key, ref, prompt string) (prediction, error) {
	payload, err := json.Marshal(predictionRequest{Input: map[string]any{"prompt": prompt}})
	if err != nil {
		return prediction{}, fmt.Errorf("encode prediction: %w", err)
	}
	endpoint := c.baseURL + "/models/" + ref + "/predictions"

	var pred prediction
	err = c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		c.logger.Debug("create prediction", "model", ref, "retry", attempt)
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build prediction request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+key)
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Prefer", "wait")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return c.transportError(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return retry.Retryable(apperrors.Wrap(apperrors.CodeRateLimited, "Replicate rate limit", nil))
		case resp.StatusCode == http.StatusUnauthorized:
			return apperrors.Wrap(apperrors.CodeMissingCredentials, fmt.Sprintf("Replicate API error: %d - %s", resp.StatusCode, body), nil)
		case resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK:
			return apperrors.Wrap(apperrors.CodeImage, fmt.Sprintf("Replicate API error: %d - %s", resp.StatusCode, body), nil)
		}
		if err := json.Unmarshal(body, &pred); err != nil {
			return apperrors.Wrap(apperrors.CodeImage, "decode Replicate prediction", err)
		}
		return nil
	})
	return pred, err
}

func (c *Client) wait(ctx context.Context, key string, pred prediction) (prediction, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for !pred.done() {
		if pred.URLs.Get == "" {
			return pred, apperrors.Wrap(apperrors.CodeImage, "Replicate prediction has no status URL", nil)
		}
		select {
		case <-ctx.Done():
			return pred, ctx.Err()
		case <-ticker.C:
		}
		next, err := c.poll(ctx, key, pred.URLs.Get)
		if err != nil {
			return pred, err
		}
		pred = next
		c.logger.Debug("prediction status", "id", pred.ID, "status", pred.Status)
	}
	return pred, nil
}

func (c *Client) poll(ctx context.Context, key, url string) (prediction, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return prediction{}, fmt.Errorf("build poll request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return prediction{}, c.transportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return prediction{}, apperrors.Wrap(apperrors.CodeImage, fmt.Sprintf("Replicate API error: %d - %s", resp.StatusCode, body), nil)
	}
	var pred prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return prediction{}, apperrors.Wrap(apperrors.CodeImage, "decode Replicate prediction", err)
	}
	return pred, nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.transportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Wrap(apperrors.CodeImage, fmt.Sprintf("download image: status %d", resp.StatusCode), nil)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeImage, "download image", err)
	}
	return data, nil
}

func (c *Client) transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.Wrap(apperrors.CodeTimeout,
			fmt.Sprintf("Replicate image generation timed out after %ds", int(c.httpClient.Timeout.Seconds())), err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperrors.Wrap(apperrors.CodeUnreachable, "request Replicate", err)
}

var _ provider.ImageBackend = (*Client)(nil)
