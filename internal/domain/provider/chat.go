package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yanqian/smart-notes/internal/domain/catalog"
	"github.com/yanqian/smart-notes/internal/domain/settings"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
	"github.com/yanqian/smart-notes/pkg/metrics"
)

// Respond routes a chat prompt to the configured provider.
func (r *router) Respond(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	return r.respond(ctx, req, nil)
}

// RespondStream behaves like Respond but reports deltas as they arrive when
// the backend can stream. Other backends deliver the full message once.
func (r *router) RespondStream(ctx context.Context, req ChatRequest, onDelta func(string) error) (ChatResponse, error) {
	if onDelta == nil {
		onDelta = func(string) error { return nil }
	}
	return r.respond(ctx, req, onDelta)
}

func (r *router) respond(ctx context.Context, req ChatRequest, onDelta func(string) error) (ChatResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return ChatResponse{}, apperrors.Wrap(apperrors.CodeInvalidInput, "prompt is required", nil)
	}
	s, err := r.current(ctx)
	if err != nil {
		return ChatResponse{}, err
	}
	cr := r.resolveChat(s, req)
	if !catalog.IsProvider(catalog.KindChat, cr.Provider) {
		return ChatResponse{}, apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("unknown chat provider %q", cr.Provider), nil)
	}

	cacheKey := ""
	if r.cacheEnabled() {
		cacheKey = CacheKey(cr.Provider, cr.Model, cr.Temperature, cr.Prompt)
		if hit, ok := r.cached(ctx, cacheKey); ok {
			if onDelta != nil && hit.Message != "" {
				if err := onDelta(hit.Message); err != nil {
					return ChatResponse{}, err
				}
			}
			return ChatResponse{Message: hit.Message, Provider: cr.Provider, Model: cr.Model, Usage: hit.Usage, Cached: true}, nil
		}
	}

	backend, timeout, err := r.chatBackend(ctx, s, &cr)
	if err != nil {
		return ChatResponse{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.logger.Debug("chat request", "provider", cr.Provider, "model", cr.Model, "endpoint", cr.Endpoint, "note_id", req.NoteID)
	var msg string
	if streamer, ok := backend.(StreamingChatBackend); ok && onDelta != nil {
		msg, err = streamer.CompleteStream(ctx, cr, onDelta)
	} else {
		msg, err = backend.Complete(ctx, cr)
		if err == nil && onDelta != nil && msg != "" {
			err = onDelta(msg)
		}
	}
	if err != nil {
		err = timedOut("chat", cr.Provider, timeout, err)
		r.logger.Error("chat request failed", "provider", cr.Provider, "model", cr.Model, "error", err)
		return ChatResponse{}, err
	}
	if msg == "" {
		r.logger.Debug("empty response from chat provider", "provider", cr.Provider)
	}

	resp := ChatResponse{
		Message:  msg,
		Provider: cr.Provider,
		Model:    cr.Model,
		Usage:    metrics.Measure(r.opts.Counter, cr.Model, cr.Prompt, msg),
	}
	if cacheKey != "" && msg != "" {
		r.store(ctx, cacheKey, resp)
	}
	return resp, nil
}

func (r *router) resolveChat(s settings.Settings, req ChatRequest) CompletionRequest {
	opts := s.ChatOptions(nil)
	cr := CompletionRequest{
		Provider:    req.Provider,
		Model:       req.Model,
		Prompt:      req.Prompt,
		Temperature: opts.Temperature,
	}
	if cr.Provider == "" {
		cr.Provider = opts.Provider
	}
	if cr.Model == "" && cr.Provider == opts.Provider {
		cr.Model = opts.Model
	}
	if cr.Model == "" {
		if models := catalog.Models(catalog.KindChat, cr.Provider); len(models) > 0 {
			cr.Model = models[0]
		}
	}
	if req.Temperature != nil {
		cr.Temperature = *req.Temperature
	}
	return cr
}

// chatBackend picks the client for cr and fills in endpoint and key.
func (r *router) chatBackend(ctx context.Context, s settings.Settings, cr *CompletionRequest) (ChatBackend, time.Duration, error) {
	if cr.Provider == catalog.ProviderOllama {
		if r.backends.Ollama == nil {
			return nil, 0, apperrors.Wrap(apperrors.CodeProviderUnavailable, "Ollama is not available", nil)
		}
		cr.Endpoint = s.OllamaURL()
		return r.backends.Ollama, r.opts.Timeouts.Ollama, nil
	}
	direct := r.backends.Chat[cr.Provider]
	key := r.apiKey(ctx, s, cr.Provider)
	switch {
	case direct != nil && key != "":
		cr.APIKey = key
		return direct, r.opts.Timeouts.Chat, nil
	case r.backends.Remote != nil:
		return r.backends.Remote, r.opts.Timeouts.Chat, nil
	case direct != nil:
		return nil, 0, missingKey(cr.Provider)
	default:
		return nil, 0, apperrors.Wrap(apperrors.CodeProviderUnavailable,
			fmt.Sprintf("chat provider '%s' is not available. Configure its API key or a smart notes server", cr.Provider), nil)
	}
}

func missingKey(provider string) error {
	return apperrors.Wrap(apperrors.CodeMissingCredentials,
		fmt.Sprintf("%s requires an API key. Please configure %s_api_key or use local Ollama.", catalog.ProviderName(provider), provider), nil)
}

func (r *router) cacheEnabled() bool {
	return r.opts.Cache != nil && r.opts.CacheTTL > 0
}

func (r *router) cached(ctx context.Context, key string) (CachedResponse, bool) {
	hit, ok, err := r.opts.Cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn("response cache read failed", "error", err)
		return CachedResponse{}, false
	}
	return hit, ok
}

func (r *router) store(ctx context.Context, key string, resp ChatResponse) {
	entry := CachedResponse{
		Message:   resp.Message,
		Provider:  resp.Provider,
		Model:     resp.Model,
		Usage:     resp.Usage,
		CreatedAt: r.now().UTC(),
	}
	if err := r.opts.Cache.Put(ctx, key, entry, r.opts.CacheTTL); err != nil {
		r.logger.Warn("response cache write failed", "error", err)
	}
}
