package provider

import (
	"context"
	"fmt"

	"github.com/yanqian/smart-notes/internal/domain/catalog"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
)

// OllamaModels lists the models installed at the configured endpoint.
func (r *router) OllamaModels(ctx context.Context) ([]string, error) {
	if r.backends.Ollama == nil {
		return nil, apperrors.Wrap(apperrors.CodeProviderUnavailable, "Ollama is not available", nil)
	}
	s, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeouts.Ollama)
	defer cancel()
	return r.backends.Ollama.Models(ctx, s.OllamaURL())
}

// Models returns the selectable models for provider. With refresh, Ollama
// chat models are discovered from the server and the static list is used
// when discovery fails or finds nothing.
func (r *router) Models(ctx context.Context, kind catalog.Kind, provider string, refresh bool) ([]string, error) {
	if !catalog.IsProvider(kind, provider) {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("unknown %s provider %q", kind, provider), nil)
	}
	if kind != catalog.KindChat || provider != catalog.ProviderOllama || !refresh {
		return catalog.Models(kind, provider), nil
	}
	discovered, err := r.OllamaModels(ctx)
	if err != nil {
		r.logger.Warn("ollama model discovery failed, using defaults", "error", err)
		discovered = nil
	}
	return catalog.ModelsFor(provider, discovered), nil
}
