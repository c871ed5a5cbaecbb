package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/yanqian/smart-notes/internal/domain/catalog"
	"github.com/yanqian/smart-notes/internal/domain/settings"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
	"github.com/yanqian/smart-notes/pkg/richtext"
)

const (
	speechPromptPrefix = "Convert to speech: "
	imagePromptPrefix  = "Generate an image of: "
)

// Speak produces audio for req. A configured Ollama endpoint is tried first;
// its failure falls through to the hosted providers.
func (r *router) Speak(ctx context.Context, req TTSRequest) ([]byte, error) {
	s, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	opts := s.TTSOptions(nil)
	if req.Provider == "" {
		req.Provider = opts.Provider
	}
	if req.Provider == opts.Provider {
		if req.Model == "" {
			req.Model = opts.Model
		}
		if req.Voice == "" {
			req.Voice = opts.Voice
		}
	}
	if !catalog.IsProvider(catalog.KindTTS, req.Provider) {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("unknown TTS provider %q", req.Provider), nil)
	}
	strip := opts.StripHTML
	if req.StripHTML != nil {
		strip = *req.StripHTML
	}
	input := req.Input
	if strip {
		input = richtext.StripHTML(input)
	}
	if strings.TrimSpace(input) == "" {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "input is required", nil)
	}

	if s.OllamaEndpoint != "" || req.Provider == catalog.ProviderOllama {
		if audio, ok := r.tryOllama(ctx, s, req.Model, speechPromptPrefix+input, "tts"); ok {
			return audio, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeouts.TTS)
	defer cancel()

	direct := r.backends.Speech[req.Provider]
	key := r.apiKey(ctx, s, req.Provider)
	sr := SpeechRequest{Provider: req.Provider, Model: req.Model, Voice: req.Voice, Input: input}
	switch {
	case direct != nil && key != "":
		sr.APIKey = key
		r.logger.Debug("tts request", "provider", req.Provider, "model", req.Model, "voice", req.Voice, "note_id", req.NoteID)
		audio, err := direct.Speak(ctx, sr)
		return audio, timedOut("tts", req.Provider, r.opts.Timeouts.TTS, err)
	case r.backends.Remote != nil && req.Provider != catalog.ProviderOllama:
		audio, err := r.backends.Remote.Speak(ctx, sr)
		return audio, timedOut("tts", req.Provider, r.opts.Timeouts.TTS, err)
	case direct != nil:
		return nil, apperrors.Wrap(apperrors.CodeMissingCredentials, fmt.Sprintf(
			"%s TTS requires an API key. Please configure your %s API key or use local Ollama for text-to-speech.",
			catalog.ProviderName(req.Provider), catalog.ProviderName(req.Provider)), nil)
	default:
		return nil, apperrors.Wrap(apperrors.CodeProviderUnavailable, fmt.Sprintf(
			"TTS provider '%s' requires server backend which is no longer available. "+
				"Options: Use local Ollama or configure your OpenAI API key for TTS. "+
				"Support for %s requires credentials configuration.", req.Provider, req.Provider), nil)
	}
}

// Generate produces an image for req, trying a configured Ollama endpoint first.
func (r *router) Generate(ctx context.Context, req ImageRequest) ([]byte, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "prompt is required", nil)
	}
	s, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	opts := s.ImageOptions(nil)
	if req.Provider == "" {
		req.Provider = opts.Provider
	}
	if req.Model == "" && req.Provider == opts.Provider {
		req.Model = opts.Model
	}
	if !catalog.IsProvider(catalog.KindImage, req.Provider) {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("unknown image provider %q", req.Provider), nil)
	}

	if s.OllamaEndpoint != "" {
		if img, ok := r.tryOllama(ctx, s, req.Model, imagePromptPrefix+req.Prompt, "image"); ok {
			return img, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeouts.Image)
	defer cancel()

	direct := r.backends.Image[req.Provider]
	key := r.apiKey(ctx, s, req.Provider)
	ir := ImageGenerationRequest{Provider: req.Provider, Model: req.Model, Prompt: req.Prompt}
	switch {
	case direct != nil && key != "":
		ir.APIKey = key
		r.logger.Debug("image request", "provider", req.Provider, "model", req.Model, "note_id", req.NoteID)
		img, err := direct.GenerateImage(ctx, ir)
		return img, timedOut("image", req.Provider, r.opts.Timeouts.Image, err)
	case r.backends.Remote != nil && req.Provider != catalog.ProviderOllama:
		img, err := r.backends.Remote.GenerateImage(ctx, ir)
		return img, timedOut("image", req.Provider, r.opts.Timeouts.Image, err)
	case direct != nil:
		return nil, apperrors.Wrap(apperrors.CodeMissingCredentials, fmt.Sprintf(
			"Image generation provider '%s' requires API credentials. "+
				"Please configure your API key or use local Ollama with image models like flux.", req.Provider), nil)
	default:
		return nil, apperrors.Wrap(apperrors.CodeProviderUnavailable, fmt.Sprintf(
			"Image generation provider '%s' is not available. "+
				"Options: Use local Ollama with image models (flux-schnell, etc.) or "+
				"configure a Replicate API key for cloud-based generation.", req.Provider), nil)
	}
}

// tryOllama asks the local server and reports false on any failure.
func (r *router) tryOllama(ctx context.Context, s settings.Settings, model, prompt, kind string) ([]byte, bool) {
	if r.backends.Ollama == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeouts.Ollama)
	defer cancel()
	endpoint := s.OllamaURL()
	r.logger.Debug("attempting ollama", "kind", kind, "model", model, "endpoint", endpoint)
	out, err := r.backends.Ollama.Complete(ctx, CompletionRequest{
		Provider:    catalog.ProviderOllama,
		Endpoint:    endpoint,
		Model:       model,
		Prompt:      prompt,
		Temperature: catalog.DefaultTemperature,
	})
	if err != nil {
		r.logger.Debug("ollama attempt failed", "kind", kind, "error", err)
		return nil, false
	}
	return []byte(out), true
}
