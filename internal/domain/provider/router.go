package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yanqian/smart-notes/internal/domain/catalog"
	"github.com/yanqian/smart-notes/internal/domain/settings"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
	"github.com/yanqian/smart-notes/pkg/metrics"
)

// ChatRequest asks for one chat completion. Empty provider, model or a nil
// temperature fall back to the user settings.
type ChatRequest struct {
	Prompt      string   `json:"message"`
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`
	NoteID      int64    `json:"note_id,omitempty"`
}

// ChatResponse is the routed completion.
type ChatResponse struct {
	Message  string             `json:"message"`
	Provider string             `json:"provider"`
	Model    string             `json:"model"`
	Usage    metrics.TokenUsage `json:"usage"`
	Cached   bool               `json:"cached"`
}

// TTSRequest asks for speech audio. A nil StripHTML follows the
// tts_strip_html setting.
type TTSRequest struct {
	Input     string `json:"input"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Voice     string `json:"voice"`
	StripHTML *bool  `json:"strip_html,omitempty"`
	NoteID    int64  `json:"note_id,omitempty"`
}

// ImageRequest asks for a generated image.
type ImageRequest struct {
	Prompt   string `json:"prompt"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	NoteID   int64  `json:"note_id,omitempty"`
}

// ChatRouter answers chat prompts.
type ChatRouter interface {
	Respond(ctx context.Context, req ChatRequest) (ChatResponse, error)
	RespondStream(ctx context.Context, req ChatRequest, onDelta func(string) error) (ChatResponse, error)
}

// TTSRouter turns text into audio.
type TTSRouter interface {
	Speak(ctx context.Context, req TTSRequest) ([]byte, error)
}

// ImageRouter turns prompts into images.
type ImageRouter interface {
	Generate(ctx context.Context, req ImageRequest) ([]byte, error)
}

// Router is the full routing surface used by the transports.
type Router interface {
	ChatRouter
	TTSRouter
	ImageRouter
	OllamaModels(ctx context.Context) ([]string, error)
	Models(ctx context.Context, kind catalog.Kind, provider string, refresh bool) ([]string, error)
}

// SettingsSource supplies the current user settings.
type SettingsSource interface {
	Get(ctx context.Context) (settings.Settings, error)
}

// ErrKeyNotFound reports that a KeySource holds no key for the provider.
var ErrKeyNotFound = errors.New("credential not found")

// KeySource looks up the API key for a provider.
type KeySource interface {
	Lookup(ctx context.Context, provider string) (string, error)
}

// Timeouts bounds each request kind.
type Timeouts struct {
	Chat   time.Duration
	TTS    time.Duration
	Image  time.Duration
	Ollama time.Duration
}

// Options tunes the router.
type Options struct {
	Timeouts Timeouts
	Cache    ResponseCache
	CacheTTL time.Duration
	Counter  metrics.TokenCounter
}

type router struct {
	settings SettingsSource
	keys     KeySource
	backends Backends
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// NewRouter wires the routing domain. keys may be nil.
func NewRouter(settingsSrc SettingsSource, keys KeySource, backends Backends, opts Options, logger *slog.Logger) Router {
	if opts.Timeouts.Chat <= 0 {
		opts.Timeouts.Chat = catalog.ChatTimeout
	}
	if opts.Timeouts.TTS <= 0 {
		opts.Timeouts.TTS = catalog.TTSTimeout
	}
	if opts.Timeouts.Image <= 0 {
		opts.Timeouts.Image = catalog.ImageTimeout
	}
	if opts.Timeouts.Ollama <= 0 {
		opts.Timeouts.Ollama = catalog.OllamaTimeout
	}
	if opts.Counter == nil {
		opts.Counter = metrics.EstimateCounter{}
	}
	return &router{
		settings: settingsSrc,
		keys:     keys,
		backends: backends,
		opts:     opts,
		logger:   logger.With("component", "provider.router"),
		now:      time.Now,
	}
}

func (r *router) current(ctx context.Context) (settings.Settings, error) {
	s, err := r.settings.Get(ctx)
	if err != nil {
		return settings.Settings{}, apperrors.Wrap(apperrors.CodeSettings, "failed to load settings", err)
	}
	return s, nil
}

// apiKey prefers the key stored in the settings, then the credential chain.
func (r *router) apiKey(ctx context.Context, s settings.Settings, provider string) string {
	if key := s.APIKey(provider); key != "" {
		return key
	}
	if r.keys == nil {
		return ""
	}
	key, err := r.keys.Lookup(ctx, provider)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			r.logger.Warn("credential lookup failed", "provider", provider, "error", err)
		}
		return ""
	}
	return key
}

var _ Router = (*router)(nil)

// timedOut gives an uncoded deadline the timeout code so callers see 504.
func timedOut(kind, provider string, limit time.Duration, err error) error {
	if err == nil || !errors.Is(err, context.DeadlineExceeded) || apperrors.CodeOf(err) != "" {
		return err
	}
	return apperrors.Wrap(apperrors.CodeTimeout, fmt.Sprintf("%s request to %s timed out after %s", kind, provider, limit), err)
}
