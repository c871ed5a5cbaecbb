// Package gemini implements text to speech with the Gemini API.
package gemini

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/yanqian/smart-notes/internal/domain/provider"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
	"github.com/yanqian/smart-notes/pkg/retry"
)

const (
	defaultModel = "gemini-2.5-flash-preview-tts"
	defaultVoice = "Kore"
)

// Client produces speech through generateContent with an audio modality.
type Client struct {
	apiKey  string
	baseURL string
	policy  retry.Policy
	logger  *slog.Logger
}

// Options configures the client.
type Options struct {
	APIKey  string
	BaseURL string
	Retry   retry.Policy
}

// NewClient constructs a Gemini speech client.
func NewClient(opts Options, logger *slog.Logger) *Client {
	return &Client{
		apiKey:  opts.APIKey,
		baseURL: strings.TrimSpace(opts.BaseURL),
		policy:  opts.Retry,
		logger:  logger.With("component", "llm.gemini"),
	}
}

// Speak implements provider.SpeechBackend and returns a WAV file.
func (c *Client) Speak(ctx context.Context, req provider.SpeechRequest) ([]byte, error) {
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		key = c.apiKey
	}
	if key == "" {
		return nil, apperrors.Wrap(apperrors.CodeMissingCredentials, "google api key cannot be empty", nil)
	}
	model := req.Model
	if model == "" || !strings.HasPrefix(model, "gemini") {
		model = defaultModel
	}
	voice := req.Voice
	if voice == "" {
		voice = defaultVoice
	}

	cfg := &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI}
	if c.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTTS, "failed to create GenAI client", err)
	}

	var audio []byte
	err = c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		c.logger.Debug("gemini speech", "model", model, "voice", voice, "retry", attempt)
		resp, err := client.Models.GenerateContent(ctx, model, genai.Text(req.Input), &genai.GenerateContentConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &genai.SpeechConfig{
				VoiceConfig: &genai.VoiceConfig{
					PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
				},
			},
		})
		if err != nil {
			if isRateLimited(err) {
				return retry.Retryable(apperrors.Wrap(apperrors.CodeRateLimited, "gemini rate limited", err))
			}
			return apperrors.Wrap(apperrors.CodeTTS, "gemini speech failed", err)
		}
		pcm, mime := inlineAudio(resp)
		if len(pcm) == 0 {
			return apperrors.Wrap(apperrors.CodeTTS, "gemini returned no audio", nil)
		}
		audio = wrapPCM(pcm, sampleRate(mime))
		return nil
	})
	if err != nil {
		c.logger.Error("gemini speech failed", "model", model, "error", err)
		return nil, err
	}
	return audio, nil
}

func inlineAudio(resp *genai.GenerateContentResponse) ([]byte, string) {
	if resp == nil {
		return nil, ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, part.InlineData.MIMEType
			}
		}
	}
	return nil, ""
}

func isRateLimited(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

var _ provider.SpeechBackend = (*Client)(nil)
