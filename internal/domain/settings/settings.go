// Package settings models the user configuration record that the addon keeps
// under the "config" key of its meta.json.
package settings

import (
	"github.com/yanqian/smart-notes/internal/domain/catalog"
)

// Settings is the persisted user configuration. JSON keys match meta.json.
type Settings struct {
	OpenAIAPIKey     string `json:"openai_api_key"`
	AnthropicAPIKey  string `json:"anthropic_api_key"`
	DeepSeekAPIKey   string `json:"deepseek_api_key"`
	GoogleAPIKey     string `json:"google_api_key"`
	ElevenLabsAPIKey string `json:"elevenlabs_api_key"`
	AzureAPIKey      string `json:"azure_api_key"`
	ReplicateAPIKey  string `json:"replicate_api_key"`

	ChatProvider       string  `json:"chat_provider"`
	ChatModel          string  `json:"chat_model"`
	ChatTemperature    float64 `json:"chat_temperature"`
	ChatMarkdownToHTML bool    `json:"chat_markdown_to_html"`

	TTSProvider  string `json:"tts_provider"`
	TTSModel     string `json:"tts_model"`
	TTSVoice     string `json:"tts_voice"`
	TTSStripHTML bool   `json:"tts_strip_html"`

	ImageProvider string `json:"image_provider"`
	ImageModel    string `json:"image_model"`

	OllamaEndpoint string `json:"ollama_endpoint"`

	GenerateAtReview            bool `json:"generate_at_review"`
	RegenerateNotesWhenBatching bool `json:"regenerate_notes_when_batching"`
	AllowEmptyFields            bool `json:"allow_empty_fields"`
	Debug                       bool `json:"debug"`

	PromptsMap PromptsMap `json:"prompts_map"`
}

// Defaults returns the settings a fresh install starts with.
func Defaults() Settings {
	return Settings{
		ChatProvider:       catalog.DefaultChatProvider,
		ChatModel:          catalog.DefaultChatModel,
		ChatTemperature:    catalog.DefaultTemperature,
		ChatMarkdownToHTML: true,
		TTSProvider:        catalog.DefaultTTSProvider,
		TTSModel:           catalog.DefaultTTSModel,
		TTSVoice:           catalog.DefaultTTSVoice,
		TTSStripHTML:       true,
		ImageProvider:      catalog.DefaultImageProvider,
		ImageModel:         catalog.DefaultImageModel,
		PromptsMap:         PromptsMap{NoteTypes: map[string]map[string]DeckPrompts{}},
	}
}

// Clone returns a deep copy so callers can mutate the prompt maps freely.
func (s Settings) Clone() Settings {
	out := s
	out.PromptsMap = s.PromptsMap.clone()
	return out
}

// OllamaURL returns the configured endpoint or the local default.
func (s Settings) OllamaURL() string {
	if s.OllamaEndpoint != "" {
		return s.OllamaEndpoint
	}
	return catalog.DefaultEndpoint
}

// APIKey returns the stored key for provider. Replicate falls back to the
// OpenAI key field, which older versions used for image generation.
func (s Settings) APIKey(provider string) string {
	switch provider {
	case catalog.ProviderOpenAI:
		return s.OpenAIAPIKey
	case catalog.ProviderAnthropic:
		return s.AnthropicAPIKey
	case catalog.ProviderDeepSeek:
		return s.DeepSeekAPIKey
	case catalog.ProviderGoogle:
		return s.GoogleAPIKey
	case catalog.ProviderElevenLabs:
		return s.ElevenLabsAPIKey
	case catalog.ProviderAzure:
		return s.AzureAPIKey
	case catalog.ProviderReplicate:
		if s.ReplicateAPIKey != "" {
			return s.ReplicateAPIKey
		}
		return s.OpenAIAPIKey
	default:
		return ""
	}
}

// Redacted masks every API key, keeping the last four characters of long keys.
func (s Settings) Redacted() Settings {
	out := s.Clone()
	for _, key := range []*string{
		&out.OpenAIAPIKey, &out.AnthropicAPIKey, &out.DeepSeekAPIKey, &out.GoogleAPIKey,
		&out.ElevenLabsAPIKey, &out.AzureAPIKey, &out.ReplicateAPIKey,
	} {
		*key = mask(*key)
	}
	return out
}

func mask(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 8 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}
