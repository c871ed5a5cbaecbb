package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Patch updates a subset of the scalar settings. Nil fields are untouched.
// Prompts are edited through PromptUpdate instead.
type Patch struct {
	OpenAIAPIKey     *string `json:"openai_api_key,omitempty"`
	AnthropicAPIKey  *string `json:"anthropic_api_key,omitempty"`
	DeepSeekAPIKey   *string `json:"deepseek_api_key,omitempty"`
	GoogleAPIKey     *string `json:"google_api_key,omitempty"`
	ElevenLabsAPIKey *string `json:"elevenlabs_api_key,omitempty"`
	AzureAPIKey      *string `json:"azure_api_key,omitempty"`
	ReplicateAPIKey  *string `json:"replicate_api_key,omitempty"`

	ChatProvider       *string  `json:"chat_provider,omitempty"`
	ChatModel          *string  `json:"chat_model,omitempty"`
	ChatTemperature    *float64 `json:"chat_temperature,omitempty"`
	ChatMarkdownToHTML *bool    `json:"chat_markdown_to_html,omitempty"`

	TTSProvider  *string `json:"tts_provider,omitempty"`
	TTSModel     *string `json:"tts_model,omitempty"`
	TTSVoice     *string `json:"tts_voice,omitempty"`
	TTSStripHTML *bool   `json:"tts_strip_html,omitempty"`

	ImageProvider *string `json:"image_provider,omitempty"`
	ImageModel    *string `json:"image_model,omitempty"`

	OllamaEndpoint *string `json:"ollama_endpoint,omitempty"`

	GenerateAtReview            *bool `json:"generate_at_review,omitempty"`
	RegenerateNotesWhenBatching *bool `json:"regenerate_notes_when_batching,omitempty"`
	AllowEmptyFields            *bool `json:"allow_empty_fields,omitempty"`
	Debug                       *bool `json:"debug,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

// Apply returns a copy of s with the patch applied.
func (p Patch) Apply(s Settings) Settings {
	out := s.Clone()
	set(&out.OpenAIAPIKey, p.OpenAIAPIKey)
	set(&out.AnthropicAPIKey, p.AnthropicAPIKey)
	set(&out.DeepSeekAPIKey, p.DeepSeekAPIKey)
	set(&out.GoogleAPIKey, p.GoogleAPIKey)
	set(&out.ElevenLabsAPIKey, p.ElevenLabsAPIKey)
	set(&out.AzureAPIKey, p.AzureAPIKey)
	set(&out.ReplicateAPIKey, p.ReplicateAPIKey)
	set(&out.ChatProvider, p.ChatProvider)
	set(&out.ChatModel, p.ChatModel)
	set(&out.ChatTemperature, p.ChatTemperature)
	set(&out.ChatMarkdownToHTML, p.ChatMarkdownToHTML)
	set(&out.TTSProvider, p.TTSProvider)
	set(&out.TTSModel, p.TTSModel)
	set(&out.TTSVoice, p.TTSVoice)
	set(&out.TTSStripHTML, p.TTSStripHTML)
	set(&out.ImageProvider, p.ImageProvider)
	set(&out.ImageModel, p.ImageModel)
	set(&out.OllamaEndpoint, p.OllamaEndpoint)
	set(&out.GenerateAtReview, p.GenerateAtReview)
	set(&out.RegenerateNotesWhenBatching, p.RegenerateNotesWhenBatching)
	set(&out.AllowEmptyFields, p.AllowEmptyFields)
	set(&out.Debug, p.Debug)
	return out
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// ParseAssignment builds a patch from a single key=value pair as typed on
// the command line. Values that parse as JSON are used as such, anything
// else is treated as a string.
func ParseAssignment(key, value string) (Patch, error) {
	key = strings.TrimSpace(key)
	if key == "" || key == "prompts_map" {
		return Patch{}, fmt.Errorf("%q cannot be set directly", key)
	}
	raw := json.RawMessage(value)
	if !json.Valid(raw) {
		quoted, _ := json.Marshal(value)
		raw = quoted
	}
	doc, err := json.Marshal(map[string]json.RawMessage{key: raw})
	if err != nil {
		return Patch{}, err
	}
	var p Patch
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		quoted, _ := json.Marshal(value)
		retry, _ := json.Marshal(map[string]json.RawMessage{key: quoted})
		dec = json.NewDecoder(bytes.NewReader(retry))
		dec.DisallowUnknownFields()
		if err2 := dec.Decode(&p); err2 != nil {
			return Patch{}, fmt.Errorf("cannot set %s: %w", key, err)
		}
	}
	return p, nil
}
