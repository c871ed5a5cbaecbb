package settings

import "github.com/yanqian/smart-notes/internal/domain/catalog"

// FieldExtras carries per field behavior and optional model overrides.
type FieldExtras struct {
	Type           catalog.Kind `json:"type,omitempty"`
	Automatic      *bool        `json:"automatic,omitempty"`
	UseCustomModel bool         `json:"use_custom_model,omitempty"`

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
}

// Kind defaults to chat.
func (e *FieldExtras) Kind() catalog.Kind {
	if e == nil || e.Type == "" {
		return catalog.KindChat
	}
	return e.Type
}

// IsAutomatic defaults to true.
func (e *FieldExtras) IsAutomatic() bool {
	if e == nil || e.Automatic == nil {
		return true
	}
	return *e.Automatic
}

func (e *FieldExtras) clone() *FieldExtras {
	if e == nil {
		return nil
	}
	out := *e
	out.Automatic = clonePtr(e.Automatic)
	out.ChatProvider = clonePtr(e.ChatProvider)
	out.ChatModel = clonePtr(e.ChatModel)
	out.ChatTemperature = clonePtr(e.ChatTemperature)
	out.ChatMarkdownToHTML = clonePtr(e.ChatMarkdownToHTML)
	out.TTSProvider = clonePtr(e.TTSProvider)
	out.TTSModel = clonePtr(e.TTSModel)
	out.TTSVoice = clonePtr(e.TTSVoice)
	out.TTSStripHTML = clonePtr(e.TTSStripHTML)
	out.ImageProvider = clonePtr(e.ImageProvider)
	out.ImageModel = clonePtr(e.ImageModel)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ChatOptions is the resolved chat configuration for one generation.
type ChatOptions struct {
	Provider       string  `json:"provider"`
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature"`
	MarkdownToHTML bool    `json:"markdownToHtml"`
}

// TTSOptions is the resolved speech configuration for one generation.
type TTSOptions struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Voice     string `json:"voice"`
	StripHTML bool   `json:"stripHtml"`
}

// ImageOptions is the resolved image configuration for one generation.
type ImageOptions struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// pick returns the override when custom models are enabled and it is set.
func pick[T any](extras *FieldExtras, override *T, global T) T {
	if extras != nil && extras.UseCustomModel && override != nil {
		return *override
	}
	return global
}

// ChatOptions resolves the chat options for a field.
func (s Settings) ChatOptions(extras *FieldExtras) ChatOptions {
	var e FieldExtras
	if extras != nil {
		e = *extras
	}
	return ChatOptions{
		Provider:       pick(extras, e.ChatProvider, s.ChatProvider),
		Model:          pick(extras, e.ChatModel, s.ChatModel),
		Temperature:    pick(extras, e.ChatTemperature, s.ChatTemperature),
		MarkdownToHTML: pick(extras, e.ChatMarkdownToHTML, s.ChatMarkdownToHTML),
	}
}

// TTSOptions resolves the speech options for a field.
func (s Settings) TTSOptions(extras *FieldExtras) TTSOptions {
	var e FieldExtras
	if extras != nil {
		e = *extras
	}
	return TTSOptions{
		Provider:  pick(extras, e.TTSProvider, s.TTSProvider),
		Model:     pick(extras, e.TTSModel, s.TTSModel),
		Voice:     pick(extras, e.TTSVoice, s.TTSVoice),
		StripHTML: pick(extras, e.TTSStripHTML, s.TTSStripHTML),
	}
}

// ImageOptions resolves the image options for a field.
func (s Settings) ImageOptions(extras *FieldExtras) ImageOptions {
	var e FieldExtras
	if extras != nil {
		e = *extras
	}
	return ImageOptions{
		Provider: pick(extras, e.ImageProvider, s.ImageProvider),
		Model:    pick(extras, e.ImageModel, s.ImageModel),
	}
}
