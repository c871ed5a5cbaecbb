// Package catalog lists the providers and models smart notes knows how to
// talk to, together with their display names and service constants.
package catalog

import (
	"slices"
	"time"
)

// Kind distinguishes the three generation families.
type Kind string

const (
	KindChat  Kind = "chat"
	KindTTS   Kind = "tts"
	KindImage Kind = "image"
)

const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderDeepSeek   = "deepseek"
	ProviderOllama     = "ollama"
	ProviderGoogle     = "google"
	ProviderElevenLabs = "elevenlabs"
	ProviderAzure      = "azure"
	ProviderReplicate  = "replicate"
)

const (
	RetryBase       = 5 * time.Second
	MaxRetries      = 10
	ChatTimeout     = 60 * time.Second
	TTSTimeout      = 30 * time.Second
	ImageTimeout    = 45 * time.Second
	OllamaTimeout   = 180 * time.Second
	BatchLimit      = 10
	DefaultEndpoint = "http://localhost:11434"

	DefaultChatProvider  = ProviderOpenAI
	DefaultChatModel     = "gpt-4o-mini"
	DefaultOllamaModel   = "llama3.2"
	DefaultTemperature   = 1.0
	DefaultTTSProvider   = ProviderOpenAI
	DefaultTTSModel      = "tts-1"
	DefaultTTSVoice      = "alloy"
	DefaultImageProvider = ProviderReplicate
	DefaultImageModel    = "flux-schnell"

	GlobalDeckID   = "-1"
	GlobalDeckName = "All Decks"
)

var chatProviders = []string{ProviderOpenAI, ProviderAnthropic, ProviderDeepSeek, ProviderOllama}

var ttsProviders = []string{ProviderOpenAI, ProviderGoogle, ProviderElevenLabs, ProviderAzure, ProviderOllama}

var imageProviders = []string{ProviderReplicate, ProviderOllama}

var providerNames = map[string]string{
	ProviderOpenAI:     "OpenAI",
	ProviderAnthropic:  "Anthropic",
	ProviderDeepSeek:   "DeepSeek",
	ProviderOllama:     "Ollama (Local)",
	ProviderGoogle:     "Google",
	ProviderElevenLabs: "ElevenLabs",
	ProviderAzure:      "Azure",
	ProviderReplicate:  "Replicate",
}

var chatModels = map[string][]string{
	ProviderOpenAI:    {"gpt-5-mini", "gpt-5-chat-latest", "gpt-5", "gpt-5-nano", "gpt-4o-mini"},
	ProviderAnthropic: {"claude-opus-4-1", "claude-sonnet-4-0", "claude-3-5-haiku-latest"},
	ProviderDeepSeek:  {"deepseek-v3"},
	ProviderOllama:    {"llama3.2", "llama3.1", "llama2", "mistral", "phi3", "gemma2", "qwen2.5", "codellama"},
}

var ttsModels = map[string][]string{
	ProviderOpenAI:     {"tts-1", "tts-1-hd", "gpt-4o-mini-tts"},
	ProviderGoogle:     {"gemini-2.5-flash-preview-tts", "gemini-2.5-pro-preview-tts"},
	ProviderElevenLabs: {"eleven_multilingual_v2"},
	ProviderAzure:      {"azure-neural"},
	ProviderOllama:     {DefaultOllamaModel},
}

var ttsVoices = map[string][]string{
	ProviderOpenAI: {"alloy", "ash", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer"},
	ProviderGoogle: {"Kore", "Puck", "Charon", "Fenrir", "Aoede", "Leda", "Orus", "Zephyr"},
}

var imageModels = map[string][]string{
	ProviderReplicate: {"flux-schnell", "flux-dev"},
	ProviderOllama:    {DefaultOllamaModel},
}

var modelNames = map[string]string{
	"gpt-5-mini":              "GPT-5 Mini (1x cost)",
	"gpt-5-chat-latest":       "GPT-5 (No Reasoning, 5x cost)",
	"gpt-5":                   "GPT-5 (Reasoning, 5x++ cost)",
	"gpt-5-nano":              "GPT-5 Nano (0.2x cost)",
	"gpt-4o-mini":             "GPT-4o Mini (0.3x cost)",
	"claude-opus-4-1":         "Claude Opus 4.1 (40x Cost)",
	"claude-sonnet-4-0":       "Claude Sonnet 4.0 (3x Cost)",
	"claude-3-5-haiku-latest": "Claude 3.5 Haiku (2x Cost)",
	"deepseek-v3":             "Deepseek v3 (0.7x Cost)",
	"llama3.2":                "Llama 3.2 (Local)",
	"llama3.1":                "Llama 3.1 (Local)",
	"llama2":                  "Llama 2 (Local)",
	"mistral":                 "Mistral (Local)",
	"phi3":                    "Phi 3 (Local)",
	"gemma2":                  "Gemma 2 (Local)",
	"qwen2.5":                 "Qwen 2.5 (Local)",
	"codellama":               "Code Llama (Local)",
	"flux-schnell":            "Flux Schnell",
	"flux-dev":                "Flux Dev",
}

var replicateModels = map[string]string{
	"flux-dev":     "black-forest-labs/flux-dev",
	"flux-schnell": "black-forest-labs/flux-schnell",
}

// Providers returns the providers available for kind.
func Providers(kind Kind) []string {
	switch kind {
	case KindChat:
		return slices.Clone(chatProviders)
	case KindTTS:
		return slices.Clone(ttsProviders)
	case KindImage:
		return slices.Clone(imageProviders)
	default:
		return nil
	}
}

// IsProvider reports whether provider serves kind.
func IsProvider(kind Kind, provider string) bool {
	return slices.Contains(Providers(kind), provider)
}

// ProviderName returns the display name, or the id itself when unknown.
func ProviderName(provider string) string {
	if name, ok := providerNames[provider]; ok {
		return name
	}
	return provider
}

// ModelName returns the display name, or the id itself when unknown.
func ModelName(model string) string {
	if name, ok := modelNames[model]; ok {
		return name
	}
	return model
}

// Models returns the static model list for a provider of the given kind.
func Models(kind Kind, provider string) []string {
	var table map[string][]string
	switch kind {
	case KindChat:
		table = chatModels
	case KindTTS:
		table = ttsModels
	case KindImage:
		table = imageModels
	}
	return slices.Clone(table[provider])
}

// ModelsFor returns chat models for provider. Ollama prefers the models
// discovered on the local server and falls back to the static list.
func ModelsFor(provider string, discovered []string) []string {
	if provider == ProviderOllama && len(discovered) > 0 {
		return slices.Clone(discovered)
	}
	return Models(KindChat, provider)
}

// ResolveModel keeps current when it is offered, otherwise picks the first
// model. An empty list yields current unchanged.
func ResolveModel(current string, models []string) string {
	if len(models) == 0 || slices.Contains(models, current) {
		return current
	}
	return models[0]
}

// Voices lists known voices for a TTS provider.
func Voices(provider string) []string {
	return slices.Clone(ttsVoices[provider])
}

// ReplicateModel maps an image model id to its Replicate owner/name.
func ReplicateModel(model string) string {
	if ref, ok := replicateModels[model]; ok {
		return ref
	}
	return replicateModels[DefaultImageModel]
}
