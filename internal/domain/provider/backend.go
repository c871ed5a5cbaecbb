// Package provider routes chat, speech and image requests to the backend
// selected by the user settings.
package provider

import (
	"context"
)

// CompletionRequest is one single turn chat completion.
type CompletionRequest struct {
	Provider    string
	Endpoint    string
	APIKey      string
	Model       string
	Prompt      string
	Temperature float64
}

// SpeechRequest is one text to speech call.
type SpeechRequest struct {
	Provider string
	APIKey   string
	Model    string
	Voice    string
	Input    string
}

// ImageGenerationRequest is one image generation call.
type ImageGenerationRequest struct {
	Provider string
	APIKey   string
	Model    string
	Prompt   string
}

// ChatBackend produces a chat completion.
type ChatBackend interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// SpeechBackend produces audio.
type SpeechBackend interface {
	Speak(ctx context.Context, req SpeechRequest) ([]byte, error)
}

// ImageBackend produces an image.
type ImageBackend interface {
	GenerateImage(ctx context.Context, req ImageGenerationRequest) ([]byte, error)
}

// OllamaBackend talks to a local Ollama server at the request endpoint.
type OllamaBackend interface {
	ChatBackend
	Models(ctx context.Context, endpoint string) ([]string, error)
}

// RemoteBackend forwards every kind of request to a smart-notes server.
type RemoteBackend interface {
	ChatBackend
	SpeechBackend
	ImageBackend
}

// Backends groups the clients available to the router. Nil entries are
// simply unavailable.
type Backends struct {
	Ollama OllamaBackend
	Chat   map[string]ChatBackend
	Speech map[string]SpeechBackend
	Image  map[string]ImageBackend
	Remote RemoteBackend
}

// StreamingChatBackend can deliver a completion incrementally.
type StreamingChatBackend interface {
	ChatBackend
	CompleteStream(ctx context.Context, req CompletionRequest, onDelta func(string) error) (string, error)
}
