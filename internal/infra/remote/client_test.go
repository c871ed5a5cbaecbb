package remote

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/smart-notes/internal/domain/provider"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
)

func newTestClient(url string) *Client {
	return NewClient(url, "tok", time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCompleteUsesServerWireFormat(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/chat", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, map[string]any{"provider": "anthropic", "model": "claude-sonnet-4-0", "message": "hi", "temperature": 0.7}, body)
		_, _ = w.Write([]byte(`{"messages":["hello","ignored"]}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).Complete(context.Background(), provider.CompletionRequest{
		Provider: "anthropic", Model: "claude-sonnet-4-0", Prompt: "hi", Temperature: 0.7,
	})
	require.NoError(t, err)
	require.Equal(t, "hello", got)
}

func TestCompleteEmptyMessages(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messages":[]}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).Complete(context.Background(), provider.CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestErrorEnvelopeKeepsCode(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPreconditionFailed)
		_, _ = w.Write([]byte(`{"error":{"code":"missing_credentials","message":"OpenAI TTS requires an API key."}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Speak(context.Background(), provider.SpeechRequest{Input: "x"})
	require.True(t, apperrors.IsCode(err, apperrors.CodeMissingCredentials))
	require.EqualError(t, err, "OpenAI TTS requires an API key.")
}

func TestImageReturnsBytes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/image", r.URL.Path)
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer srv.Close()

	img, err := newTestClient(srv.URL).GenerateImage(context.Background(), provider.ImageGenerationRequest{Prompt: "cat"})
	require.NoError(t, err)
	require.Equal(t, []byte{0x89, 'P', 'N', 'G'}, img)
}

func TestUnreachableServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).Complete(context.Background(), provider.CompletionRequest{Prompt: "x"})
	require.True(t, apperrors.IsCode(err, apperrors.CodeUnreachable))
}
