package replicate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/smart-notes/internal/domain/provider"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
	"github.com/yanqian/smart-notes/pkg/retry"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Options{
		BaseURL:      baseURL,
		Timeout:      time.Second,
		Retry:        retry.Policy{Base: time.Millisecond, MaxRetries: 2},
		PollInterval: time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGenerateImageImmediateResult(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models/black-forest-labs/flux-dev/predictions":
			require.Equal(t, "Bearer r8-key", r.Header.Get("Authorization"))
			require.Equal(t, "wait", r.Header.Get("Prefer"))
			var body predictionRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "a red fox", body.Input["prompt"])
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"id":"p1","status":"succeeded","output":[%q]}`, srv.URL+"/files/fox.webp")
		case "/files/fox.webp":
			_, _ = w.Write([]byte("image-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	img, err := newTestClient(srv.URL).GenerateImage(context.Background(), provider.ImageGenerationRequest{
		APIKey: "r8-key", Model: "flux-dev", Prompt: "a red fox",
	})
	require.NoError(t, err)
	require.Equal(t, []byte("image-bytes"), img)
}

func TestGenerateImagePollsUntilDone(t *testing.T) {
	t.Parallel()

	var polls atomic.Int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models/black-forest-labs/flux-schnell/predictions":
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"id":"p2","status":"starting","urls":{"get":%q}}`, srv.URL+"/predictions/p2")
		case "/predictions/p2":
			if polls.Add(1) < 2 {
				fmt.Fprintf(w, `{"id":"p2","status":"processing","urls":{"get":%q}}`, srv.URL+"/predictions/p2")
				return
			}
			fmt.Fprintf(w, `{"id":"p2","status":"succeeded","output":%q}`, srv.URL+"/files/out.png")
		case "/files/out.png":
			_, _ = w.Write([]byte("png"))
		}
	}))
	defer srv.Close()

	img, err := newTestClient(srv.URL).GenerateImage(context.Background(), provider.ImageGenerationRequest{
		APIKey: "k", Model: "unknown-model", Prompt: "p",
	})
	require.NoError(t, err)
	require.Equal(t, []byte("png"), img)
	require.EqualValues(t, 2, polls.Load())
}

func TestGenerateImageFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		code    string
		msg     string
	}{
		{
			name: "api error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = w.Write([]byte("bad input"))
			},
			code: apperrors.CodeImage,
			msg:  "Replicate API error: 422 - bad input",
		},
		{
			name: "prediction failed",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(`{"id":"p3","status":"failed","error":"NSFW"}`))
			},
			code: apperrors.CodeImage,
			msg:  "NSFW",
		},
		{
			name: "no output",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(`{"id":"p4","status":"succeeded","output":[]}`))
			},
			code: apperrors.CodeImage,
			msg:  "No output from Replicate API",
		},
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			code: apperrors.CodeRateLimited,
			msg:  "max retries exceeded",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			_, err := newTestClient(srv.URL).GenerateImage(context.Background(), provider.ImageGenerationRequest{APIKey: "k", Prompt: "p"})
			require.Equal(t, tt.code, apperrors.CodeOf(err))
			require.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestGenerateImageRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := newTestClient("http://unused.invalid").GenerateImage(context.Background(), provider.ImageGenerationRequest{Prompt: "p"})
	require.True(t, apperrors.IsCode(err, apperrors.CodeMissingCredentials))
}
