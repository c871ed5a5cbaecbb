package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/smart-notes/internal/domain/auth"
	"github.com/yanqian/smart-notes/internal/domain/catalog"
	"github.com/yanqian/smart-notes/internal/domain/notes"
	"github.com/yanqian/smart-notes/internal/domain/packaging"
	"github.com/yanqian/smart-notes/internal/domain/provider"
	"github.com/yanqian/smart-notes/internal/domain/settings"
	"github.com/yanqian/smart-notes/internal/infra/config"
	"github.com/yanqian/smart-notes/internal/infra/credentials"
	"github.com/yanqian/smart-notes/internal/infra/settingsstore"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
)

type harness struct {
	svc    *Services
	runner *stubRunner
	stdout bytes.Buffer
	stderr bytes.Buffer
	stdin  io.Reader
	addons string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &harness{
		svc: &Services{
			Settings: settings.NewService(settingsstore.NewMemoryStore(settings.Defaults()), logger),
			Router:   &stubRouter{},
			Notes:    &stubNotes{},
			Keys:     credentials.NewKeyring(keyring.NewArrayKeyring(nil)),
			Auth:     auth.NewService(auth.Config{Secret: "cli-secret", TokenTTL: time.Hour}, logger),
		},
		runner: &stubRunner{},
		addons: t.TempDir(),
	}
}

func (h *harness) run(args ...string) error {
	h.stdout.Reset()
	h.stderr.Reset()
	root := NewRootCommand(config.Default(), Deps{
		Stdout:    &h.stdout,
		Stderr:    &h.stderr,
		Services:  h.svc,
		Runner:    h.runner,
		AddonsDir: func() (string, error) { return h.addons, nil },
	})
	if h.stdin != nil {
		root.SetIn(h.stdin)
	}
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func TestChatCommand(t *testing.T) {
	h := newHarness(t)
	router := &stubRouter{
		respondFn: func(_ context.Context, req provider.ChatRequest) (provider.ChatResponse, error) {
			require.Equal(t, "translate chat", req.Prompt)
			require.Equal(t, "deepseek", req.Provider)
			require.NotNil(t, req.Temperature)
			require.InDelta(t, 0.4, *req.Temperature, 1e-9)
			return provider.ChatResponse{Message: "cat", Provider: "deepseek", Model: "deepseek-chat"}, nil
		},
	}
	h.svc.Router = router

	require.NoError(t, h.run("chat", "--provider", "deepseek", "--temperature", "0.4", "translate", "chat"))
	require.Equal(t, "cat\n", h.stdout.String())

	require.NoError(t, h.run("-o", "json", "chat", "--provider", "deepseek", "--temperature", "0.4", "translate chat"))
	var resp provider.ChatResponse
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &resp))
	require.Equal(t, "deepseek-chat", resp.Model)
}

func TestChatCommandLeavesTemperatureToSettings(t *testing.T) {
	h := newHarness(t)
	h.svc.Router = &stubRouter{
		respondFn: func(_ context.Context, req provider.ChatRequest) (provider.ChatResponse, error) {
			require.Nil(t, req.Temperature)
			return provider.ChatResponse{Message: "ok"}, nil
		},
	}
	require.NoError(t, h.run("chat", "hello"))
}

func TestChatCommandStream(t *testing.T) {
	h := newHarness(t)
	h.svc.Router = &stubRouter{
		streamFn: func(_ context.Context, _ provider.ChatRequest, onDelta func(string) error) (provider.ChatResponse, error) {
			for _, d := range []string{"Bon", "jour"} {
				if err := onDelta(d); err != nil {
					return provider.ChatResponse{}, err
				}
			}
			return provider.ChatResponse{Message: "Bonjour"}, nil
		},
	}
	require.NoError(t, h.run("chat", "--stream", "greet"))
	require.Equal(t, "Bonjour\n", h.stdout.String())
}

func TestInvalidOutputFormat(t *testing.T) {
	h := newHarness(t)
	err := h.run("-o", "yaml", "chat", "hi")
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
	require.Equal(t, 1, ExitCode(err))
}

func TestTTSCommandWritesFile(t *testing.T) {
	h := newHarness(t)
	h.svc.Router = &stubRouter{
		speakFn: func(_ context.Context, req provider.TTSRequest) ([]byte, error) {
			require.Equal(t, "<b>bonjour</b>", req.Input)
			require.Nil(t, req.StripHTML)
			require.Equal(t, "nova", req.Voice)
			return []byte("ID3audio"), nil
		},
	}
	out := filepath.Join(t.TempDir(), "hello.mp3")

	require.NoError(t, h.run("tts", "--voice", "nova", "--out", out, "<b>bonjour</b>"))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "ID3audio", string(data))
	require.Contains(t, h.stdout.String(), "wrote 8 bytes")

	require.Error(t, h.run("tts", "no output flag"))
}

func TestTTSCommandStripHTMLFlagOverridesSettings(t *testing.T) {
	h := newHarness(t)
	var got *bool
	h.svc.Router = &stubRouter{
		speakFn: func(_ context.Context, req provider.TTSRequest) ([]byte, error) {
			got = req.StripHTML
			return []byte("ID3"), nil
		},
	}
	out := filepath.Join(t.TempDir(), "hello.mp3")

	require.NoError(t, h.run("tts", "--strip-html=false", "--out", out, "<b>bonjour</b>"))
	require.NotNil(t, got)
	require.False(t, *got)
}

func TestImageCommandPropagatesErrors(t *testing.T) {
	h := newHarness(t)
	h.svc.Router = &stubRouter{
		generateFn: func(context.Context, provider.ImageRequest) ([]byte, error) {
			return nil, apperrors.Wrap(apperrors.CodeMissingCredentials, "Replicate requires an API key", nil)
		},
	}
	err := h.run("image", "--out", filepath.Join(t.TempDir(), "x.png"), "a cat")
	require.True(t, apperrors.IsCode(err, apperrors.CodeMissingCredentials))
}

func TestGenerateSingleNoteFromStdin(t *testing.T) {
	h := newHarness(t)
	h.svc.Notes = &stubNotes{
		generateFn: func(_ context.Context, req notes.GenerateRequest) (notes.NoteResult, error) {
			require.Equal(t, int64(5), req.Note.ID)
			require.Equal(t, []string{"Back"}, req.OnlyFields)
			require.True(t, req.Overwrite)
			return notes.NoteResult{
				NoteID:  5,
				Updated: true,
				Results: []notes.FieldResult{
					{Field: "Back", Kind: catalog.KindChat, Value: "cat"},
					{Field: "Audio", Kind: catalog.KindTTS, Skipped: true, Reason: notes.ReasonHasContent},
				},
			}, nil
		},
	}
	h.stdin = strings.NewReader(`{"id":5,"note_type":"Basic","deck_id":"1","fields":{"Front":"chat"}}`)

	require.NoError(t, h.run("generate", "--overwrite", "--field", "Back", "-"))
	out := h.stdout.String()
	require.Contains(t, out, "generated")
	require.Contains(t, out, "skipped")
	require.Contains(t, out, notes.ReasonHasContent)
}

func TestGenerateReportsFieldFailures(t *testing.T) {
	h := newHarness(t)
	h.svc.Notes = &stubNotes{
		generateFn: func(context.Context, notes.GenerateRequest) (notes.NoteResult, error) {
			return notes.NoteResult{
				NoteID:  9,
				Results: []notes.FieldResult{{Field: "Back", Err: errors.New("boom"), Error: "boom"}},
			}, nil
		},
	}
	path := filepath.Join(t.TempDir(), "note.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":9}`), 0o644))

	err := h.run("generate", path)
	require.Error(t, err)
	require.Contains(t, h.stdout.String(), "boom")
}

func TestGenerateBatch(t *testing.T) {
	h := newHarness(t)
	h.svc.Notes = &stubNotes{
		batchFn: func(_ context.Context, batch []notes.Note, overwrite bool) (notes.BatchResult, error) {
			require.Len(t, batch, 2)
			require.False(t, overwrite)
			return notes.BatchResult{
				Notes:   []notes.NoteResult{{NoteID: 1, Updated: true}, {NoteID: 2, Updated: true}},
				Updated: 2,
			}, nil
		},
	}
	h.stdin = strings.NewReader(` [{"id":1},{"id":2}]`)

	require.NoError(t, h.run("-o", "json", "generate", "-"))
	var result notes.BatchResult
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &result))
	require.Equal(t, 2, result.Updated)
}

func TestSettingsCommands(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run("settings", "set", "openai_api_key", "sk-abcdefgh12345678"))
	require.Equal(t, "openai_api_key = ****5678\n", h.stdout.String())

	require.NoError(t, h.run("settings", "set", "chat_temperature", "0.7"))
	require.NoError(t, h.run("settings", "get", "chat_temperature"))
	require.Equal(t, "0.7\n", h.stdout.String())

	require.NoError(t, h.run("settings", "show"))
	require.Contains(t, h.stdout.String(), "chat_provider")
	require.NotContains(t, h.stdout.String(), "sk-abcdefgh")

	require.Error(t, h.run("settings", "get", "no_such_key"))
	require.Error(t, h.run("settings", "set", "prompts_map", "{}"))
}

func TestPromptCommands(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run("settings", "prompt", "set", "--", "Basic", "-1", "Back", "Translate {{Front}}"))
	require.NoError(t, h.run("settings", "prompt", "set", "--type", "tts", "--manual", "--", "Basic", "-1", "Audio", "{{Front}}"))
	require.NoError(t, h.run("settings", "prompt", "list"))
	out := h.stdout.String()
	require.Contains(t, out, "Translate {{Front}}")
	require.Contains(t, out, "manual")

	current, err := h.svc.Settings.Get(context.Background())
	require.NoError(t, err)
	extras := current.PromptsMap.FieldsFor("Basic", "-1").Extras["Audio"]
	require.Equal(t, catalog.KindTTS, extras.Kind())
	require.False(t, extras.IsAutomatic())

	require.NoError(t, h.run("settings", "prompt", "remove", "--", "Basic", "-1", "Audio"))
	current, err = h.svc.Settings.Get(context.Background())
	require.NoError(t, err)
	require.NotContains(t, current.PromptsMap.FieldsFor("Basic", "-1").Fields, "Audio")
}

func TestModelsCommand(t *testing.T) {
	h := newHarness(t)
	h.svc.Router = &stubRouter{
		modelsFn: func(_ context.Context, kind catalog.Kind, name string, refresh bool) ([]string, error) {
			require.Equal(t, catalog.KindChat, kind)
			require.Equal(t, catalog.DefaultChatProvider, name)
			require.True(t, refresh)
			return []string{"gpt-4o-mini"}, nil
		},
	}
	require.NoError(t, h.run("models", "--refresh"))
	require.Contains(t, h.stdout.String(), "gpt-4o-mini")
}

func TestKeysCommands(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run("keys", "set", "anthropic", "sk-ant-0123456789"))
	require.NoError(t, h.run("keys", "get", "anthropic"))
	require.Equal(t, "****6789\n", h.stdout.String())
	require.NoError(t, h.run("keys", "get", "--reveal", "anthropic"))
	require.Equal(t, "sk-ant-0123456789\n", h.stdout.String())
	require.NoError(t, h.run("-o", "json", "keys", "list"))
	require.JSONEq(t, `["anthropic"]`, h.stdout.String())

	require.NoError(t, h.run("keys", "delete", "anthropic"))
	err := h.run("keys", "get", "anthropic")
	require.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestTokenIssue(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run("token", "issue", "anki-desktop"))
	token := strings.TrimSpace(h.stdout.String())

	claims, err := h.svc.Auth.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "anki-desktop", claims.Subject)

	h.svc.Auth = nil
	require.Error(t, h.run("token", "issue", "anki-desktop"))
}

func TestAddonBuildAndLink(t *testing.T) {
	h := newHarness(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "manifest.json"), `{"package":"smart-notes"}`)
	writeFile(t, filepath.Join(root, "config.json"), `{}`)
	writeFile(t, filepath.Join(root, "src", "__init__.py"), "")

	require.NoError(t, h.run("addon", "--project", root, "build", "2.1.0"))
	archive := filepath.Join(root, "dist", "smart-notes-2.1.0"+packaging.ArchiveExt)
	require.FileExists(t, archive)
	require.Contains(t, h.stdout.String(), archive)

	require.NoError(t, h.run("addon", "--project", root, "link-dist"))
	target, err := os.Readlink(filepath.Join(h.addons, "smart-notes"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "dist", "smart-notes"), target)
}

func TestAddonToolExitCode(t *testing.T) {
	h := newHarness(t)
	h.runner.runFn = func(argv []string) error {
		if argv[0] == "mypy" {
			return &packaging.ExitError{Command: strings.Join(argv, " "), Code: 3}
		}
		return nil
	}

	err := h.run("addon", "--project", t.TempDir(), "check")
	require.Error(t, err)
	require.Equal(t, 3, ExitCode(err))
	require.Equal(t, "ruff", h.runner.calls[0][0])

	require.NoError(t, h.run("addon", "--project", t.TempDir(), "format"))
	require.Equal(t, 0, ExitCode(nil))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

type stubRunner struct {
	calls [][]string
	runFn func(argv []string) error
}

func (s *stubRunner) Run(_ context.Context, _ string, argv []string) error {
	s.calls = append(s.calls, argv)
	if s.runFn == nil {
		return nil
	}
	return s.runFn(argv)
}

type stubRouter struct {
	respondFn  func(ctx context.Context, req provider.ChatRequest) (provider.ChatResponse, error)
	streamFn   func(ctx context.Context, req provider.ChatRequest, onDelta func(string) error) (provider.ChatResponse, error)
	speakFn    func(ctx context.Context, req provider.TTSRequest) ([]byte, error)
	generateFn func(ctx context.Context, req provider.ImageRequest) ([]byte, error)
	modelsFn   func(ctx context.Context, kind catalog.Kind, name string, refresh bool) ([]string, error)
}

func (s *stubRouter) Respond(ctx context.Context, req provider.ChatRequest) (provider.ChatResponse, error) {
	if s.respondFn != nil {
		return s.respondFn(ctx, req)
	}
	return provider.ChatResponse{}, nil
}

func (s *stubRouter) RespondStream(ctx context.Context, req provider.ChatRequest, onDelta func(string) error) (provider.ChatResponse, error) {
	if s.streamFn != nil {
		return s.streamFn(ctx, req, onDelta)
	}
	return provider.ChatResponse{}, nil
}

func (s *stubRouter) Speak(ctx context.Context, req provider.TTSRequest) ([]byte, error) {
	if s.speakFn != nil {
		return s.speakFn(ctx, req)
	}
	return nil, nil
}

func (s *stubRouter) Generate(ctx context.Context, req provider.ImageRequest) ([]byte, error) {
	if s.generateFn != nil {
		return s.generateFn(ctx, req)
	}
	return nil, nil
}

func (s *stubRouter) OllamaModels(context.Context) ([]string, error) {
	return nil, nil
}

func (s *stubRouter) Models(ctx context.Context, kind catalog.Kind, name string, refresh bool) ([]string, error) {
	if s.modelsFn != nil {
		return s.modelsFn(ctx, kind, name, refresh)
	}
	return nil, nil
}

type stubNotes struct {
	generateFn func(ctx context.Context, req notes.GenerateRequest) (notes.NoteResult, error)
	batchFn    func(ctx context.Context, batch []notes.Note, overwrite bool) (notes.BatchResult, error)
}

func (s *stubNotes) GenerateNote(ctx context.Context, req notes.GenerateRequest) (notes.NoteResult, error) {
	if s.generateFn != nil {
		return s.generateFn(ctx, req)
	}
	return notes.NoteResult{}, nil
}

func (s *stubNotes) GenerateBatch(ctx context.Context, batch []notes.Note, overwrite bool) (notes.BatchResult, error) {
	if s.batchFn != nil {
		return s.batchFn(ctx, batch, overwrite)
	}
	return notes.BatchResult{}, nil
}

func (s *stubNotes) History(context.Context, int64, int) ([]notes.HistoryEntry, error) {
	return nil, nil
}
