package notes

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yanqian/smart-notes/internal/domain/catalog"
	"github.com/yanqian/smart-notes/internal/domain/provider"
	"github.com/yanqian/smart-notes/internal/domain/settings"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
	"github.com/yanqian/smart-notes/pkg/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubSettings struct {
	value settings.Settings
}

func (s stubSettings) Get(context.Context) (settings.Settings, error) {
	return s.value, nil
}

type stubRouter struct {
	respondFn  func(ctx context.Context, req provider.ChatRequest) (provider.ChatResponse, error)
	speakFn    func(req provider.TTSRequest) ([]byte, error)
	generateFn func(req provider.ImageRequest) ([]byte, error)
}

func (s *stubRouter) Respond(ctx context.Context, req provider.ChatRequest) (provider.ChatResponse, error) {
	return s.respondFn(ctx, req)
}

func (s *stubRouter) RespondStream(ctx context.Context, req provider.ChatRequest, _ func(string) error) (provider.ChatResponse, error) {
	return s.respondFn(ctx, req)
}

func (s *stubRouter) Speak(_ context.Context, req provider.TTSRequest) ([]byte, error) {
	return s.speakFn(req)
}

func (s *stubRouter) Generate(_ context.Context, req provider.ImageRequest) ([]byte, error) {
	return s.generateFn(req)
}

func (s *stubRouter) OllamaModels(context.Context) ([]string, error) { return nil, nil }

func (s *stubRouter) Models(context.Context, catalog.Kind, string, bool) ([]string, error) {
	return nil, nil
}

type stubMedia struct {
	mu   sync.Mutex
	puts map[string]string
}

func (m *stubMedia) Put(_ context.Context, key string, data []byte, mimeType string) (StoredMedia, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.puts == nil {
		m.puts = map[string]string{}
	}
	m.puts[key] = mimeType
	return StoredMedia{Key: key, Size: int64(len(data)), MimeType: mimeType}, nil
}

func (m *stubMedia) Get(context.Context, string) (io.ReadCloser, StoredMedia, error) {
	return io.NopCloser(bytes.NewReader(nil)), StoredMedia{}, nil
}

type stubHistory struct {
	mu      sync.Mutex
	entries []HistoryEntry
}

func (h *stubHistory) Append(_ context.Context, entry HistoryEntry) (HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	return entry, nil
}

func (h *stubHistory) ListByNote(_ context.Context, noteID int64, limit int) ([]HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []HistoryEntry
	for _, e := range h.entries {
		if e.NoteID == noteID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

func vocabSettings() settings.Settings {
	s := settings.Defaults()
	s.PromptsMap.Set("Vocab", catalog.GlobalDeckID, "Translation", "Translate {{Front}} to English", nil)
	s.PromptsMap.Set("Vocab", catalog.GlobalDeckID, "Example", "Use {{Translation}} in a sentence", nil)
	s.PromptsMap.Set("Vocab", catalog.GlobalDeckID, "Audio", "{{Front}}", &settings.FieldExtras{Type: catalog.KindTTS})
	s.PromptsMap.Set("Vocab", catalog.GlobalDeckID, "Picture", "{{Translation}}", &settings.FieldExtras{Type: catalog.KindImage, Automatic: ptr(false)})
	return s
}

func vocabNote(id int64) Note {
	return Note{
		ID:         id,
		NoteType:   "Vocab",
		DeckID:     "1700000000",
		Fields:     map[string]string{"Front": "chat", "Translation": "", "Example": "", "Audio": "", "Picture": ""},
		FieldOrder: []string{"Front", "Translation", "Example", "Audio", "Picture"},
	}
}

func echoRouter() *stubRouter {
	return &stubRouter{
		respondFn: func(_ context.Context, req provider.ChatRequest) (provider.ChatResponse, error) {
			switch {
			case strings.HasPrefix(req.Prompt, "Translate"):
				return provider.ChatResponse{Message: "cat", Usage: metrics.TokenUsage{TotalTokens: 3}}, nil
			default:
				return provider.ChatResponse{Message: "Sentence: " + req.Prompt}, nil
			}
		},
		speakFn: func(provider.TTSRequest) ([]byte, error) { return []byte("ID3\x03audio"), nil },
		generateFn: func(provider.ImageRequest) ([]byte, error) {
			return []byte("\x89PNG\r\n\x1a\n0000"), nil
		},
	}
}

func TestGenerateNoteOrdersAndFeedsFields(t *testing.T) {
	t.Parallel()

	media := &stubMedia{}
	history := &stubHistory{}
	svc := NewService(Config{}, stubSettings{value: vocabSettings()}, echoRouter(), media, history, newTestLogger())

	res, err := svc.GenerateNote(context.Background(), GenerateRequest{Note: vocabNote(42)})
	require.NoError(t, err)
	require.True(t, res.Updated)
	require.False(t, res.Failed())

	require.Equal(t, "cat", res.Fields["Translation"])
	require.Equal(t, "Sentence: Use cat in a sentence", res.Fields["Example"])
	require.True(t, strings.HasPrefix(res.Fields["Audio"], "[sound:smart-notes-"))
	require.True(t, strings.HasSuffix(res.Fields["Audio"], ".mp3]"))
	require.Empty(t, res.Fields["Picture"])

	var skipped []string
	for _, r := range res.Results {
		if r.Skipped {
			skipped = append(skipped, r.Field+": "+r.Reason)
		}
	}
	require.Equal(t, []string{"Picture: " + ReasonManual}, skipped)
	require.Len(t, history.entries, 3)
	require.Equal(t, 3, history.entries[0].Usage.TotalTokens)
	require.Equal(t, 3, res.Usage.TotalTokens)
	require.Len(t, media.puts, 1)
}

func TestGenerateNoteExplicitManualImage(t *testing.T) {
	t.Parallel()

	media := &stubMedia{}
	svc := NewService(Config{}, stubSettings{value: vocabSettings()}, echoRouter(), media, nil, newTestLogger())
	note := vocabNote(1)
	note.Fields["Translation"] = "cat"

	res, err := svc.GenerateNote(context.Background(), GenerateRequest{Note: note, OnlyFields: []string{"picture"}})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	require.Regexp(t, `^<img src="smart-notes-[0-9a-f-]+\.png">$`, res.Fields["Picture"])
	for _, mime := range media.puts {
		require.Equal(t, "image/png", mime)
	}
}

func TestGenerateNoteSkipsExistingAndEmptyInputs(t *testing.T) {
	t.Parallel()

	svc := NewService(Config{}, stubSettings{value: vocabSettings()}, echoRouter(), &stubMedia{}, nil, newTestLogger())
	note := vocabNote(1)
	note.Fields["Front"] = ""
	note.Fields["Translation"] = "already"

	res, err := svc.GenerateNote(context.Background(), GenerateRequest{Note: note})
	require.NoError(t, err)
	reasons := map[string]string{}
	for _, r := range res.Results {
		reasons[r.Field] = r.Reason
	}
	require.Equal(t, ReasonHasContent, reasons["Translation"])
	require.Equal(t, ReasonEmptyInputs+": Front", reasons["Audio"])
	require.Empty(t, reasons["Example"])
	require.Equal(t, "Sentence: Use already in a sentence", res.Fields["Example"])

	withOverwrite, err := svc.GenerateNote(context.Background(), GenerateRequest{Note: vocabNote(2), Overwrite: true})
	require.NoError(t, err)
	require.Equal(t, "cat", withOverwrite.Fields["Translation"])
}

func TestGenerateNoteReportsSkipsInFieldOrder(t *testing.T) {
	t.Parallel()

	current := vocabSettings()
	current.PromptsMap.Set("Vocab", catalog.GlobalDeckID, "Hint", "{{Front}}", nil)
	svc := NewService(Config{}, stubSettings{value: current}, echoRouter(), &stubMedia{}, nil, newTestLogger())
	note := vocabNote(7)
	note.Fields["Translation"] = "cat"
	note.Fields["Example"] = "A cat."
	note.Fields["Audio"] = "[sound:cat.mp3]"

	want := []string{"Translation", "Example", "Audio", "Picture", "Hint"}
	for range 20 {
		res, err := svc.GenerateNote(context.Background(), GenerateRequest{Note: note})
		require.NoError(t, err)
		var got []string
		for _, r := range res.Results {
			require.True(t, r.Skipped)
			got = append(got, r.Field)
		}
		require.Equal(t, want, got)
	}
}

func TestGenerateNoteFailureStopsDependentsOnly(t *testing.T) {
	t.Parallel()

	router := echoRouter()
	router.respondFn = func(_ context.Context, req provider.ChatRequest) (provider.ChatResponse, error) {
		if strings.HasPrefix(req.Prompt, "Translate") {
			return provider.ChatResponse{}, apperrors.Wrap(apperrors.CodeRateLimited, "slow down", nil)
		}
		return provider.ChatResponse{Message: "ok"}, nil
	}
	history := &stubHistory{}
	svc := NewService(Config{}, stubSettings{value: vocabSettings()}, router, &stubMedia{}, history, newTestLogger())

	res, err := svc.GenerateNote(context.Background(), GenerateRequest{Note: vocabNote(5)})
	require.NoError(t, err)
	require.True(t, res.Failed())
	byField := map[string]FieldResult{}
	for _, r := range res.Results {
		byField[r.Field] = r
	}
	require.True(t, apperrors.IsCode(byField["Translation"].Err, apperrors.CodeRateLimited))
	require.True(t, byField["Example"].Skipped)
	require.Equal(t, ReasonDependencyError+": Translation", byField["Example"].Reason)
	require.NotEmpty(t, res.Fields["Audio"])
	require.Len(t, history.entries, 2)
	require.Equal(t, "slow down", history.entries[0].Error)

	entries, err := svc.History(context.Background(), 5, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestGenerateNoteDeckOverridesAndCustomModel(t *testing.T) {
	t.Parallel()

	s := vocabSettings()
	s.PromptsMap.Set("Vocab", "1700000000", "Translation", "Traduis {{Front}}", &settings.FieldExtras{
		UseCustomModel:     true,
		ChatProvider:       ptr(catalog.ProviderAnthropic),
		ChatModel:          ptr("claude-sonnet-4-0"),
		ChatTemperature:    ptr(0.3),
		ChatMarkdownToHTML: ptr(false),
	})
	var got provider.ChatRequest
	router := echoRouter()
	router.respondFn = func(_ context.Context, req provider.ChatRequest) (provider.ChatResponse, error) {
		if strings.HasPrefix(req.Prompt, "Traduis") {
			got = req
		}
		return provider.ChatResponse{Message: "**x**"}, nil
	}
	svc := NewService(Config{}, stubSettings{value: s}, router, &stubMedia{}, nil, newTestLogger())

	res, err := svc.GenerateNote(context.Background(), GenerateRequest{Note: vocabNote(9), OnlyFields: []string{"Translation"}})
	require.NoError(t, err)
	require.Equal(t, "Traduis chat", got.Prompt)
	require.Equal(t, catalog.ProviderAnthropic, got.Provider)
	require.Equal(t, "claude-sonnet-4-0", got.Model)
	require.InDelta(t, 0.3, *got.Temperature, 1e-9)
	require.Equal(t, "**x**", res.Fields["Translation"])
}

func TestGenerateNoteCycle(t *testing.T) {
	t.Parallel()

	s := settings.Defaults()
	s.PromptsMap.Set("Loop", catalog.GlobalDeckID, "A", "{{B}}", nil)
	s.PromptsMap.Set("Loop", catalog.GlobalDeckID, "B", "{{A}}", nil)
	svc := NewService(Config{}, stubSettings{value: s}, echoRouter(), &stubMedia{}, nil, newTestLogger())

	_, err := svc.GenerateNote(context.Background(), GenerateRequest{Note: Note{ID: 1, NoteType: "Loop", Fields: map[string]string{"A": "", "B": ""}}})
	require.True(t, apperrors.IsCode(err, apperrors.CodeCycleDetected))

	_, err = svc.GenerateNote(context.Background(), GenerateRequest{Note: Note{ID: 1}})
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
}

func TestGenerateBatchBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var inFlight, peak int32
	router := echoRouter()
	router.respondFn = func(_ context.Context, req provider.ChatRequest) (provider.ChatResponse, error) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		if strings.Contains(req.Prompt, "boom") {
			return provider.ChatResponse{}, errors.New("backend exploded")
		}
		return provider.ChatResponse{Message: "ok"}, nil
	}
	s := settings.Defaults()
	s.PromptsMap.Set("Basic", catalog.GlobalDeckID, "Back", "Answer {{Front}}", nil)
	svc := NewService(Config{BatchLimit: 3}, stubSettings{value: s}, router, &stubMedia{}, nil, newTestLogger())

	var batch []Note
	for i := 0; i < 12; i++ {
		front := "q"
		if i == 4 {
			front = "boom"
		}
		batch = append(batch, Note{ID: int64(i), NoteType: "Basic", Fields: map[string]string{"Front": front, "Back": ""}})
	}
	batch = append(batch, Note{ID: 99})

	res, err := svc.GenerateBatch(context.Background(), batch, false)
	require.NoError(t, err)
	require.Len(t, res.Notes, 13)
	require.Equal(t, 11, res.Updated)
	require.Equal(t, 2, res.Failed)
	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	require.Equal(t, "ok", res.Notes[0].Fields["Back"])
	require.Contains(t, strings.Join(res.Errors, "\n"), "note 4: Back: backend exploded")
}

func TestGenerateBatchRegeneratesWhenConfigured(t *testing.T) {
	t.Parallel()

	s := settings.Defaults()
	s.RegenerateNotesWhenBatching = true
	s.PromptsMap.Set("Basic", catalog.GlobalDeckID, "Back", "Answer {{Front}}", nil)
	svc := NewService(Config{}, stubSettings{value: s}, echoRouter(), &stubMedia{}, nil, newTestLogger())

	res, err := svc.GenerateBatch(context.Background(), []Note{
		{ID: 1, NoteType: "Basic", Fields: map[string]string{"Front": "q", "Back": "stale"}},
	}, false)
	require.NoError(t, err)
	require.Equal(t, "Sentence: Answer q", res.Notes[0].Fields["Back"])
}

func TestGenerateBatchTotalsTokenUsage(t *testing.T) {
	t.Parallel()

	s := settings.Defaults()
	s.PromptsMap.Set("Basic", catalog.GlobalDeckID, "Back", "Translate {{Front}}", nil)
	svc := NewService(Config{}, stubSettings{value: s}, echoRouter(), &stubMedia{}, nil, newTestLogger())

	res, err := svc.GenerateBatch(context.Background(), []Note{
		{ID: 1, NoteType: "Basic", Fields: map[string]string{"Front": "chat", "Back": ""}},
		{ID: 2, NoteType: "Basic", Fields: map[string]string{"Front": "chien", "Back": ""}},
		{ID: 3, NoteType: "Basic", Fields: map[string]string{"Front": "oiseau", "Back": "bird"}},
	}, false)
	require.NoError(t, err)
	require.Equal(t, 3, res.Notes[0].Usage.TotalTokens)
	require.True(t, res.Notes[2].Usage.IsZero())
	require.Equal(t, 6, res.Usage.TotalTokens)
}

func TestGenerateBatchCanceled(t *testing.T) {
	t.Parallel()

	s := settings.Defaults()
	s.PromptsMap.Set("Basic", catalog.GlobalDeckID, "Back", "Answer {{Front}}", nil)
	svc := NewService(Config{}, stubSettings{value: s}, echoRouter(), &stubMedia{}, nil, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := svc.GenerateBatch(ctx, []Note{{ID: 1, NoteType: "Basic", Fields: map[string]string{"Front": "q", "Back": ""}}}, false)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, res.Failed)
	require.Zero(t, res.Updated)
}

func TestGenerateNoteRendersMarkdown(t *testing.T) {
	t.Parallel()

	router := echoRouter()
	router.respondFn = func(context.Context, provider.ChatRequest) (provider.ChatResponse, error) {
		return provider.ChatResponse{Message: "**bold** answer"}, nil
	}
	s := settings.Defaults()
	s.PromptsMap.Set("Basic", catalog.GlobalDeckID, "Back", "Answer {{Front}}", nil)
	svc := NewService(Config{}, stubSettings{value: s}, router, &stubMedia{}, nil, newTestLogger())

	res, err := svc.GenerateNote(context.Background(), GenerateRequest{Note: Note{ID: 3, NoteType: "Basic", Fields: map[string]string{"Front": "q", "Back": ""}}})
	require.NoError(t, err)
	require.Equal(t, "<strong>bold</strong> answer", res.Fields["Back"])
}
