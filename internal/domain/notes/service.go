package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yanqian/smart-notes/internal/domain/catalog"
	"github.com/yanqian/smart-notes/internal/domain/provider"
	"github.com/yanqian/smart-notes/internal/domain/settings"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
	"github.com/yanqian/smart-notes/pkg/richtext"
)

// Skip reasons reported in FieldResult.Reason.
const (
	ReasonHasContent      = "field already has content"
	ReasonManual          = "field is not automatic"
	ReasonMissingField    = "field does not exist on note"
	ReasonEmptyInputs     = "empty input fields"
	ReasonDependencyError = "depends on a failed field"
)

// Service generates smart field values.
type Service interface {
	GenerateNote(ctx context.Context, req GenerateRequest) (NoteResult, error)
	GenerateBatch(ctx context.Context, notes []Note, overwrite bool) (BatchResult, error)
	History(ctx context.Context, noteID int64, limit int) ([]HistoryEntry, error)
}

// SettingsSource supplies the current user settings.
type SettingsSource interface {
	Get(ctx context.Context) (settings.Settings, error)
}

// Config tunes generation.
type Config struct {
	BatchLimit int
}

type service struct {
	settings SettingsSource
	chat     provider.ChatRouter
	tts      provider.TTSRouter
	image    provider.ImageRouter
	media    MediaStorage
	history  HistoryRepository
	cfg      Config
	logger   *slog.Logger
}

// NewService wires the generation domain. history may be nil.
func NewService(
	cfg Config,
	settingsSrc SettingsSource,
	router provider.Router,
	media MediaStorage,
	history HistoryRepository,
	logger *slog.Logger,
) Service {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = catalog.BatchLimit
	}
	return &service{
		settings: settingsSrc,
		chat:     router,
		tts:      router,
		image:    router,
		media:    media,
		history:  history,
		cfg:      cfg,
		logger:   logger.With("component", "notes.service"),
	}
}

// GenerateNote fills the smart fields of one note. Field level failures are
// reported in the result; the error covers settings and ordering problems.
func (s *service) GenerateNote(ctx context.Context, req GenerateRequest) (NoteResult, error) {
	if strings.TrimSpace(req.Note.NoteType) == "" {
		return NoteResult{}, apperrors.Wrap(apperrors.CodeInvalidInput, "note type is required", nil)
	}
	current, err := s.settings.Get(ctx)
	if err != nil {
		return NoteResult{}, apperrors.Wrap(apperrors.CodeSettings, "failed to load settings", err)
	}
	return s.generate(ctx, current, req)
}

func (s *service) generate(ctx context.Context, current settings.Settings, req GenerateRequest) (NoteResult, error) {
	note := req.Note
	fields := make(map[string]string, len(note.Fields))
	for k, v := range note.Fields {
		fields[k] = v
	}
	result := NoteResult{NoteID: note.ID, Fields: fields}

	prompts := current.PromptsMap.FieldsFor(note.NoteType, note.DeckID)
	if len(prompts.Fields) == 0 {
		return result, nil
	}

	only := make(map[string]bool, len(req.OnlyFields))
	for _, f := range req.OnlyFields {
		only[strings.ToLower(f)] = true
	}

	targets := make(map[string]string)
	for field, prompt := range prompts.Fields {
		explicit := only[strings.ToLower(field)]
		if len(only) > 0 && !explicit {
			continue
		}
		extras := prompts.Extras[field]
		skip := func(reason string) {
			result.Results = append(result.Results, FieldResult{Field: field, Kind: extras.Kind(), Skipped: true, Reason: reason})
		}
		value, ok := fields[field]
		switch {
		case !ok:
			skip(ReasonMissingField)
		case !extras.IsAutomatic() && !req.IncludeManual && !explicit:
			skip(ReasonManual)
		case strings.TrimSpace(value) != "" && !req.Overwrite:
			skip(ReasonHasContent)
		default:
			targets[field] = prompt
		}
	}

	less := fieldLess(note.FieldOrder)
	sort.Slice(result.Results, func(i, j int) bool {
		return less(result.Results[i].Field, result.Results[j].Field)
	})

	order, err := OrderFields(targets, note.FieldOrder)
	if err != nil {
		return result, err
	}

	failed := make(map[string]bool)
	for _, field := range order {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		extras := prompts.Extras[field]
		res := FieldResult{Field: field, Kind: extras.Kind()}

		if dep := failedDependency(targets[field], failed); dep != "" {
			res.Skipped = true
			res.Reason = ReasonDependencyError + ": " + dep
			failed[strings.ToLower(field)] = true
			result.Results = append(result.Results, res)
			continue
		}

		prompt, missing := Interpolate(targets[field], fields)
		if len(missing) > 0 && !current.AllowEmptyFields {
			res.Skipped = true
			res.Reason = ReasonEmptyInputs + ": " + strings.Join(missing, ", ")
			failed[strings.ToLower(field)] = true
			result.Results = append(result.Results, res)
			continue
		}

		value, entry, err := s.generateField(ctx, current, note.ID, extras, prompt)
		entry.NoteID = note.ID
		entry.Field = field
		entry.Kind = res.Kind
		entry.Prompt = prompt
		if err != nil {
			s.logger.Error("field generation failed", "note_id", note.ID, "field", field, "error", err)
			res.Err = err
			res.Error = err.Error()
			entry.Error = err.Error()
			failed[strings.ToLower(field)] = true
		} else {
			res.Value = value
			entry.Value = value
			fields[field] = value
			result.Updated = true
		}
		s.record(ctx, entry)
		result.Usage = result.Usage.Add(entry.Usage)
		result.Results = append(result.Results, res)
	}
	return result, nil
}

// failedDependency returns the first referenced field that failed.
func failedDependency(prompt string, failed map[string]bool) string {
	for _, ref := range ExtractReferences(prompt) {
		if failed[strings.ToLower(ref)] {
			return ref
		}
	}
	return ""
}

func (s *service) generateField(ctx context.Context, current settings.Settings, noteID int64, extras *settings.FieldExtras, prompt string) (string, HistoryEntry, error) {
	switch extras.Kind() {
	case catalog.KindTTS:
		opts := current.TTSOptions(extras)
		entry := HistoryEntry{Provider: opts.Provider, Model: opts.Model}
		audio, err := s.tts.Speak(ctx, provider.TTSRequest{
			Input:     prompt,
			Provider:  opts.Provider,
			Model:     opts.Model,
			Voice:     opts.Voice,
			StripHTML: &opts.StripHTML,
			NoteID:    noteID,
		})
		if err != nil {
			return "", entry, err
		}
		stored, err := s.storeMedia(ctx, audio, catalog.KindTTS)
		if err != nil {
			return "", entry, err
		}
		return "[sound:" + stored.Key + "]", entry, nil

	case catalog.KindImage:
		opts := current.ImageOptions(extras)
		entry := HistoryEntry{Provider: opts.Provider, Model: opts.Model}
		img, err := s.image.Generate(ctx, provider.ImageRequest{
			Prompt:   prompt,
			Provider: opts.Provider,
			Model:    opts.Model,
			NoteID:   noteID,
		})
		if err != nil {
			return "", entry, err
		}
		stored, err := s.storeMedia(ctx, img, catalog.KindImage)
		if err != nil {
			return "", entry, err
		}
		return `<img src="` + stored.Key + `">`, entry, nil

	default:
		opts := current.ChatOptions(extras)
		entry := HistoryEntry{Provider: opts.Provider, Model: opts.Model}
		temperature := opts.Temperature
		resp, err := s.chat.Respond(ctx, provider.ChatRequest{
			Prompt:      prompt,
			Provider:    opts.Provider,
			Model:       opts.Model,
			Temperature: &temperature,
			NoteID:      noteID,
		})
		if err != nil {
			return "", entry, err
		}
		entry.Usage = resp.Usage
		value := resp.Message
		if opts.MarkdownToHTML && value != "" {
			rendered, err := richtext.MarkdownToHTML(value)
			if err != nil {
				return "", entry, apperrors.Wrap(apperrors.CodeLLM, "failed to render markdown", err)
			}
			value = rendered
		}
		return value, entry, nil
	}
}

func (s *service) storeMedia(ctx context.Context, data []byte, kind catalog.Kind) (StoredMedia, error) {
	if s.media == nil {
		return StoredMedia{}, apperrors.Wrap(apperrors.CodeStorage, "media storage is not configured", nil)
	}
	mime, ext := mediaType(data, kind)
	key := "smart-notes-" + uuid.NewString() + ext
	stored, err := s.media.Put(ctx, key, data, mime)
	if err != nil {
		return StoredMedia{}, apperrors.Wrap(apperrors.CodeStorage, "failed to store media", err)
	}
	return stored, nil
}

// mediaType sniffs the content and falls back to mp3 for audio and png for images.
func mediaType(data []byte, kind catalog.Kind) (string, string) {
	switch sniffed := http.DetectContentType(data); sniffed {
	case "audio/mpeg":
		return sniffed, ".mp3"
	case "audio/wave":
		return "audio/wav", ".wav"
	case "audio/ogg", "application/ogg":
		return "audio/ogg", ".ogg"
	case "image/png":
		return sniffed, ".png"
	case "image/jpeg":
		return sniffed, ".jpg"
	case "image/webp":
		return sniffed, ".webp"
	case "image/gif":
		return sniffed, ".gif"
	}
	if kind == catalog.KindTTS {
		return "audio/mpeg", ".mp3"
	}
	return "image/png", ".png"
}

func (s *service) record(ctx context.Context, entry HistoryEntry) {
	if s.history == nil {
		return
	}
	if _, err := s.history.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to record history", "note_id", entry.NoteID, "field", entry.Field, "error", err)
	}
}

// GenerateBatch processes notes with at most BatchLimit in flight. Per note
// failures are collected; cancellation stops scheduling new notes.
func (s *service) GenerateBatch(ctx context.Context, batch []Note, overwrite bool) (BatchResult, error) {
	current, err := s.settings.Get(ctx)
	if err != nil {
		return BatchResult{}, apperrors.Wrap(apperrors.CodeSettings, "failed to load settings", err)
	}
	overwrite = overwrite || current.RegenerateNotesWhenBatching

	results := make([]NoteResult, len(batch))
	errs := make([]error, len(batch))
	var g errgroup.Group
	g.SetLimit(s.cfg.BatchLimit)

	scheduled := 0
	for i := range batch {
		if ctx.Err() != nil {
			break
		}
		i := i
		scheduled++
		g.Go(func() error {
			note := batch[i]
			if strings.TrimSpace(note.NoteType) == "" {
				results[i] = NoteResult{NoteID: note.ID, Fields: note.Fields}
				errs[i] = apperrors.Wrap(apperrors.CodeInvalidInput, "note type is required", nil)
				return nil
			}
			results[i], errs[i] = s.generate(ctx, current, GenerateRequest{Note: note, Overwrite: overwrite})
			return nil
		})
	}
	_ = g.Wait()

	for i := scheduled; i < len(batch); i++ {
		results[i] = NoteResult{NoteID: batch[i].ID, Fields: batch[i].Fields}
		errs[i] = ctx.Err()
	}

	out := BatchResult{Notes: results}
	for i, res := range results {
		switch {
		case errs[i] != nil:
			out.Failed++
			out.Errors = append(out.Errors, fmt.Sprintf("note %d: %v", res.NoteID, errs[i]))
		case res.Failed():
			out.Failed++
			out.Errors = append(out.Errors, fmt.Sprintf("note %d: %v", res.NoteID, firstFieldError(res)))
		}
		if res.Updated {
			out.Updated++
		}
		out.Usage = out.Usage.Add(res.Usage)
	}
	s.logger.Info("batch generation finished", "notes", len(batch), "updated", out.Updated, "failed", out.Failed, "total_tokens", out.Usage.TotalTokens)
	return out, ctx.Err()
}

func firstFieldError(res NoteResult) error {
	for _, r := range res.Results {
		if r.Err != nil {
			return fmt.Errorf("%s: %w", r.Field, r.Err)
		}
	}
	return errors.New("unknown failure")
}

// History lists recent generation attempts for a note.
func (s *service) History(ctx context.Context, noteID int64, limit int) ([]HistoryEntry, error) {
	if s.history == nil {
		return nil, nil
	}
	entries, err := s.history.ListByNote(ctx, noteID, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "failed to load history", err)
	}
	return entries, nil
}

var _ Service = (*service)(nil)
