package settings

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	apperrors "github.com/yanqian/smart-notes/pkg/errors"
)

// Store persists settings.
type Store interface {
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
}

// PromptUpdate creates or replaces one smart field.
type PromptUpdate struct {
	NoteType string       `json:"noteType"`
	DeckID   string       `json:"deckId"`
	Field    string       `json:"field"`
	Prompt   string       `json:"prompt"`
	Extras   *FieldExtras `json:"extras,omitempty"`
}

// Service exposes the user settings.
type Service interface {
	Get(ctx context.Context) (Settings, error)
	Update(ctx context.Context, patch Patch) (Settings, error)
	SetPrompt(ctx context.Context, update PromptUpdate) (Settings, error)
	RemovePrompt(ctx context.Context, noteType, deckID, field string) (Settings, error)
	Reload(ctx context.Context) (Settings, error)
}

type service struct {
	store  Store
	logger *slog.Logger

	mu      sync.Mutex
	current Settings
	loaded  bool
}

// NewService wires the settings domain.
func NewService(store Store, logger *slog.Logger) Service {
	return &service{
		store:  store,
		logger: logger.With("component", "settings.service"),
	}
}

func (s *service) Get(ctx context.Context) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return Settings{}, err
	}
	return s.current.Clone(), nil
}

func (s *service) Update(ctx context.Context, patch Patch) (Settings, error) {
	if patch.IsEmpty() {
		return Settings{}, apperrors.Wrap(apperrors.CodeInvalidInput, "no settings to update", nil)
	}
	return s.mutate(ctx, func(cur Settings) (Settings, error) {
		return patch.Apply(cur), nil
	})
}

func (s *service) SetPrompt(ctx context.Context, update PromptUpdate) (Settings, error) {
	noteType := strings.TrimSpace(update.NoteType)
	field := strings.TrimSpace(update.Field)
	if noteType == "" || field == "" {
		return Settings{}, apperrors.Wrap(apperrors.CodeInvalidInput, "note type and field are required", nil)
	}
	if strings.TrimSpace(update.Prompt) == "" {
		return Settings{}, apperrors.Wrap(apperrors.CodeInvalidInput, "prompt cannot be empty", nil)
	}
	return s.mutate(ctx, func(cur Settings) (Settings, error) {
		next := cur.Clone()
		next.PromptsMap.Set(noteType, update.DeckID, field, update.Prompt, update.Extras)
		return next, nil
	})
}

func (s *service) RemovePrompt(ctx context.Context, noteType, deckID, field string) (Settings, error) {
	return s.mutate(ctx, func(cur Settings) (Settings, error) {
		next := cur.Clone()
		if !next.PromptsMap.Remove(noteType, deckID, field) {
			return Settings{}, apperrors.Wrap(apperrors.CodeNotFound, "no prompt for "+noteType+"/"+NormalizeDeckID(deckID)+"/"+field, nil)
		}
		return next, nil
	})
}

func (s *service) Reload(ctx context.Context) (Settings, error) {
	loaded, err := s.store.Load(ctx)
	if err != nil {
		return Settings{}, apperrors.Wrap(apperrors.CodeSettings, "failed to load settings", err)
	}
	if err := loaded.Validate(); err != nil {
		s.logger.Warn("reloaded settings are invalid, keeping previous", "error", err)
		return Settings{}, apperrors.Wrap(apperrors.CodeSettings, "reloaded settings are invalid", err)
	}
	s.mu.Lock()
	s.current = loaded
	s.loaded = true
	s.mu.Unlock()
	s.logger.Info("settings reloaded", "chatProvider", loaded.ChatProvider, "chatModel", loaded.ChatModel)
	return loaded.Clone(), nil
}

func (s *service) mutate(ctx context.Context, fn func(Settings) (Settings, error)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return Settings{}, err
	}
	next, err := fn(s.current)
	if err != nil {
		return Settings{}, err
	}
	if err := next.Validate(); err != nil {
		return Settings{}, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid settings", err)
	}
	if err := s.store.Save(ctx, next); err != nil {
		s.logger.Error("failed to save settings", "error", err)
		return Settings{}, apperrors.Wrap(apperrors.CodeStorage, "failed to save settings", err)
	}
	s.current = next
	return next.Clone(), nil
}

func (s *service) ensureLoaded(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	loaded, err := s.store.Load(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeSettings, "failed to load settings", err)
	}
	s.current = loaded
	s.loaded = true
	return nil
}
