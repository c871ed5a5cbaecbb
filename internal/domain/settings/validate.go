package settings

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/yanqian/smart-notes/internal/domain/catalog"
)

// Validate checks providers, ranges and prompt definitions.
func (s Settings) Validate() error {
	var errs []error
	if !catalog.IsProvider(catalog.KindChat, s.ChatProvider) {
		errs = append(errs, fmt.Errorf("chat_provider %q is not supported", s.ChatProvider))
	}
	if strings.TrimSpace(s.ChatModel) == "" {
		errs = append(errs, errors.New("chat_model cannot be empty"))
	}
	if err := validateTemperature("chat_temperature", s.ChatTemperature); err != nil {
		errs = append(errs, err)
	}
	if !catalog.IsProvider(catalog.KindTTS, s.TTSProvider) {
		errs = append(errs, fmt.Errorf("tts_provider %q is not supported", s.TTSProvider))
	}
	if !catalog.IsProvider(catalog.KindImage, s.ImageProvider) {
		errs = append(errs, fmt.Errorf("image_provider %q is not supported", s.ImageProvider))
	}
	if s.OllamaEndpoint != "" {
		if err := validateEndpoint(s.OllamaEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("ollama_endpoint: %w", err))
		}
	}
	for noteType, decks := range s.PromptsMap.NoteTypes {
		for deckID, d := range decks {
			for field, prompt := range d.Fields {
				if strings.TrimSpace(prompt) == "" {
					errs = append(errs, fmt.Errorf("prompt for %s/%s/%s cannot be empty", noteType, deckID, field))
				}
			}
			for field, extras := range d.Extras {
				if err := extras.Validate(); err != nil {
					errs = append(errs, fmt.Errorf("extras for %s/%s/%s: %w", noteType, deckID, field, err))
				}
			}
		}
	}
	return errors.Join(errs...)
}

// Validate checks the field type and any overridden providers.
func (e *FieldExtras) Validate() error {
	if e == nil {
		return nil
	}
	switch e.Kind() {
	case catalog.KindChat, catalog.KindTTS, catalog.KindImage:
	default:
		return fmt.Errorf("type %q is not supported", e.Type)
	}
	if e.ChatProvider != nil && !catalog.IsProvider(catalog.KindChat, *e.ChatProvider) {
		return fmt.Errorf("chat_provider %q is not supported", *e.ChatProvider)
	}
	if e.TTSProvider != nil && !catalog.IsProvider(catalog.KindTTS, *e.TTSProvider) {
		return fmt.Errorf("tts_provider %q is not supported", *e.TTSProvider)
	}
	if e.ImageProvider != nil && !catalog.IsProvider(catalog.KindImage, *e.ImageProvider) {
		return fmt.Errorf("image_provider %q is not supported", *e.ImageProvider)
	}
	if e.ChatTemperature != nil {
		return validateTemperature("chat_temperature", *e.ChatTemperature)
	}
	return nil
}

func validateTemperature(name string, v float64) error {
	if v < 0 || v > 2 {
		return fmt.Errorf("%s must be between 0 and 2, got %g", name, v)
	}
	return nil
}

func validateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
