// Package notes generates smart field values for notes from the prompts
// configured in the user settings.
package notes

import (
	"context"
	"io"
	"time"

	"github.com/yanqian/smart-notes/internal/domain/catalog"
	"github.com/yanqian/smart-notes/pkg/metrics"
)

// Note is the subset of a host note the generator needs.
type Note struct {
	ID         int64             `json:"id"`
	NoteType   string            `json:"note_type"`
	DeckID     string            `json:"deck_id"`
	Fields     map[string]string `json:"fields"`
	FieldOrder []string          `json:"field_order,omitempty"`
}

// GenerateRequest asks for the smart fields of one note.
type GenerateRequest struct {
	Note          Note     `json:"note"`
	Overwrite     bool     `json:"overwrite"`
	OnlyFields    []string `json:"only_fields,omitempty"`
	IncludeManual bool     `json:"include_manual"`
}

// FieldResult reports what happened to one target field.
type FieldResult struct {
	Field   string       `json:"field"`
	Kind    catalog.Kind `json:"kind"`
	Value   string       `json:"value,omitempty"`
	Skipped bool         `json:"skipped,omitempty"`
	Reason  string       `json:"reason,omitempty"`
	Err     error        `json:"-"`
	Error   string       `json:"error,omitempty"`
}

// NoteResult is the outcome for one note. Fields holds the note fields after
// generation.
type NoteResult struct {
	NoteID  int64              `json:"note_id"`
	Fields  map[string]string  `json:"fields"`
	Results []FieldResult      `json:"results"`
	Updated bool               `json:"updated"`
	Usage   metrics.TokenUsage `json:"usage"`
}

// Failed reports whether any field failed.
func (r NoteResult) Failed() bool {
	for _, res := range r.Results {
		if res.Err != nil {
			return true
		}
	}
	return false
}

// BatchResult aggregates a batch run in input order.
type BatchResult struct {
	Notes   []NoteResult       `json:"notes"`
	Updated int                `json:"updated"`
	Failed  int                `json:"failed"`
	Errors  []string           `json:"errors,omitempty"`
	Usage   metrics.TokenUsage `json:"usage"`
}

// HistoryEntry records one generation attempt.
type HistoryEntry struct {
	ID        string             `json:"id"`
	NoteID    int64              `json:"note_id"`
	Field     string             `json:"field"`
	Kind      catalog.Kind       `json:"kind"`
	Provider  string             `json:"provider"`
	Model     string             `json:"model"`
	Prompt    string             `json:"prompt"`
	Value     string             `json:"value,omitempty"`
	Error     string             `json:"error,omitempty"`
	Usage     metrics.TokenUsage `json:"usage"`
	CreatedAt time.Time          `json:"created_at"`
}

// HistoryRepository persists generation history.
type HistoryRepository interface {
	Append(ctx context.Context, entry HistoryEntry) (HistoryEntry, error)
	ListByNote(ctx context.Context, noteID int64, limit int) ([]HistoryEntry, error)
}

// StoredMedia describes a generated audio or image file.
type StoredMedia struct {
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
	ETag     string `json:"etag,omitempty"`
}

// MediaStorage keeps generated media addressable by key.
type MediaStorage interface {
	Put(ctx context.Context, key string, data []byte, mimeType string) (StoredMedia, error)
	Get(ctx context.Context, key string) (io.ReadCloser, StoredMedia, error)
}
