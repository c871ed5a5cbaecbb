package historyrepo

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/smart-notes/internal/domain/catalog"
	"github.com/yanqian/smart-notes/internal/domain/notes"
)

// Schema creates the history table when missing.
const Schema = `
CREATE TABLE IF NOT EXISTS generation_history (
	id                UUID PRIMARY KEY,
	note_id           BIGINT NOT NULL,
	field             TEXT NOT NULL,
	kind              TEXT NOT NULL,
	provider          TEXT NOT NULL,
	model             TEXT NOT NULL,
	prompt            TEXT NOT NULL,
	value             TEXT,
	error             TEXT,
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens      INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS generation_history_note_idx ON generation_history (note_id, created_at DESC);
`

// PostgresRepository implements notes.HistoryRepository using pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Migrate applies Schema.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, Schema)
	return err
}

// Append inserts a history row.
func (r *PostgresRepository) Append(ctx context.Context, entry notes.HistoryEntry) (notes.HistoryEntry, error) {
	id := uuid.New()
	if entry.ID != "" {
		parsed, err := uuid.Parse(entry.ID)
		if err != nil {
			return notes.HistoryEntry{}, err
		}
		id = parsed
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO generation_history
			(id, note_id, field, kind, provider, model, prompt, value, error,
			 prompt_tokens, completion_tokens, total_tokens)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12)
		RETURNING `+historyColumns,
		id, entry.NoteID, entry.Field, string(entry.Kind), entry.Provider, entry.Model, entry.Prompt,
		entry.Value, entry.Error,
		entry.Usage.PromptTokens, entry.Usage.CompletionTokens, entry.Usage.TotalTokens,
	)
	return scanHistoryEntry(row)
}

// ListByNote returns the newest entries first.
func (r *PostgresRepository) ListByNote(ctx context.Context, noteID int64, limit int) ([]notes.HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+historyColumns+`
		FROM generation_history
		WHERE note_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, noteID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []notes.HistoryEntry
	for rows.Next() {
		entry, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

const historyColumns = `id, note_id, field, kind, provider, model, prompt, value, error,
	prompt_tokens, completion_tokens, total_tokens, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistoryEntry(row rowScanner) (notes.HistoryEntry, error) {
	var (
		entry     notes.HistoryEntry
		id        uuid.UUID
		kind      string
		value     sql.NullString
		errorText sql.NullString
	)
	if err := row.Scan(
		&id, &entry.NoteID, &entry.Field, &kind, &entry.Provider, &entry.Model, &entry.Prompt,
		&value, &errorText,
		&entry.Usage.PromptTokens, &entry.Usage.CompletionTokens, &entry.Usage.TotalTokens,
		&entry.CreatedAt,
	); err != nil {
		return notes.HistoryEntry{}, err
	}
	entry.ID = id.String()
	entry.Kind = catalog.Kind(kind)
	entry.Value = value.String
	entry.Error = errorText.String
	return entry, nil
}

var _ notes.HistoryRepository = (*PostgresRepository)(nil)
