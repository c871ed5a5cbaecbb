package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yanqian/smart-notes/internal/domain/notes"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
)

func newGenerateCommand(a *app) *cobra.Command {
	var (
		overwrite     bool
		includeManual bool
		fields        []string
	)
	cmd := &cobra.Command{
		Use:   "generate <notes.json|->",
		Short: "Fill the smart fields of one note or a JSON array of notes",
		Long: `Reads a note ({"id","note_type","deck_id","fields"}) or an array of notes
from a file or stdin and fills their smart fields from the configured prompts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			svc, err := a.services()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
				var batch []notes.Note
				if err := json.Unmarshal(trimmed, &batch); err != nil {
					return apperrors.Wrap(apperrors.CodeInvalidInput, "invalid notes array", err)
				}
				result, err := svc.Notes.GenerateBatch(cmd.Context(), batch, overwrite)
				if err != nil {
					return err
				}
				if err := a.renderBatch(out, result); err != nil {
					return err
				}
				if result.Failed > 0 {
					return fmt.Errorf("%d of %d notes failed", result.Failed, len(batch))
				}
				return nil
			}

			var note notes.Note
			if err := json.Unmarshal(raw, &note); err != nil {
				return apperrors.Wrap(apperrors.CodeInvalidInput, "invalid note", err)
			}
			result, err := svc.Notes.GenerateNote(cmd.Context(), notes.GenerateRequest{
				Note:          note,
				Overwrite:     overwrite,
				OnlyFields:    fields,
				IncludeManual: includeManual,
			})
			if err != nil {
				return err
			}
			if err := a.renderNote(out, result); err != nil {
				return err
			}
			if result.Failed() {
				return fmt.Errorf("note %d: some fields failed to generate", result.NoteID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Regenerate fields that already have content")
	cmd.Flags().BoolVar(&includeManual, "include-manual", false, "Also generate fields marked as manual")
	cmd.Flags().StringSliceVar(&fields, "field", nil, "Only generate these fields (repeatable)")
	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "failed to read stdin", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "failed to read "+path, err)
	}
	return data, nil
}

func (a *app) renderNote(w io.Writer, result notes.NoteResult) error {
	rows := make([][]string, 0, len(result.Results))
	for _, res := range result.Results {
		rows = append(rows, []string{res.Field, string(res.Kind), fieldStatus(res), fieldDetail(res)})
	}
	return a.render(w, result, []string{"Field", "Kind", "Status", "Detail"}, rows)
}

func (a *app) renderBatch(w io.Writer, result notes.BatchResult) error {
	rows := make([][]string, 0, len(result.Notes))
	for _, note := range result.Notes {
		failed := 0
		for _, res := range note.Results {
			if res.Err != nil || res.Error != "" {
				failed++
			}
		}
		rows = append(rows, []string{
			strconv.FormatInt(note.NoteID, 10),
			strconv.FormatBool(note.Updated),
			strconv.Itoa(len(note.Results)),
			strconv.Itoa(failed),
		})
	}
	return a.render(w, result, []string{"Note", "Updated", "Fields", "Failed"}, rows)
}

func fieldStatus(res notes.FieldResult) string {
	switch {
	case res.Err != nil || res.Error != "":
		return "failed"
	case res.Skipped:
		return "skipped"
	default:
		return "generated"
	}
}

func fieldDetail(res notes.FieldResult) string {
	switch {
	case res.Error != "":
		return res.Error
	case res.Err != nil:
		return res.Err.Error()
	case res.Skipped:
		return res.Reason
	default:
		return truncate(res.Value, 60)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
