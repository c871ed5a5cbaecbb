package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/yanqian/smart-notes/internal/domain/catalog"
	"github.com/yanqian/smart-notes/internal/domain/settings"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
)

const promptsKey = "prompts_map"

func newSettingsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and change the addon settings in meta.json",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print every setting with API keys masked",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				current, err := a.currentSettings(cmd)
				if err != nil {
					return err
				}
				values, err := settingValues(current.Redacted())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(values))
				for _, key := range sortedKeys(values) {
					if key == promptsKey {
						continue
					}
					rows = append(rows, []string{key, formatValue(values[key])})
				}
				return a.render(cmd.OutOrStdout(), current.Redacted(), []string{"Key", "Value"}, rows)
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one setting",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				current, err := a.currentSettings(cmd)
				if err != nil {
					return err
				}
				values, err := settingValues(current.Redacted())
				if err != nil {
					return err
				}
				raw, ok := values[args[0]]
				if !ok {
					return apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("unknown setting %q", args[0]), nil)
				}
				if a.jsonOutput() || args[0] == promptsKey {
					return writeJSON(cmd.OutOrStdout(), raw)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), formatValue(raw))
				return err
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change one setting",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				patch, err := settings.ParseAssignment(args[0], args[1])
				if err != nil {
					return apperrors.Wrap(apperrors.CodeInvalidInput, err.Error(), nil)
				}
				svc, err := a.services()
				if err != nil {
					return err
				}
				updated, err := svc.Settings.Update(cmd.Context(), patch)
				if err != nil {
					return err
				}
				values, err := settingValues(updated.Redacted())
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), map[string]json.RawMessage{args[0]: values[args[0]]})
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], formatValue(values[args[0]]))
				return err
			},
		},
		newPromptCommand(a),
	)
	return cmd
}

func newPromptCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Manage smart field prompts",
	}

	var (
		kind   string
		manual bool
	)
	set := &cobra.Command{
		Use:   "set <note-type> <deck-id> <field> <prompt>",
		Short: "Create or replace a smart field (deck id -1 applies to every deck)",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			update := settings.PromptUpdate{NoteType: args[0], DeckID: args[1], Field: args[2], Prompt: args[3]}
			if cmd.Flags().Changed("type") || cmd.Flags().Changed("manual") {
				automatic := !manual
				update.Extras = &settings.FieldExtras{Type: catalog.Kind(kind), Automatic: &automatic}
			}
			updated, err := svc.Settings.SetPrompt(cmd.Context(), update)
			if err != nil {
				return err
			}
			return a.renderPrompts(cmd.OutOrStdout(), updated.PromptsMap)
		},
	}
	set.Flags().StringVar(&kind, "type", string(catalog.KindChat), "Field kind: chat, tts, image")
	set.Flags().BoolVar(&manual, "manual", false, "Only generate this field on explicit request")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List configured smart fields",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				current, err := a.currentSettings(cmd)
				if err != nil {
					return err
				}
				return a.renderPrompts(cmd.OutOrStdout(), current.PromptsMap)
			},
		},
		set,
		&cobra.Command{
			Use:   "remove <note-type> <deck-id> <field>",
			Short: "Remove a smart field",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := a.services()
				if err != nil {
					return err
				}
				updated, err := svc.Settings.RemovePrompt(cmd.Context(), args[0], args[1], args[2])
				if err != nil {
					return err
				}
				return a.renderPrompts(cmd.OutOrStdout(), updated.PromptsMap)
			},
		},
	)
	return cmd
}

func (a *app) currentSettings(cmd *cobra.Command) (settings.Settings, error) {
	svc, err := a.services()
	if err != nil {
		return settings.Settings{}, err
	}
	return svc.Settings.Get(cmd.Context())
}

func (a *app) renderPrompts(w io.Writer, prompts settings.PromptsMap) error {
	var rows [][]string
	for _, noteType := range sortedKeys(prompts.NoteTypes) {
		decks := prompts.NoteTypes[noteType]
		for _, deckID := range sortedKeys(decks) {
			deck := decks[deckID]
			for _, field := range sortedKeys(deck.Fields) {
				extras := deck.Extras[field]
				mode := "automatic"
				if !extras.IsAutomatic() {
					mode = "manual"
				}
				rows = append(rows, []string{noteType, deckID, field, string(extras.Kind()), mode, truncate(deck.Fields[field], 60)})
			}
		}
	}
	return a.render(w, prompts, []string{"Note type", "Deck", "Field", "Kind", "Mode", "Prompt"}, rows)
}

func settingValues(s settings.Settings) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var values map[string]json.RawMessage
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// formatValue prints strings without quotes and everything else as JSON.
func formatValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
