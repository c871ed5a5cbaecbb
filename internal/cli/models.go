package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/yanqian/smart-notes/internal/domain/catalog"
)

func newModelsCommand(a *app) *cobra.Command {
	var (
		kind       string
		name       string
		refresh    bool
		showVoices bool
	)
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models a provider offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			k := catalog.Kind(strings.ToLower(kind))
			if name == "" {
				current, err := svc.Settings.Get(cmd.Context())
				if err != nil {
					return err
				}
				switch k {
				case catalog.KindTTS:
					name = current.TTSProvider
				case catalog.KindImage:
					name = current.ImageProvider
				default:
					name = current.ChatProvider
				}
			}
			if showVoices {
				voices := catalog.Voices(name)
				rows := make([][]string, 0, len(voices))
				for _, v := range voices {
					rows = append(rows, []string{v})
				}
				return a.render(cmd.OutOrStdout(), voices, []string{"Voice"}, rows)
			}
			models, err := svc.Router.Models(cmd.Context(), k, name, refresh)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(models))
			for _, m := range models {
				rows = append(rows, []string{m, catalog.ModelName(m)})
			}
			return a.render(cmd.OutOrStdout(), models, []string{"Model", "Name"}, rows)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(catalog.KindChat), "Model kind: chat, tts, image")
	cmd.Flags().StringVar(&name, "provider", "", "Provider (defaults to the configured one for the kind)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Query the provider instead of the built-in list where supported")
	cmd.Flags().BoolVar(&showVoices, "voices", false, "List TTS voices instead of models")
	return cmd
}
