package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yanqian/smart-notes/internal/domain/provider"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
)

func newChatCommand(a *app) *cobra.Command {
	var (
		req         provider.ChatRequest
		temperature float64
		stream      bool
	)
	cmd := &cobra.Command{
		Use:   "chat <prompt>",
		Short: "Send one prompt to the configured chat provider",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			req.Prompt = strings.Join(args, " ")
			if cmd.Flags().Changed("temperature") {
				req.Temperature = &temperature
			}
			out := cmd.OutOrStdout()

			if stream && !a.jsonOutput() {
				_, err := svc.Router.RespondStream(cmd.Context(), req, func(delta string) error {
					_, err := io.WriteString(out, delta)
					return err
				})
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out)
				return err
			}

			resp, err := svc.Router.Respond(cmd.Context(), req)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return writeJSON(out, resp)
			}
			_, err = fmt.Fprintln(out, resp.Message)
			return err
		},
	}
	cmd.Flags().StringVar(&req.Provider, "provider", "", "Chat provider (defaults to settings)")
	cmd.Flags().StringVar(&req.Model, "model", "", "Chat model (defaults to settings)")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Sampling temperature (defaults to settings)")
	cmd.Flags().BoolVar(&stream, "stream", false, "Print the reply as it is generated")
	return cmd
}

func newTTSCommand(a *app) *cobra.Command {
	var (
		req     provider.TTSRequest
		strip   bool
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "tts <text>",
		Short: "Synthesize speech and write the audio to a file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			req.Input = strings.Join(args, " ")
			if cmd.Flags().Changed("strip-html") {
				req.StripHTML = &strip
			}
			audio, err := svc.Router.Speak(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.writeMedia(cmd.OutOrStdout(), outPath, audio)
		},
	}
	cmd.Flags().StringVar(&req.Provider, "provider", "", "TTS provider (defaults to settings)")
	cmd.Flags().StringVar(&req.Model, "model", "", "TTS model (defaults to settings)")
	cmd.Flags().StringVar(&req.Voice, "voice", "", "Voice (defaults to settings)")
	cmd.Flags().BoolVar(&strip, "strip-html", true, "Remove HTML markup before speaking (defaults to settings)")
	cmd.Flags().StringVar(&outPath, "out", "", "File to write the audio to")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newImageCommand(a *app) *cobra.Command {
	var (
		req     provider.ImageRequest
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "image <prompt>",
		Short: "Generate an image and write it to a file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			req.Prompt = strings.Join(args, " ")
			img, err := svc.Router.Generate(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.writeMedia(cmd.OutOrStdout(), outPath, img)
		},
	}
	cmd.Flags().StringVar(&req.Provider, "provider", "", "Image provider (defaults to settings)")
	cmd.Flags().StringVar(&req.Model, "model", "", "Image model (defaults to settings)")
	cmd.Flags().StringVar(&outPath, "out", "", "File to write the image to")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func (a *app) writeMedia(w io.Writer, path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperrors.Wrap(apperrors.CodeStorage, "failed to write "+path, err)
	}
	if a.jsonOutput() {
		return writeJSON(w, map[string]any{"path": path, "bytes": len(data)})
	}
	_, err := fmt.Fprintf(w, "wrote %d bytes to %s\n", len(data), path)
	return err
}
