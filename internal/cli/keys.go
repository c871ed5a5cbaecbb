package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yanqian/smart-notes/internal/domain/auth"
	"github.com/yanqian/smart-notes/internal/infra/credentials"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
)

func newKeysCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Store provider API keys in the OS keyring",
	}

	var reveal bool
	get := &cobra.Command{
		Use:   "get <provider>",
		Short: "Print the stored key for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.keys()
			if err != nil {
				return err
			}
			key, err := store.Lookup(cmd.Context(), args[0])
			if errors.Is(err, credentials.ErrNotFound) {
				return apperrors.Wrap(apperrors.CodeNotFound, "no key stored for "+args[0], nil)
			}
			if err != nil {
				return err
			}
			if !reveal {
				key = maskKey(key)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
			return err
		},
	}
	get.Flags().BoolVar(&reveal, "reveal", false, "Print the full key")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <provider> <key>",
			Short: "Store a key",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.keys()
				if err != nil {
					return err
				}
				key := strings.TrimSpace(args[1])
				if key == "" {
					return apperrors.Wrap(apperrors.CodeInvalidInput, "key cannot be empty", nil)
				}
				if err := store.Set(args[0], key); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "stored key for %s\n", args[0])
				return err
			},
		},
		get,
		&cobra.Command{
			Use:   "delete <provider>",
			Short: "Remove a stored key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.keys()
				if err != nil {
					return err
				}
				if err := store.Delete(args[0]); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted key for %s\n", args[0])
				return err
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List providers with a stored key",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				store, err := a.keys()
				if err != nil {
					return err
				}
				providers, err := store.Providers()
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(providers))
				for _, p := range providers {
					rows = append(rows, []string{p})
				}
				return a.render(cmd.OutOrStdout(), providers, []string{"Provider"}, rows)
			},
		},
	)
	return cmd
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func newTokenCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens for the HTTP server",
	}
	var ttl time.Duration
	issue := &cobra.Command{
		Use:   "issue <subject>",
		Short: "Sign a bearer token for a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			if svc.Auth == nil {
				return apperrors.Wrap(apperrors.CodeInvalidInput, "auth secret is not configured (set AUTH_SECRET)", nil)
			}
			issued, err := svc.Auth.Issue(cmd.Context(), auth.IssueRequest{Subject: args[0], TTL: ttl})
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), issued)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), issued.Token)
			return err
		},
	}
	issue.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to auth.tokenTtl)")
	cmd.AddCommand(issue)
	return cmd
}
