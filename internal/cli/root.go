// Package cli implements the smartnotes command line.
package cli

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yanqian/smart-notes/internal/bootstrap"
	"github.com/yanqian/smart-notes/internal/domain/auth"
	"github.com/yanqian/smart-notes/internal/domain/notes"
	"github.com/yanqian/smart-notes/internal/domain/packaging"
	"github.com/yanqian/smart-notes/internal/domain/provider"
	"github.com/yanqian/smart-notes/internal/domain/settings"
	"github.com/yanqian/smart-notes/internal/infra/ankipath"
	"github.com/yanqian/smart-notes/internal/infra/config"
	"github.com/yanqian/smart-notes/internal/infra/credentials"
	"github.com/yanqian/smart-notes/internal/infra/mediastore"
	"github.com/yanqian/smart-notes/internal/infra/settingsstore"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
	"github.com/yanqian/smart-notes/pkg/logger"
)

// Version is set at build time via ldflags.
var Version = "dev"

// KeyStore manages API keys in the OS keyring.
type KeyStore interface {
	credentials.Source
	Set(provider, key string) error
	Delete(provider string) error
	Providers() ([]string, error)
}

// Services are the domain services commands run against.
type Services struct {
	Settings settings.Service
	Router   provider.Router
	Notes    notes.Service
	Keys     KeyStore
	Auth     auth.Service
}

// Deps lets callers replace what the commands would otherwise build from
// configuration.
type Deps struct {
	Stdout io.Writer
	Stderr io.Writer
	// Services, when set, is used instead of services built from config.
	Services *Services
	// Runner executes addon tools. Defaults to an ExecRunner on Stdout/Stderr.
	Runner packaging.Runner
	// AddonsDir locates the host addons folder. Defaults to ankipath.AddonsDir.
	AddonsDir func() (string, error)
}

type globalOptions struct {
	meta     string
	server   string
	token    string
	output   string
	logLevel string
	mediaDir string
	project  string
}

type app struct {
	cfg    *config.Config
	deps   Deps
	opts   globalOptions
	logger *slog.Logger
	svc    *Services
}

// NewRootCommand builds the smartnotes command tree.
func NewRootCommand(cfg *config.Config, deps Deps) *cobra.Command {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.AddonsDir == nil {
		deps.AddonsDir = ankipath.AddonsDir
	}
	a := &app{cfg: cfg, deps: deps, svc: deps.Services}

	root := &cobra.Command{
		Use:           "smartnotes",
		Short:         "Generate smart note fields with AI providers and package the addon",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch a.opts.output {
			case outputTable, outputJSON:
			default:
				return apperrors.Wrap(apperrors.CodeInvalidInput, "--output must be table or json", nil)
			}
			a.logger = logger.NewText(a.deps.Stderr, a.opts.logLevel)
			return nil
		},
	}
	root.SetOut(deps.Stdout)
	root.SetErr(deps.Stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.meta, "meta", cfg.Settings.Path, "Path to the addon meta.json holding user settings")
	flags.StringVar(&a.opts.server, "server", cfg.Remote.ServerURL, "smart-notes server used for providers without a local key")
	flags.StringVar(&a.opts.token, "token", cfg.Remote.Token, "Bearer token for --server")
	flags.StringVarP(&a.opts.output, "output", "o", outputTable, "Output format: table, json")
	flags.StringVar(&a.opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&a.opts.mediaDir, "media-dir", "", "Directory generated audio and images are written to")

	root.AddCommand(
		newChatCommand(a),
		newTTSCommand(a),
		newImageCommand(a),
		newGenerateCommand(a),
		newSettingsCommand(a),
		newModelsCommand(a),
		newKeysCommand(a),
		newTokenCommand(a),
		newAddonCommand(a),
	)
	return root
}

// services builds the domain services from configuration on first use so
// commands such as addon never touch provider setup.
func (a *app) services() (*Services, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	cfg := *a.cfg
	cfg.Settings.Path = a.opts.meta
	cfg.Remote.ServerURL = strings.TrimSpace(a.opts.server)
	cfg.Remote.Token = a.opts.token
	log := a.log()

	settingsSvc := settings.NewService(settingsstore.NewFileStore(cfg.Settings.Path), log)
	source, ring := bootstrap.ProvideCredentials(&cfg, log)
	policy := bootstrap.ProvideRetryPolicy(&cfg, log)
	router := provider.NewRouter(
		settingsSvc,
		source,
		bootstrap.ProvideBackends(&cfg, policy, log),
		bootstrap.ProvideRouterOptions(&cfg, bootstrap.ProvideResponseCache(&cfg, log)),
		log,
	)

	var media notes.MediaStorage
	if a.opts.mediaDir != "" {
		dir, err := mediastore.NewDirStorage(a.opts.mediaDir)
		if err != nil {
			return nil, err
		}
		media = dir
	} else {
		media = bootstrap.ProvideMediaStorage(&cfg, log)
	}
	notesSvc := notes.NewService(
		bootstrap.ProvideNotesConfig(&cfg),
		settingsSvc,
		router,
		media,
		bootstrap.ProvideHistoryRepository(&cfg, log),
		log,
	)

	svc := &Services{
		Settings: settingsSvc,
		Router:   router,
		Notes:    notesSvc,
		Auth:     bootstrap.ProvideAuthService(&cfg, log),
	}
	if ring != nil {
		svc.Keys = ring
	}
	a.svc = svc
	return svc, nil
}

// keys opens the OS keyring even when it is not enabled as a lookup source.
func (a *app) keys() (KeyStore, error) {
	svc, err := a.services()
	if err != nil {
		return nil, err
	}
	if svc.Keys != nil {
		return svc.Keys, nil
	}
	ring, err := credentials.OpenKeyring(a.cfg.Providers.Keyring.ServiceName)
	if err != nil {
		return nil, err
	}
	svc.Keys = ring
	return ring, nil
}

func (a *app) log() *slog.Logger {
	if a.logger == nil {
		a.logger = logger.NewText(a.deps.Stderr, a.opts.logLevel)
	}
	return a.logger
}

// ExitCode maps a command error to the process exit status. Addon tool
// failures keep the tool's own status.
func ExitCode(err error) int {
	return packaging.ExitCode(err)
}
