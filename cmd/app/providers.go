package main

import (
	"log/slog"

	"github.com/yanqian/smart-notes/internal/bootstrap"
	"github.com/yanqian/smart-notes/internal/domain/settings"
	"github.com/yanqian/smart-notes/internal/infra/config"
	"github.com/yanqian/smart-notes/internal/infra/credentials"
	"github.com/yanqian/smart-notes/internal/infra/settingsstore"
)

func provideSettingsStore(cfg *config.Config) *settingsstore.FileStore {
	return settingsstore.NewFileStore(cfg.Settings.Path)
}

func provideSettingsWatcher(cfg *config.Config, svc settings.Service, logger *slog.Logger) *settingsstore.Watcher {
	if !cfg.Settings.Watch {
		return nil
	}
	return settingsstore.NewWatcher(cfg.Settings.Path, svc, logger)
}

func provideCredentialSource(cfg *config.Config, logger *slog.Logger) credentials.Source {
	source, _ := bootstrap.ProvideCredentials(cfg, logger)
	return source
}
