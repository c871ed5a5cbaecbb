//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/yanqian/smart-notes/internal/bootstrap"
	"github.com/yanqian/smart-notes/internal/domain/notes"
	"github.com/yanqian/smart-notes/internal/domain/provider"
	"github.com/yanqian/smart-notes/internal/domain/settings"
	"github.com/yanqian/smart-notes/internal/infra/config"
	"github.com/yanqian/smart-notes/internal/infra/settingsstore"
	httpiface "github.com/yanqian/smart-notes/internal/interface/http"
	"github.com/yanqian/smart-notes/pkg/logger"
)

func initializeApp() (*bootstrap.App, error) {
	wire.Build(
		config.Load,
		logger.New,
		provideSettingsStore,
		provideSettingsWatcher,
		provideCredentialSource,
		bootstrap.ProvideRetryPolicy,
		bootstrap.ProvideBackends,
		bootstrap.ProvideResponseCache,
		bootstrap.ProvideRouterOptions,
		bootstrap.ProvideNotesConfig,
		bootstrap.ProvideHistoryRepository,
		bootstrap.ProvideMediaStorage,
		bootstrap.ProvideAuthService,
		settings.NewService,
		provider.NewRouter,
		notes.NewService,
		wire.Bind(new(settings.Store), new(*settingsstore.FileStore)),
		wire.Bind(new(provider.SettingsSource), new(settings.Service)),
		wire.Bind(new(notes.SettingsSource), new(settings.Service)),
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil
}
