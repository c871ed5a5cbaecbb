package bootstrap

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/smart-notes/internal/domain/auth"
	"github.com/yanqian/smart-notes/internal/domain/catalog"
	"github.com/yanqian/smart-notes/internal/domain/notes"
	"github.com/yanqian/smart-notes/internal/domain/provider"
	"github.com/yanqian/smart-notes/internal/infra/config"
	"github.com/yanqian/smart-notes/internal/infra/credentials"
	"github.com/yanqian/smart-notes/internal/infra/historyrepo"
	"github.com/yanqian/smart-notes/internal/infra/llm/anthropic"
	"github.com/yanqian/smart-notes/internal/infra/llm/chatgpt"
	"github.com/yanqian/smart-notes/internal/infra/llm/gemini"
	"github.com/yanqian/smart-notes/internal/infra/llm/ollama"
	"github.com/yanqian/smart-notes/internal/infra/llm/replicate"
	"github.com/yanqian/smart-notes/internal/infra/mediastore"
	"github.com/yanqian/smart-notes/internal/infra/remote"
	"github.com/yanqian/smart-notes/internal/infra/responsecache"
	"github.com/yanqian/smart-notes/pkg/metrics"
	"github.com/yanqian/smart-notes/pkg/retry"
)

// ProvideRetryPolicy builds the provider backoff policy with retry logging.
func ProvideRetryPolicy(cfg *config.Config, logger *slog.Logger) retry.Policy {
	log := logger.With("component", "provider.retry")
	return retry.Policy{
		Base:       cfg.Providers.Retry.Base,
		MaxRetries: cfg.Providers.Retry.MaxRetries,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			log.Warn("rate limited, backing off", "attempt", attempt+1, "wait", wait, "error", err)
		},
	}
}

// ProvideCredentials chains the configured keys with the OS keyring when it
// is enabled. The keyring is nil when disabled or unavailable.
func ProvideCredentials(cfg *config.Config, logger *slog.Logger) (credentials.Source, *credentials.Keyring) {
	static := credentials.Static{
		catalog.ProviderOpenAI:    cfg.Providers.OpenAI.APIKey,
		catalog.ProviderDeepSeek:  cfg.Providers.DeepSeek.APIKey,
		catalog.ProviderAnthropic: cfg.Providers.Anthropic.APIKey,
		catalog.ProviderGoogle:    cfg.Providers.Google.APIKey,
		catalog.ProviderReplicate: cfg.Providers.Replicate.APIKey,
	}
	chain := credentials.Chain{static}
	if !cfg.Providers.Keyring.Enabled {
		return chain, nil
	}
	ring, err := credentials.OpenKeyring(cfg.Providers.Keyring.ServiceName)
	if err != nil {
		logger.Error("keyring unavailable, using configured keys only", "error", err)
		return chain, nil
	}
	logger.Info("keyring credentials enabled", "service", cfg.Providers.Keyring.ServiceName)
	return append(chain, ring), ring
}

// ProvideBackends constructs every provider client. Keys are supplied per
// request by the router, so clients are built without one.
func ProvideBackends(cfg *config.Config, policy retry.Policy, logger *slog.Logger) provider.Backends {
	timeouts := cfg.Providers.Timeouts

	openai := chatgpt.NewClient(chatgpt.Options{
		Name:    catalog.ProviderOpenAI,
		BaseURL: cfg.Providers.OpenAI.BaseURL,
		Timeout: timeouts.Chat,
		Retry:   policy,
	}, logger)
	deepseek := chatgpt.NewClient(chatgpt.Options{
		Name:    catalog.ProviderDeepSeek,
		BaseURL: cfg.Providers.DeepSeek.BaseURL,
		Timeout: timeouts.Chat,
		Retry:   policy,
	}, logger)
	claude := anthropic.NewClient(anthropic.Options{
		BaseURL: cfg.Providers.Anthropic.BaseURL,
		Retry:   policy,
	}, logger)
	google := gemini.NewClient(gemini.Options{
		BaseURL: cfg.Providers.Google.BaseURL,
		Retry:   policy,
	}, logger)
	images := replicate.NewClient(replicate.Options{
		BaseURL: cfg.Providers.Replicate.BaseURL,
		Timeout: timeouts.Image,
		Retry:   policy,
	}, logger)

	backends := provider.Backends{
		Ollama: ollama.NewClient(timeouts.Ollama, policy, logger),
		Chat: map[string]provider.ChatBackend{
			catalog.ProviderOpenAI:    openai,
			catalog.ProviderDeepSeek:  deepseek,
			catalog.ProviderAnthropic: claude,
		},
		Speech: map[string]provider.SpeechBackend{
			catalog.ProviderOpenAI: openai,
			catalog.ProviderGoogle: google,
		},
		Image: map[string]provider.ImageBackend{
			catalog.ProviderReplicate: images,
		},
	}
	if server := strings.TrimSpace(cfg.Remote.ServerURL); server != "" {
		backends.Remote = remote.NewClient(server, cfg.Remote.Token, timeouts.Chat, logger)
		logger.Info("remote backend enabled", "server", server)
	}
	return backends
}

// ProvideResponseCache returns a Valkey backed cache when configured, falling
// back to process memory. It returns nil when caching is disabled.
func ProvideResponseCache(cfg *config.Config, logger *slog.Logger) provider.ResponseCache {
	if !cfg.Cache.Enabled {
		return nil
	}
	addr := strings.TrimSpace(cfg.Cache.Valkey.Addr)
	if addr == "" {
		logger.Info("chat cache enabled in memory")
		return responsecache.NewMemoryStore()
	}
	opt, err := buildValkeyOptions(addr)
	if err != nil {
		logger.Error("invalid valkey configuration, falling back to memory cache", "error", err)
		return responsecache.NewMemoryStore()
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		logger.Error("failed to create valkey client, falling back to memory cache", "error", err)
		return responsecache.NewMemoryStore()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		logger.Error("valkey ping failed, falling back to memory cache", "error", err)
		client.Close()
		return responsecache.NewMemoryStore()
	}
	logger.Info("chat cache valkey store enabled", "addr", addr)
	return responsecache.NewValkeyStore(client, "")
}

func buildValkeyOptions(addr string) (valkey.ClientOption, error) {
	if strings.Contains(addr, "://") {
		return valkey.ParseURL(addr)
	}
	return valkey.ClientOption{InitAddress: []string{addr}}, nil
}

// ProvideRouterOptions maps configuration onto router tuning.
func ProvideRouterOptions(cfg *config.Config, cache provider.ResponseCache) provider.Options {
	t := cfg.Providers.Timeouts
	return provider.Options{
		Timeouts: provider.Timeouts{Chat: t.Chat, TTS: t.TTS, Image: t.Image, Ollama: t.Ollama},
		Cache:    cache,
		CacheTTL: cfg.Cache.TTL,
		Counter:  metrics.NewTiktokenCounter(),
	}
}

// ProvideNotesConfig maps configuration onto generation tuning.
func ProvideNotesConfig(cfg *config.Config) notes.Config {
	return notes.Config{BatchLimit: cfg.Generation.BatchLimit}
}

// ProvideHistoryRepository connects to Postgres when a DSN is configured and
// falls back to memory otherwise.
func ProvideHistoryRepository(cfg *config.Config, logger *slog.Logger) notes.HistoryRepository {
	fallback := historyrepo.NewMemoryRepository()
	dsn := strings.TrimSpace(cfg.History.Postgres.DSN)
	if dsn == "" {
		logger.Info("history postgres dsn not set, using memory repository")
		return fallback
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Error("invalid postgres dsn, using memory repository", "error", err)
		return fallback
	}
	if cfg.History.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.History.Postgres.MaxConns
	}
	if cfg.History.Postgres.MinConns > 0 {
		poolConfig.MinConns = cfg.History.Postgres.MinConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("failed to initialize postgres pool, using memory repository", "error", err)
		return fallback
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed, using memory repository", "error", err)
		pool.Close()
		return fallback
	}
	repo := historyrepo.NewPostgresRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		logger.Error("history migration failed, using memory repository", "error", err)
		pool.Close()
		return fallback
	}
	logger.Info("history postgres repository enabled")
	return repo
}

// ProvideMediaStorage uses the configured S3 bucket, or memory when none is set.
func ProvideMediaStorage(cfg *config.Config, logger *slog.Logger) notes.MediaStorage {
	s3cfg := cfg.Media.S3
	if !s3cfg.Enabled() {
		logger.Info("media bucket not configured, using memory storage")
		return mediastore.NewMemoryStorage()
	}
	store, err := mediastore.NewS3Storage(s3cfg.Endpoint, s3cfg.AccessKey, s3cfg.SecretKey, s3cfg.Bucket, s3cfg.Region, logger)
	if err != nil {
		logger.Error("failed to initialize media bucket, using memory storage", "error", err)
		return mediastore.NewMemoryStorage()
	}
	logger.Info("media s3 storage enabled", "bucket", s3cfg.Bucket)
	return store
}

// ProvideAuthService returns nil when no signing secret is configured.
func ProvideAuthService(cfg *config.Config, logger *slog.Logger) auth.Service {
	authCfg := auth.Config{Secret: cfg.Auth.Secret, TokenTTL: cfg.Auth.TokenTTL}
	if !authCfg.Enabled() {
		logger.Warn("auth secret not set, api is unauthenticated")
		return nil
	}
	return auth.NewService(authCfg, logger)
}
