package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration used across the service and CLI.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Settings   SettingsConfig   `yaml:"settings"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Cache      CacheConfig      `yaml:"cache"`
	History    HistoryConfig    `yaml:"history"`
	Media      MediaConfig      `yaml:"media"`
	Auth       AuthConfig       `yaml:"auth"`
	Generation GenerationConfig `yaml:"generation"`
	Remote     RemoteConfig     `yaml:"remote"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address        string          `yaml:"address"`
	ReadTimeout    time.Duration   `yaml:"readTimeout"`
	WriteTimeout   time.Duration   `yaml:"writeTimeout"`
	AllowedOrigins []string        `yaml:"allowedOrigins"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
	Retry          RetryConfig     `yaml:"retry"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// RetryConfig configures best-effort retries for idempotent requests.
type RetryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseBackoff time.Duration `yaml:"baseBackoff"`
	Exclude     []string      `yaml:"exclude"`
}

// SettingsConfig locates the addon's meta.json.
type SettingsConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// ProvidersConfig holds service-wide credentials and client tuning. Keys set
// in meta.json take precedence over these.
type ProvidersConfig struct {
	OpenAI    EndpointConfig `yaml:"openai"`
	DeepSeek  EndpointConfig `yaml:"deepseek"`
	Anthropic EndpointConfig `yaml:"anthropic"`
	Google    EndpointConfig `yaml:"google"`
	Replicate EndpointConfig `yaml:"replicate"`
	Ollama    OllamaConfig   `yaml:"ollama"`
	Timeouts  TimeoutConfig  `yaml:"timeouts"`
	Retry     BackoffConfig  `yaml:"retry"`
	Keyring   KeyringConfig  `yaml:"keyring"`
}

// EndpointConfig is an API key plus an optional base URL override.
type EndpointConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseUrl"`
}

// OllamaConfig configures the local model server.
type OllamaConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// TimeoutConfig bounds each kind of provider call.
type TimeoutConfig struct {
	Chat   time.Duration `yaml:"chat"`
	TTS    time.Duration `yaml:"tts"`
	Image  time.Duration `yaml:"image"`
	Ollama time.Duration `yaml:"ollama"`
}

// BackoffConfig drives retries against rate limited provider APIs.
type BackoffConfig struct {
	Base       time.Duration `yaml:"base"`
	MaxRetries int           `yaml:"maxRetries"`
}

// KeyringConfig enables the OS keyring as a credential source.
type KeyringConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"serviceName"`
}

// CacheConfig controls the chat response cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
	Valkey  ValkeyConfig  `yaml:"valkey"`
}

// ValkeyConfig contains connection information for cache storage.
type ValkeyConfig struct {
	Addr string `yaml:"addr"`
}

// HistoryConfig configures generation history persistence.
type HistoryConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// MediaConfig configures storage for generated audio and images.
type MediaConfig struct {
	S3 S3Config `yaml:"s3"`
}

// S3Config describes an S3 compatible bucket.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
}

// Enabled reports whether enough is configured to reach a bucket.
func (c S3Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != "" && strings.TrimSpace(c.Bucket) != ""
}

// AuthConfig controls API token issuance.
type AuthConfig struct {
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"tokenTtl"`
}

// Enabled reports whether API requests must carry a token.
func (c AuthConfig) Enabled() bool {
	return strings.TrimSpace(c.Secret) != ""
}

// GenerationConfig controls note generation.
type GenerationConfig struct {
	BatchLimit int `yaml:"batchLimit"`
}

// RemoteConfig points the CLI at a running smart-notes server.
type RemoteConfig struct {
	ServerURL string `yaml:"serverUrl"`
	Token     string `yaml:"token"`
}

// Load reads configuration from a YAML file and environment variables. A .env
// file in the working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "1" || strings.EqualFold(v, "true")
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				*dst = parsed
			}
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if parsed, err := time.ParseDuration(v); err == nil {
				*dst = parsed
			}
		}
	}

	setString("HTTP_ADDRESS", &cfg.HTTP.Address)
	if v := os.Getenv("HTTP_ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = splitList(v)
	}
	setBool("HTTP_RATE_LIMIT_ENABLED", &cfg.HTTP.RateLimit.Enabled)
	setInt("HTTP_RATE_LIMIT_RPM", &cfg.HTTP.RateLimit.RequestsPerMinute)
	setInt("HTTP_RATE_LIMIT_BURST", &cfg.HTTP.RateLimit.Burst)
	setBool("HTTP_RETRY_ENABLED", &cfg.HTTP.Retry.Enabled)
	setInt("HTTP_RETRY_MAX_ATTEMPTS", &cfg.HTTP.Retry.MaxAttempts)
	setDuration("HTTP_RETRY_BASE_BACKOFF", &cfg.HTTP.Retry.BaseBackoff)

	setString("SETTINGS_PATH", &cfg.Settings.Path)
	setBool("SETTINGS_WATCH", &cfg.Settings.Watch)

	setString("OPENAI_API_KEY", &cfg.Providers.OpenAI.APIKey)
	setString("OPENAI_BASE_URL", &cfg.Providers.OpenAI.BaseURL)
	setString("DEEPSEEK_API_KEY", &cfg.Providers.DeepSeek.APIKey)
	setString("DEEPSEEK_BASE_URL", &cfg.Providers.DeepSeek.BaseURL)
	setString("ANTHROPIC_API_KEY", &cfg.Providers.Anthropic.APIKey)
	setString("ANTHROPIC_BASE_URL", &cfg.Providers.Anthropic.BaseURL)
	setString("GOOGLE_API_KEY", &cfg.Providers.Google.APIKey)
	setString("REPLICATE_API_TOKEN", &cfg.Providers.Replicate.APIKey)
	setString("REPLICATE_BASE_URL", &cfg.Providers.Replicate.BaseURL)
	setString("OLLAMA_ENDPOINT", &cfg.Providers.Ollama.Endpoint)
	setDuration("PROVIDER_RETRY_BASE", &cfg.Providers.Retry.Base)
	setInt("PROVIDER_MAX_RETRIES", &cfg.Providers.Retry.MaxRetries)
	setBool("KEYRING_ENABLED", &cfg.Providers.Keyring.Enabled)

	setBool("CACHE_ENABLED", &cfg.Cache.Enabled)
	setString("CACHE_VALKEY_ADDR", &cfg.Cache.Valkey.Addr)
	setDuration("CACHE_TTL", &cfg.Cache.TTL)

	setString("HISTORY_POSTGRES_DSN", &cfg.History.Postgres.DSN)
	if v := os.Getenv("HISTORY_POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.History.Postgres.MaxConns = int32(parsed)
		}
	}

	setString("MEDIA_S3_ENDPOINT", &cfg.Media.S3.Endpoint)
	setString("MEDIA_S3_ACCESS_KEY", &cfg.Media.S3.AccessKey)
	setString("MEDIA_S3_SECRET_KEY", &cfg.Media.S3.SecretKey)
	setString("MEDIA_S3_BUCKET", &cfg.Media.S3.Bucket)
	setString("MEDIA_S3_REGION", &cfg.Media.S3.Region)

	setString("AUTH_SECRET", &cfg.Auth.Secret)
	setDuration("AUTH_TOKEN_TTL", &cfg.Auth.TokenTTL)

	setInt("GENERATION_BATCH_LIMIT", &cfg.Generation.BatchLimit)

	setString("SMART_NOTES_SERVER", &cfg.Remote.ServerURL)
	setString("SMART_NOTES_TOKEN", &cfg.Remote.Token)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Default returns the configuration used when no file or environment is set.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 3 * time.Minute,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				Burst:             20,
			},
			Retry: RetryConfig{
				Enabled:     true,
				MaxAttempts: 3,
				BaseBackoff: 150 * time.Millisecond,
				Exclude: []string{
					"/api/v1/notes/generate",
					"/api/v1/notes/generate-batch",
					"/api/v1/chat/stream",
				},
			},
		},
		Settings: SettingsConfig{
			Path:  "meta.json",
			Watch: true,
		},
		Providers: ProvidersConfig{
			OpenAI:    EndpointConfig{BaseURL: "https://api.openai.com/v1"},
			DeepSeek:  EndpointConfig{BaseURL: "https://api.deepseek.com/v1"},
			Replicate: EndpointConfig{BaseURL: "https://api.replicate.com/v1"},
			Ollama:    OllamaConfig{},
			Timeouts: TimeoutConfig{
				Chat:   60 * time.Second,
				TTS:    30 * time.Second,
				Image:  45 * time.Second,
				Ollama: 180 * time.Second,
			},
			Retry: BackoffConfig{
				Base:       5 * time.Second,
				MaxRetries: 10,
			},
			Keyring: KeyringConfig{
				Enabled:     false,
				ServiceName: "smart-notes",
			},
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     24 * time.Hour,
		},
		History: HistoryConfig{
			Postgres: PostgresConfig{
				MaxConns: 4,
				MinConns: 0,
			},
		},
		Media: MediaConfig{
			S3: S3Config{Region: "auto", Bucket: "smart-notes-media"},
		},
		Auth: AuthConfig{
			TokenTTL: 30 * 24 * time.Hour,
		},
		Generation: GenerationConfig{
			BatchLimit: 10,
		},
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if strings.TrimSpace(c.Settings.Path) == "" {
		return errors.New("settings.path cannot be empty")
	}
	if c.Providers.Ollama.Endpoint != "" {
		if err := validateURL(c.Providers.Ollama.Endpoint); err != nil {
			return fmt.Errorf("providers.ollama.endpoint: %w", err)
		}
	}
	t := c.Providers.Timeouts
	if t.Chat <= 0 || t.TTS <= 0 || t.Image <= 0 || t.Ollama <= 0 {
		return errors.New("providers.timeouts must be positive")
	}
	if c.Providers.Retry.Base < 0 {
		return errors.New("providers.retry.base cannot be negative")
	}
	if c.Providers.Retry.MaxRetries < 0 {
		return errors.New("providers.retry.maxRetries cannot be negative")
	}
	if c.Providers.Keyring.Enabled && strings.TrimSpace(c.Providers.Keyring.ServiceName) == "" {
		return errors.New("providers.keyring.serviceName cannot be empty when keyring is enabled")
	}
	if c.Cache.TTL < 0 {
		return errors.New("cache.ttl cannot be negative")
	}
	if c.Cache.Enabled && c.Cache.TTL == 0 {
		return errors.New("cache.ttl must be positive when the cache is enabled")
	}
	if c.Auth.Enabled() && c.Auth.TokenTTL <= 0 {
		return errors.New("auth.tokenTtl must be positive")
	}
	if c.Generation.BatchLimit <= 0 {
		return errors.New("generation.batchLimit must be positive")
	}
	if c.Remote.ServerURL != "" {
		if err := validateURL(c.Remote.ServerURL); err != nil {
			return fmt.Errorf("remote.serverUrl: %w", err)
		}
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
	}
	if c.HTTP.Retry.Enabled {
		if c.HTTP.Retry.MaxAttempts <= 0 {
			return errors.New("http.retry.maxAttempts must be positive")
		}
		if c.HTTP.Retry.BaseBackoff <= 0 {
			return errors.New("http.retry.baseBackoff must be positive")
		}
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
