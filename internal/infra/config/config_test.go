package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 60*time.Second, cfg.Providers.Timeouts.Chat)
	require.Equal(t, 30*time.Second, cfg.Providers.Timeouts.TTS)
	require.Equal(t, 45*time.Second, cfg.Providers.Timeouts.Image)
	require.Equal(t, 180*time.Second, cfg.Providers.Timeouts.Ollama)
	require.Equal(t, 5*time.Second, cfg.Providers.Retry.Base)
	require.Equal(t, 10, cfg.Providers.Retry.MaxRetries)
	require.Equal(t, 10, cfg.Generation.BatchLimit)
	require.False(t, cfg.Auth.Enabled())
}

func TestLoadAppliesFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  address: ":9090"
settings:
  path: /tmp/meta.json
providers:
  openai:
    apiKey: from-file
generation:
  batchLimit: 4
`), 0o644))

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTP.Address)
	require.Equal(t, "/tmp/meta.json", cfg.Settings.Path)
	require.Equal(t, "from-env", cfg.Providers.OpenAI.APIKey)
	require.Equal(t, 90*time.Second, cfg.Cache.TTL)
	require.Equal(t, 4, cfg.Generation.BatchLimit)
	require.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.HTTP.AllowedOrigins)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty address", mutate: func(c *Config) { c.HTTP.Address = "" }},
		{name: "bad ollama endpoint", mutate: func(c *Config) { c.Providers.Ollama.Endpoint = "localhost:11434" }},
		{name: "zero batch limit", mutate: func(c *Config) { c.Generation.BatchLimit = 0 }},
		{name: "negative retries", mutate: func(c *Config) { c.Providers.Retry.MaxRetries = -1 }},
		{name: "auth without ttl", mutate: func(c *Config) { c.Auth.Secret = "s"; c.Auth.TokenTTL = 0 }},
		{name: "remote without scheme", mutate: func(c *Config) { c.Remote.ServerURL = "example.com" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
