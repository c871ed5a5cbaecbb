package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProviders(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"openai", "anthropic", "deepseek", "ollama"}, Providers(KindChat))
	require.True(t, IsProvider(KindTTS, "elevenlabs"))
	require.False(t, IsProvider(KindImage, "openai"))
	require.Nil(t, Providers(Kind("video")))
}

func TestModelsFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		provider   string
		discovered []string
		want       []string
	}{
		{name: "ollama discovered", provider: "ollama", discovered: []string{"mistral:7b"}, want: []string{"mistral:7b"}},
		{name: "ollama fallback", provider: "ollama", want: chatModels[ProviderOllama]},
		{name: "deepseek ignores discovery", provider: "deepseek", discovered: []string{"x"}, want: []string{"deepseek-v3"}},
		{name: "unknown", provider: "nope", want: nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ModelsFor(tt.provider, tt.discovered)
			if tt.want == nil {
				require.Empty(t, got)
				return
			}
			require.Equal(t, tt.want, got)
		})
	}
}

func TestModelsReturnsCopy(t *testing.T) {
	t.Parallel()

	got := Models(KindChat, ProviderOpenAI)
	got[0] = "mutated"
	require.Equal(t, "gpt-5-mini", Models(KindChat, ProviderOpenAI)[0])
}

func TestResolveModel(t *testing.T) {
	t.Parallel()

	models := []string{"claude-opus-4-1", "claude-sonnet-4-0"}
	require.Equal(t, "claude-sonnet-4-0", ResolveModel("claude-sonnet-4-0", models))
	require.Equal(t, "claude-opus-4-1", ResolveModel("gpt-4o-mini", models))
	require.Equal(t, "gpt-4o-mini", ResolveModel("gpt-4o-mini", nil))
}

func TestDisplayNames(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Ollama (Local)", ProviderName("ollama"))
	require.Equal(t, "GPT-4o Mini (0.3x cost)", ModelName("gpt-4o-mini"))
	require.Equal(t, "my-model", ModelName("my-model"))
}

func TestReplicateModel(t *testing.T) {
	t.Parallel()

	require.Equal(t, "black-forest-labs/flux-dev", ReplicateModel("flux-dev"))
	require.Equal(t, "black-forest-labs/flux-schnell", ReplicateModel("flux-schnell"))
	require.Equal(t, "black-forest-labs/flux-schnell", ReplicateModel("sdxl"))
}
