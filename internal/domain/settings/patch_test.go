package settings

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAssignment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		key   string
		value string
		check func(t *testing.T, s Settings)
	}{
		{name: "string", key: "chat_model", value: "gpt-5", check: func(t *testing.T, s Settings) {
			require.Equal(t, "gpt-5", s.ChatModel)
		}},
		{name: "numeric looking string", key: "tts_voice", value: "42", check: func(t *testing.T, s Settings) {
			require.Equal(t, "42", s.TTSVoice)
		}},
		{name: "float", key: "chat_temperature", value: "0.3", check: func(t *testing.T, s Settings) {
			require.Equal(t, 0.3, s.ChatTemperature)
		}},
		{name: "bool", key: "allow_empty_fields", value: "true", check: func(t *testing.T, s Settings) {
			require.True(t, s.AllowEmptyFields)
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := ParseAssignment(tt.key, tt.value)
			require.NoError(t, err)
			tt.check(t, p.Apply(Defaults()))
		})
	}
}

func TestParseAssignmentRejects(t *testing.T) {
	t.Parallel()

	_, err := ParseAssignment("nope", "1")
	require.Error(t, err)
	_, err = ParseAssignment("prompts_map", "{}")
	require.Error(t, err)
	_, err = ParseAssignment("debug", "maybe")
	require.Error(t, err)
}
