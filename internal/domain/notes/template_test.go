package notes

import (
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/smart-notes/pkg/errors"
)

func TestExtractReferences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prompt string
		want   []string
	}{
		{name: "none", prompt: "Say hi", want: nil},
		{name: "single", prompt: "Define {{Front}}", want: []string{"Front"}},
		{name: "trimmed and deduped", prompt: "{{ Front }} vs {{front}} and {{Back}}", want: []string{"Front", "Back"}},
		{name: "ignores empty", prompt: "{{ }} {{Word}}", want: []string{"Word"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, ExtractReferences(tt.prompt))
		})
	}
}

func TestInterpolate(t *testing.T) {
	t.Parallel()

	fields := map[string]string{"Front": "chat", "Back": "<br>", "Notes": ""}
	out, missing := Interpolate("Translate {{front}} using {{Back}} and {{Extra}} {{Notes}} {{Back}}", fields)
	require.Equal(t, "Translate chat using <br> and   <br>", out)
	require.Equal(t, []string{"Back", "Extra", "Notes"}, missing)

	out, missing = Interpolate("No references", fields)
	require.Equal(t, "No references", out)
	require.Empty(t, missing)
}

func TestOrderFields(t *testing.T) {
	t.Parallel()

	targets := map[string]string{
		"Example":     "Write a sentence using {{Translation}}",
		"Translation": "Translate {{Front}}",
		"Audio":       "{{Example}}",
		"Mnemonic":    "Mnemonic for {{Front}}",
	}
	order, err := OrderFields(targets, []string{"Front", "Audio", "Example", "Translation", "Mnemonic"})
	require.NoError(t, err)
	require.Equal(t, []string{"Translation", "Example", "Audio", "Mnemonic"}, order)
}

func TestOrderFieldsUnknownOrderFallsBackToName(t *testing.T) {
	t.Parallel()

	order, err := OrderFields(map[string]string{"b": "x", "a": "y", "c": "{{a}}"}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestOrderFieldsCycle(t *testing.T) {
	t.Parallel()

	_, err := OrderFields(map[string]string{
		"A":    "{{B}}",
		"B":    "{{a}}",
		"Self": "{{Self}} is fine",
	}, []string{"A", "B", "Self"})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, apperrors.CodeCycleDetected))
	require.Contains(t, err.Error(), "A, B")
}
