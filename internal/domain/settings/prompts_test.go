package settings

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestFieldsForMergesDeckOverGlobal(t *testing.T) {
	t.Parallel()

	var m PromptsMap
	m.Set("Basic", "-1", "Back", "global back", nil)
	m.Set("Basic", "-1", "Audio", "global audio", &FieldExtras{Type: "tts"})
	m.Set("Basic", "42", "Back", "deck back", &FieldExtras{Automatic: ptr(false)})

	got := m.FieldsFor("Basic", "42")
	want := DeckPrompts{
		Fields: map[string]string{"Back": "deck back", "Audio": "global audio"},
		Extras: map[string]*FieldExtras{
			"Back":  {Automatic: ptr(false)},
			"Audio": {Type: "tts"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("merged prompts mismatch (-want +got):\n%s", diff)
	}

	global := m.FieldsFor("Basic", "")
	require.Equal(t, "global back", global.Fields["Back"])
	require.Empty(t, m.FieldsFor("Cloze", "-1").Fields)
}

func TestSetKeepsExtrasWhenNil(t *testing.T) {
	t.Parallel()

	var m PromptsMap
	m.Set("Basic", "-1", "Back", "v1", &FieldExtras{Type: "image"})
	m.Set("Basic", "-1", "Back", "v2", nil)
	got := m.FieldsFor("Basic", "-1")
	require.Equal(t, "v2", got.Fields["Back"])
	require.Equal(t, "image", string(got.Extras["Back"].Kind()))
}

func TestRemovePrunesEmptyEntries(t *testing.T) {
	t.Parallel()

	var m PromptsMap
	m.Set("Basic", "7", "Back", "p", nil)
	require.False(t, m.Remove("Basic", "7", "Front"))
	require.True(t, m.Remove("Basic", "7", "Back"))
	require.NotContains(t, m.NoteTypes, "Basic")
	require.False(t, m.Remove("Basic", "7", "Back"))
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	s := Defaults()
	s.PromptsMap.Set("Basic", "-1", "Back", "p", &FieldExtras{ChatModel: ptr("gpt-5")})
	c := s.Clone()
	c.PromptsMap.Set("Basic", "-1", "Back", "changed", nil)
	*c.PromptsMap.NoteTypes["Basic"]["-1"].Extras["Back"].ChatModel = "gpt-5-nano"

	require.Equal(t, "p", s.PromptsMap.NoteTypes["Basic"]["-1"].Fields["Back"])
	require.Equal(t, "gpt-5", *s.PromptsMap.NoteTypes["Basic"]["-1"].Extras["Back"].ChatModel)
}

func TestFieldExtrasDefaults(t *testing.T) {
	t.Parallel()

	var nilExtras *FieldExtras
	require.True(t, nilExtras.IsAutomatic())
	require.Equal(t, "chat", string(nilExtras.Kind()))
	require.False(t, (&FieldExtras{Automatic: ptr(false)}).IsAutomatic())
}
