package settings

import (
	"strings"

	"github.com/yanqian/smart-notes/internal/domain/catalog"
)

// PromptsMap holds smart field prompts per note type and deck. The deck id
// "-1" applies to every deck.
type PromptsMap struct {
	NoteTypes map[string]map[string]DeckPrompts `json:"note_types"`
}

// DeckPrompts are the smart fields configured for one note type and deck.
type DeckPrompts struct {
	Fields map[string]string       `json:"fields"`
	Extras map[string]*FieldExtras `json:"extras,omitempty"`
}

// NormalizeDeckID maps an empty deck id onto the global deck.
func NormalizeDeckID(deckID string) string {
	deckID = strings.TrimSpace(deckID)
	if deckID == "" {
		return catalog.GlobalDeckID
	}
	return deckID
}

// FieldsFor merges the deck specific prompts over the global ones. Deck
// entries win per field.
func (m PromptsMap) FieldsFor(noteType, deckID string) DeckPrompts {
	out := DeckPrompts{Fields: map[string]string{}, Extras: map[string]*FieldExtras{}}
	decks := m.NoteTypes[noteType]
	if decks == nil {
		return out
	}
	merge := func(d DeckPrompts) {
		for field, prompt := range d.Fields {
			out.Fields[field] = prompt
			delete(out.Extras, field)
			if extras, ok := d.Extras[field]; ok && extras != nil {
				out.Extras[field] = extras.clone()
			}
		}
	}
	merge(decks[catalog.GlobalDeckID])
	deckID = NormalizeDeckID(deckID)
	if deckID != catalog.GlobalDeckID {
		merge(decks[deckID])
	}
	return out
}

// Set stores a prompt and its extras. Nil extras keep any existing extras.
func (m *PromptsMap) Set(noteType, deckID, field, prompt string, extras *FieldExtras) {
	deckID = NormalizeDeckID(deckID)
	if m.NoteTypes == nil {
		m.NoteTypes = map[string]map[string]DeckPrompts{}
	}
	decks := m.NoteTypes[noteType]
	if decks == nil {
		decks = map[string]DeckPrompts{}
		m.NoteTypes[noteType] = decks
	}
	d := decks[deckID]
	if d.Fields == nil {
		d.Fields = map[string]string{}
	}
	d.Fields[field] = prompt
	if extras != nil {
		if d.Extras == nil {
			d.Extras = map[string]*FieldExtras{}
		}
		d.Extras[field] = extras.clone()
	}
	decks[deckID] = d
}

// Remove deletes a prompt and reports whether it existed. Empty decks and
// note types are pruned.
func (m *PromptsMap) Remove(noteType, deckID, field string) bool {
	deckID = NormalizeDeckID(deckID)
	decks := m.NoteTypes[noteType]
	if decks == nil {
		return false
	}
	d, ok := decks[deckID]
	if !ok {
		return false
	}
	if _, ok := d.Fields[field]; !ok {
		return false
	}
	delete(d.Fields, field)
	delete(d.Extras, field)
	if len(d.Fields) == 0 {
		delete(decks, deckID)
	} else {
		decks[deckID] = d
	}
	if len(decks) == 0 {
		delete(m.NoteTypes, noteType)
	}
	return true
}

func (m PromptsMap) clone() PromptsMap {
	out := PromptsMap{NoteTypes: make(map[string]map[string]DeckPrompts, len(m.NoteTypes))}
	for noteType, decks := range m.NoteTypes {
		copied := make(map[string]DeckPrompts, len(decks))
		for deckID, d := range decks {
			nd := DeckPrompts{Fields: make(map[string]string, len(d.Fields))}
			for k, v := range d.Fields {
				nd.Fields[k] = v
			}
			if d.Extras != nil {
				nd.Extras = make(map[string]*FieldExtras, len(d.Extras))
				for k, v := range d.Extras {
					nd.Extras[k] = v.clone()
				}
			}
			copied[deckID] = nd
		}
		out.NoteTypes[noteType] = copied
	}
	return out
}
