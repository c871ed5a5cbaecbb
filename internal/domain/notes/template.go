package notes

import (
	"regexp"
	"strings"

	"github.com/yanqian/smart-notes/pkg/richtext"
)

var referencePattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// ExtractReferences returns the {{Field}} names used by prompt in order of
// first use. Names are trimmed and de-duplicated case-insensitively.
func ExtractReferences(prompt string) []string {
	matches := referencePattern.FindAllStringSubmatch(prompt, -1)
	seen := make(map[string]struct{}, len(matches))
	var refs []string
	for _, m := range matches {
		name := strings.TrimSpace(m[1])
		key := strings.ToLower(name)
		if name == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		refs = append(refs, name)
	}
	return refs
}

// Interpolate substitutes field values into prompt. Field names match
// case-insensitively. missing lists references whose field is absent or has
// no visible text; they are replaced with whatever the field holds.
func Interpolate(prompt string, fields map[string]string) (string, []string) {
	lookup := fieldLookup(fields)
	var missing []string
	reported := make(map[string]struct{})
	out := referencePattern.ReplaceAllStringFunc(prompt, func(match string) string {
		name := strings.TrimSpace(referencePattern.FindStringSubmatch(match)[1])
		key := strings.ToLower(name)
		value, ok := lookup[key]
		if !ok || strings.TrimSpace(richtext.StripHTML(value)) == "" {
			if _, done := reported[key]; !done {
				reported[key] = struct{}{}
				missing = append(missing, name)
			}
		}
		return value
	})
	return out, missing
}

func fieldLookup(fields map[string]string) map[string]string {
	lookup := make(map[string]string, len(fields))
	for name, value := range fields {
		lookup[strings.ToLower(name)] = value
	}
	return lookup
}
