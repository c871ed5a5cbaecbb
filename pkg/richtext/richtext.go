// Package richtext converts between the markdown returned by chat models and
// the HTML stored in note fields.
package richtext

import (
	"bytes"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var (
	markdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
	)
	strict = bluemonday.StrictPolicy()
	ugc    = bluemonday.UGCPolicy()
)

// MarkdownToHTML renders markdown to sanitized HTML. A single paragraph is
// unwrapped so short answers stay inline in the field.
func MarkdownToHTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	out := strings.TrimSpace(ugc.Sanitize(buf.String()))
	if strings.HasPrefix(out, "<p>") && strings.HasSuffix(out, "</p>") && strings.Count(out, "<p>") == 1 {
		out = strings.TrimSuffix(strings.TrimPrefix(out, "<p>"), "</p>")
	}
	return out, nil
}

// StripHTML removes every tag and returns plain text suitable for speech.
func StripHTML(src string) string {
	withBreaks := strings.NewReplacer("<br>", " ", "<br/>", " ", "<br />", " ").Replace(src)
	text := html.UnescapeString(strict.Sanitize(withBreaks))
	return strings.Join(strings.Fields(text), " ")
}
