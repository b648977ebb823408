// Package webmd converts reply Markdown into HTML for the web client.
//
// Replies arrive as standard Markdown (including GFM tables and
// strikethrough). The renderer keeps goldmark's default policy of
// omitting raw HTML, so model output cannot inject markup, and opens
// links in a new tab so the chat view is never navigated away.
package webmd

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// Render converts Markdown into sanitized HTML.
func Render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("webmd: render: %w", err)
	}
	return retargetLinks(buf.String()), nil
}

// retargetLinks makes every anchor open in a new tab. Raw HTML is
// omitted during conversion, so the only `<a href=` in the output is
// goldmark's own link rendering.
func retargetLinks(s string) string {
	return strings.ReplaceAll(s, "<a href=", `<a target="_blank" rel="noopener noreferrer" href=`)
}
