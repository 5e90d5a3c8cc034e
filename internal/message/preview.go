package message

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var previewPolicy = bluemonday.StrictPolicy()

// Preview renders the conversation-list snippet of a message. Media messages use
// fixed labels; text is stripped of markup, whitespace-collapsed and truncated.
func Preview(kind, text string, limits Limits) string {
	switch kind {
	case KindImage:
		return limits.ImageLabel
	case KindFile:
		return limits.FileLabel
	}
	plain := html.UnescapeString(previewPolicy.Sanitize(text))
	plain = strings.Join(strings.Fields(plain), " ")
	max := limits.PreviewRunes
	if max <= 0 || utf8.RuneCountInString(plain) <= max {
		return plain
	}
	runes := []rune(plain)
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}
