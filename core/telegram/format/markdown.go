// Package format escapes user-supplied text for Telegram parse modes.
package format

import (
	"fmt"
	"html"
	"strings"
)

const (
	// MarkdownV1 denotes Telegram markdown version 1.
	MarkdownV1 = 1
	// MarkdownV2 denotes Telegram markdown version 2.
	MarkdownV2 = 2
)

const (
	mdV1Specials = "_*`["
	mdV2Specials = "_*[]()~`>#+-=|{}.!\\"
)

// EscapeMarkdown escapes special characters for MarkdownV1 or V2.
func EscapeMarkdown(text string, version int) (string, error) {
	switch version {
	case MarkdownV1:
		return escapeSet(text, mdV1Specials), nil
	case MarkdownV2:
		return escapeSet(text, mdV2Specials), nil
	}
	return "", fmt.Errorf("unsupported markdown version: %d", version)
}

// MarkdownV2Text escapes text for MarkdownV2.
func MarkdownV2Text(text string) string {
	return escapeSet(text, mdV2Specials)
}

// HTML escapes text for the HTML parse mode.
func HTML(text string) string {
	return html.EscapeString(text)
}

func escapeSet(text, specials string) string {
	var b strings.Builder
	b.Grow(len(text) + 8)
	for _, r := range text {
		if strings.ContainsRune(specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
