// internal/app/system/htmlsanitize/htmlsanitize.go
//
// Package htmlsanitize turns user-supplied text into values that are safe to
// store and to render. Free-text fields such as invitation messages are kept
// as plain text: all markup is stripped on the way in.
package htmlsanitize

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// strict removes every element and attribute. It is safe for concurrent use.
var strict = bluemonday.StrictPolicy()

// PlainText strips all markup from s, decodes the entities the sanitizer
// leaves behind and trims surrounding whitespace. When maxRunes > 0 the
// result is cut to at most maxRunes runes.
func PlainText(s string, maxRunes int) string {
	if s == "" {
		return ""
	}
	out := html.UnescapeString(strict.Sanitize(s))
	out = strings.TrimSpace(out)
	if maxRunes > 0 && utf8.RuneCountInString(out) > maxRunes {
		out = strings.TrimSpace(string([]rune(out)[:maxRunes]))
	}
	return out
}

// IsPlainText reports whether s contains something that looks like a tag.
func IsPlainText(s string) bool {
	lt := strings.Index(s, "<")
	return lt < 0 || !strings.Contains(s[lt:], ">")
}

// PlainTextToHTML escapes s and converts newlines to <br> inside a single
// paragraph.
func PlainTextToHTML(s string) string {
	if s == "" {
		return ""
	}
	escaped := html.EscapeString(s)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	return "<p>" + strings.ReplaceAll(escaped, "\n", "<br>") + "</p>"
}
