package tracker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// words splits a name on punctuation, whitespace and camelCase boundaries.
// Letters and digits in a run stay together ("v2Import" -> "v2", "Import").
func words(s string) []string {
	var out []string
	var cur []rune
	rs := []rune(s)
	flush := func() {
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = cur[:0]
		}
	}
	for i, r := range rs {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if len(cur) > 0 && unicode.IsUpper(r) {
			prev := cur[len(cur)-1]
			switch {
			case unicode.IsLower(prev) || unicode.IsDigit(prev):
				flush()
			case unicode.IsUpper(prev) && i+1 < len(rs) && unicode.IsLower(rs[i+1]):
				// "HTTPServer" -> "HTTP", "Server"
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return out
}

// KebabCase lowercases the words of s and joins them with hyphens.
func KebabCase(s string) string {
	lower := cases.Lower(language.Und)
	ws := words(s)
	for i, w := range ws {
		ws[i] = lower.String(w)
	}
	return strings.Join(ws, "-")
}

// SentenceCase capitalises the first word of s and lowercases the rest.
func SentenceCase(s string) string {
	ws := words(s)
	if len(ws) == 0 {
		return ""
	}
	lower := cases.Lower(language.Und)
	for i, w := range ws {
		ws[i] = lower.String(w)
	}
	ws[0] = cases.Title(language.Und).String(ws[0])
	return strings.Join(ws, " ")
}

// truncate cuts s to maxBytes without splitting UTF-8 runes.
func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
