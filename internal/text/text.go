// Package text cleans up user-supplied names before they are stored and shown.
package text

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// Invisible and direction-changing characters that make names look
	// identical while comparing different.
	invisibleReplacer = strings.NewReplacer(
		"\u2060", "", "\u180E", "",
		"\u200B", "", "\u200C", "",
		"\u200D", "", "\uFEFF", "",
		"\u00AD", "",
		"\u202A", "", "\u202B", "",
		"\u202C", "", "\u202D", "", "\u202E", "",
		"\u2066", "", "\u2067", "", "\u2068", "", "\u2069", "",
	)

	controlCharsRegex = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
)

// Name normalizes a single-line name: invisible and control characters are
// removed, whitespace runs become one space and the result is trimmed and
// cut to at most maxRunes runes. maxRunes <= 0 disables the limit.
func Name(s string, maxRunes int) string {
	s = invisibleReplacer.Replace(s)
	s = controlCharsRegex.ReplaceAllString(s, "")
	s = collapseWhitespace(s)
	return Truncate(s, maxRunes)
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !space {
				b.WriteRune(' ')
				space = true
			}
			continue
		}
		b.WriteRune(r)
		space = false
	}
	return strings.TrimSpace(b.String())
}

// Truncate cuts s to at most maxRunes runes without splitting a rune.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxRunes]))
}
