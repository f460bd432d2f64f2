package sanitizex

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// CleanSingleLine normalizes s to NFC, replaces control characters with spaces,
// trims it and collapses internal whitespace to a single ASCII space.
func CleanSingleLine(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if r == '\u007f' || unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)

	return strings.Join(strings.Fields(s), " ")
}

// StripSpace normalizes s to NFC and drops every whitespace and control character.
// Suited to opaque tokens that users may paste with stray spaces or line breaks.
func StripSpace(s string) string {
	if s == "" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, norm.NFC.String(s))
}
