package logging

import (
	"strings"
	"unicode/utf8"
)

const (
	redactedMask    = "****"
	redactedAddress = "[redacted]"

	// local parts shorter than this are masked entirely
	minKeptLocalRunes = 4
	keptLocalRunes    = 2
)

// RedactEmail masks the local part of an address before it reaches logs or
// span attributes. The domain is kept so mail delivery problems stay
// diagnosable. The first two runes of the local part survive when it has at
// least four; shorter local parts are masked entirely. Input without a local
// part and a domain is replaced as a whole.
func RedactEmail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// quoted local parts may contain '@', domains never do
	at := strings.LastIndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return redactedAddress
	}

	local, domain := s[:at], s[at+1:]
	if utf8.RuneCountInString(local) < minKeptLocalRunes {
		return redactedMask + "@" + domain
	}

	offset := 0
	for range keptLocalRunes {
		_, size := utf8.DecodeRuneInString(local[offset:])
		offset += size
	}

	return local[:offset] + redactedMask + "@" + domain
}
