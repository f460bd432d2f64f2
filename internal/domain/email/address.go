package email

import (
	"fmt"
	"net/http"
	"net/mail"
	"regexp"
	"strings"

	"github.com/ARUMANDESU/validation"
	"golang.org/x/net/publicsuffix"

	"gitlab.com/ucmsv2/idbroker/pkg/env"
	"gitlab.com/ucmsv2/idbroker/pkg/errorx"
	"gitlab.com/ucmsv2/idbroker/pkg/validationx"
)

const MaxLength = 254

var ErrInvalidAddress = errorx.NewValidationFailed().
	WithKey("invalid_email_address").
	WithHTTPCode(http.StatusBadRequest)

var domainRx = regexp.MustCompile(
	`^(?:[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?\.)+` + // labels
		`[A-Za-z]{2,63}$`) // TLD

// Address is a syntactically valid mailbox in canonical form:
// surrounding whitespace trimmed and the domain lower-cased. The local part keeps its case.
type Address string

// Parse validates raw and returns its canonical form. In dev and prod the
// domain must end in an ICANN public suffix.
func Parse(raw string, mode env.Mode) (Address, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrInvalidAddress.WithCause(fmt.Errorf("empty address"))
	}
	if len(s) > MaxLength {
		return "", ErrInvalidAddress.WithCause(fmt.Errorf("address exceeds %d characters", MaxLength))
	}
	if err := validation.Validate(s, validationx.EmailRules...); err != nil {
		return "", ErrInvalidAddress.WithCause(err)
	}
	parsed, err := mail.ParseAddress(s)
	if err != nil {
		return "", ErrInvalidAddress.WithCause(err)
	}
	if parsed.Address != s {
		return "", ErrInvalidAddress.WithCause(fmt.Errorf("address must not carry a display name"))
	}

	at := strings.LastIndexByte(s, '@')
	local, domain := s[:at], strings.ToLower(s[at+1:])
	if !domainRx.MatchString(domain) {
		return "", ErrInvalidAddress.WithCause(fmt.Errorf("malformed domain %q", domain))
	}
	if (mode == env.Dev || mode == env.Prod) && !hasRealTLD(domain) {
		return "", ErrInvalidAddress.WithCause(fmt.Errorf("domain %q has no public suffix", domain))
	}

	return Address(local + "@" + domain), nil
}

func (a Address) String() string {
	return string(a)
}

func (a Address) Domain() string {
	at := strings.LastIndexByte(string(a), '@')
	if at < 0 {
		return ""
	}
	return string(a[at+1:])
}

func hasRealTLD(domain string) bool {
	// Ask PSL what the public suffix is and whether it’s ICANN‑managed
	suffix, icann := publicsuffix.PublicSuffix(domain)

	// If the suffix is the entire domain there's no registrable part,
	// so "localhost", "internal", etc. fail here.
	return icann && suffix != domain
}
