package auth

import (
	"net/mail"
	"strings"
	"unicode"
)

// IdentifierKind classifies a login identifier string
type IdentifierKind int

const (
	IdentifierUnknown IdentifierKind = iota
	IdentifierEmail
	IdentifierNationalID
)

// NormalizeIdentifier trims and lower-cases a submitted identifier. All keyed
// state (attempt counters, reset challenges) uses the normalized form.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// ClassifyIdentifier decides whether a normalized identifier is an email
// address or a national id number (6 to 20 digits, dashes allowed).
func ClassifyIdentifier(identifier string) IdentifierKind {
	if identifier == "" {
		return IdentifierUnknown
	}
	if strings.Contains(identifier, "@") {
		if addr, err := mail.ParseAddress(identifier); err == nil && addr.Address == identifier {
			return IdentifierEmail
		}
		return IdentifierUnknown
	}

	digits := 0
	for _, r := range identifier {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '-':
		default:
			return IdentifierUnknown
		}
	}
	if digits >= 6 && digits <= 20 {
		return IdentifierNationalID
	}
	return IdentifierUnknown
}
