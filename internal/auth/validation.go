package auth

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"
)

// MaxSecretLength caps secrets so hashing cost stays bounded
const MaxSecretLength = 128

// ErrWeakSecret is wrapped by every policy violation returned from ValidateSecret
var ErrWeakSecret = errors.New("secret does not meet strength policy")

// SecretPolicy describes the minimum strength accepted for a new secret
type SecretPolicy struct {
	MinLength  int
	MinClasses int
}

// ValidateSecret checks secret against the policy: length bounds, at least
// MinClasses of {lower, upper, digit, symbol} and not one repeated rune.
func (p SecretPolicy) ValidateSecret(secret string) error {
	minLength := p.MinLength
	if minLength == 0 {
		minLength = 10
	}
	minClasses := p.MinClasses
	if minClasses == 0 {
		minClasses = 3
	}

	n := utf8.RuneCountInString(secret)
	if n < minLength {
		return fmt.Errorf("%w: must be at least %d characters long", ErrWeakSecret, minLength)
	}
	if n > MaxSecretLength {
		return fmt.Errorf("%w: must be at most %d characters long", ErrWeakSecret, MaxSecretLength)
	}
	if isRepeatingChar(secret) {
		return fmt.Errorf("%w: cannot be a single repeating character", ErrWeakSecret)
	}
	if c := characterClasses(secret); c < minClasses {
		return fmt.Errorf("%w: must mix at least %d of lower case, upper case, digits and symbols", ErrWeakSecret, minClasses)
	}
	return nil
}

// isRepeatingChar checks if the secret is just the same character repeated
func isRepeatingChar(s string) bool {
	if len(s) == 0 {
		return false
	}
	runes := []rune(s)
	first := runes[0]
	for _, r := range runes[1:] {
		if r != first {
			return false
		}
	}
	return true
}

func characterClasses(s string) int {
	var lower, upper, digit, symbol bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			symbol = true
		}
	}

	count := 0
	for _, has := range []bool{lower, upper, digit, symbol} {
		if has {
			count++
		}
	}
	return count
}
