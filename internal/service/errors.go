package service

import (
	"errors"
	"fmt"
	"time"
)

// Caller-facing service errors. Storage failures are wrapped separately and
// never match any of these.
var (
	ErrInvalidCredentials       = errors.New("invalid identifier or secret")
	ErrAccountLocked            = errors.New("account is temporarily locked")
	ErrCaptchaRequired          = errors.New("captcha verification required")
	ErrAccountSuspended         = errors.New("account is suspended")
	ErrChallengeExpired         = errors.New("verification code has expired")
	ErrChallengeMismatch        = errors.New("verification code does not match")
	ErrChallengeAlreadyConsumed = errors.New("verification code has already been used")
	ErrChallengeInvalidated     = errors.New("too many incorrect codes, request a new one")
	ErrTokenExpired             = errors.New("token has expired")
	ErrTokenReuseDetected       = errors.New("refresh token reuse detected")
	ErrInvalidToken             = errors.New("invalid token")
	ErrWeakSecret               = errors.New("secret does not meet requirements")
	ErrInvalidField             = errors.New("field cannot be modified")
	ErrInvalidInput             = errors.New("invalid input")
	ErrNoOpChange               = errors.New("new value equals current value")
	ErrRequestAlreadyDecided    = errors.New("modification request has already been decided")
	ErrUnauthorized             = errors.New("not permitted")
	ErrNotFound                 = errors.New("not found")
)

// LockedError reports a locked identifier together with when the lock lifts
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s until %s", ErrAccountLocked, e.Until.UTC().Format(time.RFC3339))
}

// Unwrap lets errors.Is match ErrAccountLocked
func (e *LockedError) Unwrap() error {
	return ErrAccountLocked
}

// RetryAfter returns the remaining lock duration, rounded up to whole seconds
func (e *LockedError) RetryAfter(now time.Time) time.Duration {
	d := e.Until.Sub(now)
	if d <= 0 {
		return 0
	}
	return d.Truncate(time.Second) + time.Second
}
