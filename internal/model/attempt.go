package model

import (
	"time"
)

// AttemptState is the failure counter kept per normalized login identifier
type AttemptState struct {
	Failures       int        `json:"failures"`
	FirstFailureAt *time.Time `json:"firstFailureAt,omitempty"`
	LockedUntil    *time.Time `json:"lockedUntil,omitempty"`
}

// IsLocked checks if the identifier is locked at the given instant
func (a *AttemptState) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// LockExpired reports a lock that was set and has since elapsed
func (a *AttemptState) LockExpired(now time.Time) bool {
	return a.LockedUntil != nil && !now.Before(*a.LockedUntil)
}
