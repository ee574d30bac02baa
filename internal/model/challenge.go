package model

import (
	"time"
)

// ChallengePurpose scopes a one-time code to a single flow
type ChallengePurpose string

const (
	PurposeMFA           ChallengePurpose = "mfa"
	PurposePasswordReset ChallengePurpose = "password-reset"
	PurposeEmailVerify   ChallengePurpose = "email-verify"
)

// Channel is the out-of-band delivery route for a code
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelNone  Channel = "none"
)

// Challenge is a short-lived one-time code bound to a subject and purpose
type Challenge struct {
	ID         string           `json:"id"`
	Subject    string           `json:"subject"`
	Purpose    ChallengePurpose `json:"purpose"`
	CodeHash   string           `json:"-"`
	Channel    Channel          `json:"channel"`
	Mismatches int              `json:"mismatches"`
	Consumed   bool             `json:"consumed"`
	CreatedAt  time.Time        `json:"createdAt"`
	ExpiresAt  time.Time        `json:"expiresAt"`
}

// ChallengeOutcome is the result of checking a code against a challenge
type ChallengeOutcome string

const (
	ChallengeOK          ChallengeOutcome = "ok"
	ChallengeExpired     ChallengeOutcome = "expired"
	ChallengeMismatch    ChallengeOutcome = "mismatch"
	ChallengeConsumed    ChallengeOutcome = "consumed"
	ChallengeInvalidated ChallengeOutcome = "invalidated"
	ChallengeMissing     ChallengeOutcome = "missing"
)
