package service

import (
	"context"
	"time"

	"github.com/bankportal/idcore/internal/auth"
	"github.com/bankportal/idcore/internal/model"
	"github.com/bankportal/idcore/internal/notify"
	"github.com/bankportal/idcore/internal/repository"
)

// IdentityStore is the identity persistence the services rely on
type IdentityStore interface {
	GetByID(ctx context.Context, id string) (*model.Identity, error)
	GetByEmail(ctx context.Context, email string) (*model.Identity, error)
	GetByNationalID(ctx context.Context, nationalID string) (*model.Identity, error)
	UpdatePasswordHash(ctx context.Context, id string, hash string) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	EnableTOTP(ctx context.Context, id string, secret string) error
}

// ProfileStore reads KYC profiles
type ProfileStore interface {
	GetByIdentityID(ctx context.Context, identityID string) (*model.Profile, error)
}

// ModificationStore persists modification requests
type ModificationStore interface {
	Create(ctx context.Context, m *model.ModificationRequest) error
	GetByID(ctx context.Context, id string) (*model.ModificationRequest, error)
	Decide(ctx context.Context, d repository.Decision) (*model.ModificationRequest, error)
}

// AuditStore persists audit entries
type AuditStore interface {
	Create(ctx context.Context, entry *model.AuditLog) error
}

// SessionStore keeps refresh-token chains
type SessionStore interface {
	Create(ctx context.Context, sess *model.Session) error
	Rotate(ctx context.Context, chainID string, presented int64, now time.Time) (repository.RotateOutcome, int64, time.Time, error)
	Revoke(ctx context.Context, chainID string) error
	RevokeAll(ctx context.Context, identityID string) (int, error)
}

// AttemptStore keeps login failure counters
type AttemptStore interface {
	Get(ctx context.Context, identifier string) (*model.AttemptState, error)
	RecordFailure(ctx context.Context, identifier string, now time.Time, lockThreshold int, lockDuration, ttl time.Duration) (*model.AttemptState, error)
	Reset(ctx context.Context, identifiers ...string) error
}

// ChallengeStore keeps one-time code challenges
type ChallengeStore interface {
	Save(ctx context.Context, c *model.Challenge) error
	LatestID(ctx context.Context, purpose model.ChallengePurpose, subject string) (string, error)
	Check(ctx context.Context, id string, purpose model.ChallengePurpose, codeHash string, now time.Time, maxMismatches int) (model.ChallengeOutcome, error)
}

// MarkerStore records single-use ids and pending secrets
type MarkerStore interface {
	ConsumeOnce(ctx context.Context, namespace, id string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, namespace, id string) error
	Increment(ctx context.Context, namespace, id string, ttl time.Duration) (int64, error)
	PutPending(ctx context.Context, namespace, id, value string, ttl time.Duration) error
	GetPending(ctx context.Context, namespace, id string) (string, error)
	DeletePending(ctx context.Context, namespace, id string) error
}

// Notifier schedules out-of-band delivery without blocking
type Notifier interface {
	Enqueue(n notify.CodeNotification) error
}

// TokenSigner issues and verifies JWTs of every kind
type TokenSigner interface {
	auth.Issuer
	auth.Verifier
}
