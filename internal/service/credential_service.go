package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bankportal/idcore/internal/auth"
	"github.com/bankportal/idcore/internal/config"
	"github.com/bankportal/idcore/internal/logger"
	"github.com/bankportal/idcore/internal/model"
	"github.com/bankportal/idcore/internal/repository"
)

// credentialOutcome is the internal result of a credential check
type credentialOutcome int

const (
	credentialMatched credentialOutcome = iota
	credentialMismatch
	credentialUnknown
)

func (o credentialOutcome) String() string {
	switch o {
	case credentialMatched:
		return "matched"
	case credentialMismatch:
		return "mismatch"
	default:
		return "unknown_identifier"
	}
}

// SessionRevoker ends every session of an identity
type SessionRevoker interface {
	RevokeAll(ctx context.Context, identityID string) (int, error)
}

// CredentialService verifies and replaces identity secrets
type CredentialService struct {
	identities IdentityStore
	hasher     *auth.Hasher
	policy     auth.SecretPolicy
	sessions   SessionRevoker
	audit      *Auditor
	log        *logger.Logger
}

// NewCredentialService creates a new CredentialService
func NewCredentialService(
	identities IdentityStore,
	hasher *auth.Hasher,
	sessions SessionRevoker,
	audit *Auditor,
	cfg config.PasswordConfig,
	log *logger.Logger,
) *CredentialService {
	return &CredentialService{
		identities: identities,
		hasher:     hasher,
		policy:     auth.SecretPolicy{MinLength: cfg.MinLength, MinClasses: cfg.MinClasses},
		sessions:   sessions,
		audit:      audit,
		log:        log.WithComponent("credential_service"),
	}
}

// Lookup resolves a login identifier (email or national id) to an identity
func (s *CredentialService) Lookup(ctx context.Context, identifier string) (*model.Identity, error) {
	normalized := auth.NormalizeIdentifier(identifier)

	var (
		identity *model.Identity
		err      error
	)
	switch auth.ClassifyIdentifier(normalized) {
	case auth.IdentifierEmail:
		identity, err = s.identities.GetByEmail(ctx, normalized)
	case auth.IdentifierNationalID:
		identity, err = s.identities.GetByNationalID(ctx, normalized)
	default:
		return nil, ErrNotFound
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up identity: %w", err)
	}
	return identity, nil
}

// Verify checks secret for identifier. Unknown identifiers cost one dummy
// hash comparison so response time does not reveal whether they exist.
func (s *CredentialService) Verify(ctx context.Context, identifier, secret string) (*model.Identity, error) {
	outcome, identity, err := s.verify(ctx, identifier, secret)
	if err != nil {
		return nil, err
	}

	s.log.Debug().Str("outcome", outcome.String()).Msg("credential check")
	if outcome != credentialMatched {
		return nil, ErrInvalidCredentials
	}
	return identity, nil
}

func (s *CredentialService) verify(ctx context.Context, identifier, secret string) (credentialOutcome, *model.Identity, error) {
	identity, err := s.Lookup(ctx, identifier)
	if errors.Is(err, ErrNotFound) {
		s.hasher.VerifyDummy(secret)
		return credentialUnknown, nil, nil
	}
	if err != nil {
		return credentialUnknown, nil, err
	}

	match, err := s.hasher.Verify(secret, identity.PasswordHash)
	if err != nil {
		return credentialUnknown, nil, fmt.Errorf("failed to verify secret: %w", err)
	}
	if !match {
		return credentialMismatch, identity, nil
	}
	return credentialMatched, identity, nil
}

// ValidateSecret applies the strength policy without changing anything
func (s *CredentialService) ValidateSecret(secret string) error {
	if err := s.policy.ValidateSecret(secret); err != nil {
		return fmt.Errorf("%w: %s", ErrWeakSecret, err.Error())
	}
	return nil
}

// ChangeSecret replaces an identity's secret and revokes all its sessions
func (s *CredentialService) ChangeSecret(ctx context.Context, identityID, newSecret string) error {
	if err := s.ValidateSecret(newSecret); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newSecret)
	if err != nil {
		return fmt.Errorf("failed to hash secret: %w", err)
	}

	if err := s.identities.UpdatePasswordHash(ctx, identityID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to store secret: %w", err)
	}

	revoked, err := s.sessions.RevokeAll(ctx, identityID)
	if err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	s.audit.Record(ctx, identityID, model.AuditActionSessionRevokedAll, "identity", identityID, map[string]interface{}{
		"reason":   "secret_changed",
		"sessions": revoked,
	})
	s.log.Info().Str("identity_id", identityID).Int("sessions_revoked", revoked).Msg("secret changed")
	return nil
}

// ChangePassword replaces the secret of an authenticated identity after
// checking its current secret
func (s *CredentialService) ChangePassword(ctx context.Context, identityID, current, next string) error {
	identity, err := s.identities.GetByID(ctx, identityID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get identity: %w", err)
	}

	match, err := s.hasher.Verify(current, identity.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to verify secret: %w", err)
	}
	if !match {
		return ErrInvalidCredentials
	}
	if current == next {
		return fmt.Errorf("%w: new secret must differ from the current one", ErrWeakSecret)
	}

	if err := s.ChangeSecret(ctx, identityID, next); err != nil {
		return err
	}
	s.audit.Record(ctx, identityID, model.AuditActionPasswordChange, "identity", identityID, nil)
	return nil
}
