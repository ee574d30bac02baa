package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bankportal/idcore/internal/auth"
	"github.com/bankportal/idcore/internal/logger"
	"github.com/bankportal/idcore/internal/model"
	"github.com/bankportal/idcore/internal/repository"
	"github.com/golang-jwt/jwt/v5"
)

const markerResetProof = "reset_proof"

// PasswordResetService runs the forgot-password flow:
// identification, code sent, code verified, secret replaced
type PasswordResetService struct {
	credentials *CredentialService
	identities  IdentityStore
	challenges  *ChallengeManager
	guard       *LoginGuard
	tokens      TokenSigner
	markers     MarkerStore
	proofTTL    time.Duration
	audit       *Auditor
	log         *logger.Logger
}

// NewPasswordResetService creates a new PasswordResetService
func NewPasswordResetService(
	credentials *CredentialService,
	identities IdentityStore,
	challenges *ChallengeManager,
	guard *LoginGuard,
	tokens TokenSigner,
	markers MarkerStore,
	audit *Auditor,
	proofTTL time.Duration,
	log *logger.Logger,
) *PasswordResetService {
	return &PasswordResetService{
		credentials: credentials,
		identities:  identities,
		challenges:  challenges,
		guard:       guard,
		tokens:      tokens,
		markers:     markers,
		proofTTL:    proofTTL,
		audit:       audit,
		log:         log.WithComponent("password_reset_service"),
	}
}

// Request starts a reset. A challenge keyed by the normalized identifier is
// always created; the code is only delivered when the identifier resolves to
// an identity. Callers must answer identically whatever this returns.
func (s *PasswordResetService) Request(ctx context.Context, identifier string) error {
	subject := auth.NormalizeIdentifier(identifier)
	if subject == "" {
		return ErrInvalidInput
	}

	identity, err := s.credentials.Lookup(ctx, subject)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	req := IssueRequest{Subject: subject, Purpose: model.PurposePasswordReset, Channel: model.ChannelNone}
	if identity != nil && identity.IsActive() {
		req.Channel, req.Destination = routeResetCode(subject, identity)
	}

	if _, err := s.challenges.Issue(ctx, req); err != nil {
		return err
	}

	// One audit write on both branches keeps the response time uniform
	var identityID string
	if identity != nil {
		identityID = identity.ID
	}
	s.audit.Record(ctx, identityID, model.AuditActionPasswordResetRequest, "identity", identityID, map[string]interface{}{
		"channel": string(req.Channel),
	})
	return nil
}

// routeResetCode sends email-form identifiers to the registered email and
// national-id identifiers to the registered phone, falling back to email
func routeResetCode(subject string, identity *model.Identity) (model.Channel, string) {
	if auth.ClassifyIdentifier(subject) == auth.IdentifierNationalID && identity.Phone != nil && *identity.Phone != "" {
		return model.ChannelSMS, *identity.Phone
	}
	return model.ChannelEmail, identity.Email
}

// VerifyCode checks the reset code and returns a single-use proof token
func (s *PasswordResetService) VerifyCode(ctx context.Context, identifier, code string) (string, error) {
	subject := auth.NormalizeIdentifier(identifier)
	if err := s.challenges.VerifyLatest(ctx, subject, model.PurposePasswordReset, code); err != nil {
		return "", err
	}

	identity, err := s.credentials.Lookup(ctx, subject)
	if errors.Is(err, ErrNotFound) {
		return "", ErrChallengeMismatch
	}
	if err != nil {
		return "", err
	}

	return s.tokens.Issue(auth.KindResetProof, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: identity.ID},
	}, s.proofTTL)
}

// Complete replaces the secret using a proof token. The proof is reserved
// once the new secret passes the strength policy and handed back if the
// secret could not be stored.
func (s *PasswordResetService) Complete(ctx context.Context, proofToken, newSecret string) error {
	claims, err := s.tokens.Verify(auth.KindResetProof, proofToken)
	if err != nil {
		return mapTokenError(err)
	}

	if err := s.credentials.ValidateSecret(newSecret); err != nil {
		return err
	}

	first, err := s.markers.ConsumeOnce(ctx, markerResetProof, claims.ID, s.proofTTL)
	if err != nil {
		return err
	}
	if !first {
		return ErrInvalidToken
	}

	identity, err := s.identities.GetByID(ctx, claims.Subject)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		s.releaseProof(ctx, claims.ID)
		return fmt.Errorf("failed to get identity: %w", err)
	}

	if err := s.credentials.ChangeSecret(ctx, identity.ID, newSecret); err != nil {
		s.releaseProof(ctx, claims.ID)
		return err
	}

	if err := s.guard.Clear(ctx, identity.Identifiers()...); err != nil {
		s.log.Error().Err(err).Str("identity_id", identity.ID).Msg("failed to clear login attempts after reset")
	}

	s.audit.Record(ctx, identity.ID, model.AuditActionPasswordReset, "identity", identity.ID, nil)
	s.log.Info().Str("identity_id", identity.ID).Msg("password reset completed")
	return nil
}

func (s *PasswordResetService) releaseProof(ctx context.Context, tokenID string) {
	if err := s.markers.Release(ctx, markerResetProof, tokenID); err != nil {
		s.log.Error().Err(err).Msg("failed to release reset proof")
	}
}
