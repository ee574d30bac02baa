package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bankportal/idcore/internal/logger"
	"github.com/bankportal/idcore/internal/model"
	"github.com/bankportal/idcore/internal/repository"
)

// EmailVerificationService confirms that an identity controls its email
type EmailVerificationService struct {
	identities IdentityStore
	verifier   VerifiedMarker
	challenges *ChallengeManager
	audit      *Auditor
	log        *logger.Logger
}

// VerifiedMarker flips the verified flag of an identity
type VerifiedMarker interface {
	MarkVerified(ctx context.Context, id string) error
}

// NewEmailVerificationService creates a new EmailVerificationService
func NewEmailVerificationService(identities IdentityStore, verifier VerifiedMarker, challenges *ChallengeManager, audit *Auditor, log *logger.Logger) *EmailVerificationService {
	return &EmailVerificationService{
		identities: identities,
		verifier:   verifier,
		challenges: challenges,
		audit:      audit,
		log:        log.WithComponent("email_verification_service"),
	}
}

// SendCode emails a verification code to the identity's address
func (s *EmailVerificationService) SendCode(ctx context.Context, identityID string) error {
	identity, err := s.identities.GetByID(ctx, identityID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get identity: %w", err)
	}
	if identity.Verified {
		return nil
	}

	_, err = s.challenges.Issue(ctx, IssueRequest{
		Subject:     identity.ID,
		Purpose:     model.PurposeEmailVerify,
		Channel:     model.ChannelEmail,
		Destination: identity.Email,
	})
	return err
}

// Confirm checks the code and marks the identity verified
func (s *EmailVerificationService) Confirm(ctx context.Context, identityID, code string) error {
	if err := s.challenges.VerifyLatest(ctx, identityID, model.PurposeEmailVerify, code); err != nil {
		return err
	}
	if err := s.verifier.MarkVerified(ctx, identityID); err != nil {
		return fmt.Errorf("failed to mark identity verified: %w", err)
	}
	s.audit.Record(ctx, identityID, model.AuditActionEmailVerified, "identity", identityID, nil)
	s.log.Info().Str("identity_id", identityID).Msg("email verified")
	return nil
}
