package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/bankportal/idcore/internal/auth"
	"github.com/bankportal/idcore/internal/config"
	"github.com/bankportal/idcore/internal/logger"
	"github.com/bankportal/idcore/internal/model"
	"github.com/bankportal/idcore/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	markerMFAToken     = "mfa_token"
	markerTOTPMismatch = "totp_mismatch"
	markerTOTPCode     = "totp_code"
	pendingTOTPKind    = "totp_setup"
)

// MFAService handles the second factor: pending-login tokens, emailed or
// texted codes and TOTP enrollment
type MFAService struct {
	identities    IdentityStore
	tokens        TokenSigner
	challenges    *ChallengeManager
	markers       MarkerStore
	cfg           config.MFAConfig
	tokenTTL      time.Duration
	maxMismatches int
	audit         *Auditor
	log           *logger.Logger
	now           func() time.Time
}

// NewMFAService creates a new MFAService
func NewMFAService(
	identities IdentityStore,
	tokens TokenSigner,
	challenges *ChallengeManager,
	markers MarkerStore,
	audit *Auditor,
	cfg *config.Config,
	log *logger.Logger,
) *MFAService {
	return &MFAService{
		identities:    identities,
		tokens:        tokens,
		challenges:    challenges,
		markers:       markers,
		cfg:           cfg.MFA,
		tokenTTL:      cfg.Security.Tokens.MFATokenTTL,
		maxMismatches: cfg.Security.Challenge.MaxMismatches,
		audit:         audit,
		log:           log.WithComponent("mfa_service"),
		now:           time.Now,
	}
}

// CreateMFAToken issues the short-lived token that stands in for a session
// until the second factor is verified
func (s *MFAService) CreateMFAToken(identity *model.Identity) (string, error) {
	return s.tokens.Issue(auth.KindMFA, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: identity.ID},
	}, s.tokenTTL)
}

// AvailableMethods lists the second factors an identity can use
func (s *MFAService) AvailableMethods(identity *model.Identity) []model.MFAMethodType {
	methods := []model.MFAMethodType{model.MFAMethodEmail}
	if identity.Phone != nil && *identity.Phone != "" {
		methods = append(methods, model.MFAMethodSMS)
	}
	if identity.HasTOTP() {
		methods = append(methods, model.MFAMethodTOTP)
	}
	return methods
}

func (s *MFAService) resolveToken(ctx context.Context, mfaToken string) (*auth.Claims, *model.Identity, error) {
	claims, err := s.tokens.Verify(auth.KindMFA, mfaToken)
	if err != nil {
		return nil, nil, mapTokenError(err)
	}
	identity, err := s.identities.GetByID(ctx, claims.Subject)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, ErrInvalidToken
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return claims, identity, nil
}

// SendCode issues an MFA challenge over the requested channel. SMS falls
// back to email when no phone is registered.
func (s *MFAService) SendCode(ctx context.Context, mfaToken string, method model.MFAMethodType) error {
	_, identity, err := s.resolveToken(ctx, mfaToken)
	if err != nil {
		return err
	}

	channel, ok := method.Channel()
	if !ok {
		return ErrInvalidInput
	}
	destination := identity.Email
	if channel == model.ChannelSMS {
		if identity.Phone != nil && *identity.Phone != "" {
			destination = *identity.Phone
		} else {
			channel = model.ChannelEmail
		}
	}

	_, err = s.challenges.Issue(ctx, IssueRequest{
		Subject:     identity.ID,
		Purpose:     model.PurposeMFA,
		Channel:     channel,
		Destination: destination,
	})
	return err
}

// VerifyCode checks the second factor and consumes the MFA token
func (s *MFAService) VerifyCode(ctx context.Context, mfaToken string, method model.MFAMethodType, code string) (*model.Identity, error) {
	claims, identity, err := s.resolveToken(ctx, mfaToken)
	if err != nil {
		return nil, err
	}

	if method == model.MFAMethodTOTP {
		if !identity.HasTOTP() {
			return nil, ErrInvalidInput
		}
		if !s.validateTOTP(code, *identity.TOTPSecret) {
			return nil, s.recordTOTPMismatch(ctx, claims.ID)
		}
		fresh, err := s.markers.ConsumeOnce(ctx, markerTOTPCode, identity.ID+":"+code, s.totpReplayWindow())
		if err != nil {
			return nil, err
		}
		if !fresh {
			return nil, ErrChallengeAlreadyConsumed
		}
	} else {
		if err := s.challenges.VerifyLatest(ctx, identity.ID, model.PurposeMFA, code); err != nil {
			return nil, err
		}
	}

	first, err := s.markers.ConsumeOnce(ctx, markerMFAToken, claims.ID, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	if !first {
		return nil, ErrInvalidToken
	}

	s.audit.Record(ctx, identity.ID, model.AuditActionMFAVerified, "identity", identity.ID, map[string]interface{}{
		"method": string(method),
	})
	return identity, nil
}

// recordTOTPMismatch counts a wrong TOTP code against the MFA token and
// burns the token once the limit is reached
func (s *MFAService) recordTOTPMismatch(ctx context.Context, tokenID string) error {
	n, err := s.markers.Increment(ctx, markerTOTPMismatch, tokenID, s.tokenTTL)
	if err != nil {
		return err
	}
	if n < int64(s.maxMismatches) {
		return ErrChallengeMismatch
	}
	if _, err := s.markers.ConsumeOnce(ctx, markerMFAToken, tokenID, s.tokenTTL); err != nil {
		return err
	}
	s.log.Warn().Str("token_id", tokenID).Int64("mismatches", n).Msg("MFA token invalidated after TOTP mismatches")
	return ErrChallengeInvalidated
}

// totpReplayWindow covers every period a code validates in, given skew 1
func (s *MFAService) totpReplayWindow() time.Duration {
	return 3 * time.Duration(s.cfg.TOTP.Period) * time.Second
}

// SetupTOTP generates a TOTP secret and QR code. The secret stays pending
// until ConfirmTOTP sees a valid code.
func (s *MFAService) SetupTOTP(ctx context.Context, identityID string) (*model.MFASetupResponse, error) {
	identity, err := s.identities.GetByID(ctx, identityID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.cfg.TOTP.Issuer,
		AccountName: identity.Email,
		Period:      uint(s.cfg.TOTP.Period),
		Digits:      otp.Digits(s.cfg.TOTP.Digits),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}

	if err := s.markers.PutPending(ctx, pendingTOTPKind, identityID, key.Secret(), s.cfg.TOTP.SetupTTL); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, identityID, model.AuditActionMFATOTPSetup, "identity", identityID, nil)
	return &model.MFASetupResponse{
		Secret:    key.Secret(),
		QRCode:    base64.StdEncoding.EncodeToString(png),
		Issuer:    s.cfg.TOTP.Issuer,
		AccountID: identity.Email,
	}, nil
}

// ConfirmTOTP activates a pending TOTP secret and turns MFA on
func (s *MFAService) ConfirmTOTP(ctx context.Context, identityID, code string) error {
	secret, err := s.markers.GetPending(ctx, pendingTOTPKind, identityID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrChallengeExpired
	}
	if err != nil {
		return err
	}

	if !s.validateTOTP(code, secret) {
		return ErrChallengeMismatch
	}

	if err := s.identities.EnableTOTP(ctx, identityID, secret); err != nil {
		return fmt.Errorf("failed to enable TOTP: %w", err)
	}
	if err := s.markers.DeletePending(ctx, pendingTOTPKind, identityID); err != nil {
		s.log.Error().Err(err).Str("identity_id", identityID).Msg("failed to drop pending TOTP secret")
	}

	s.audit.Record(ctx, identityID, model.AuditActionMFATOTPEnabled, "identity", identityID, nil)
	return nil
}

func (s *MFAService) validateTOTP(code, secret string) bool {
	ok, err := totp.ValidateCustom(code, secret, s.now().UTC(), totp.ValidateOpts{
		Period:    uint(s.cfg.TOTP.Period),
		Skew:      1,
		Digits:    otp.Digits(s.cfg.TOTP.Digits),
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
