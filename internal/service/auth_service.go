package service

import (
	"context"
	"errors"
	"time"

	"github.com/bankportal/idcore/internal/logger"
	"github.com/bankportal/idcore/internal/metrics"
	"github.com/bankportal/idcore/internal/model"
)

// AuthService orchestrates login: guard pre-check, credential check, guard
// bookkeeping, optional second factor, then token issue
type AuthService struct {
	credentials *CredentialService
	guard       *LoginGuard
	sessions    *SessionService
	mfa         *MFAService
	identities  IdentityStore
	audit       *Auditor
	log         *logger.Logger
	now         func() time.Time
}

// NewAuthService creates a new AuthService
func NewAuthService(
	credentials *CredentialService,
	guard *LoginGuard,
	sessions *SessionService,
	mfa *MFAService,
	identities IdentityStore,
	audit *Auditor,
	log *logger.Logger,
) *AuthService {
	return &AuthService{
		credentials: credentials,
		guard:       guard,
		sessions:    sessions,
		mfa:         mfa,
		identities:  identities,
		audit:       audit,
		log:         log.WithComponent("auth_service"),
		now:         time.Now,
	}
}

// LoginRequest contains the credentials submitted to log in
type LoginRequest struct {
	Identifier   string
	Secret       string
	CaptchaToken string
}

// LoginResult carries either a token pair or an MFA challenge
type LoginResult struct {
	Tokens       *model.TokenPair
	MFAChallenge *model.MFAChallengeResponse
}

// Login authenticates an identifier and secret
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := s.guard.Check(ctx, req.Identifier, req.CaptchaToken); err != nil {
		switch {
		case errors.Is(err, ErrAccountLocked):
			metrics.LoginOutcomes.WithLabelValues("locked").Inc()
			s.audit.Record(ctx, "", model.AuditActionLoginLocked, "login", "", nil)
		case errors.Is(err, ErrCaptchaRequired):
			metrics.LoginOutcomes.WithLabelValues("captcha_required").Inc()
		}
		return nil, err
	}

	identity, err := s.credentials.Verify(ctx, req.Identifier, req.Secret)
	if errors.Is(err, ErrInvalidCredentials) {
		state, gerr := s.guard.RecordFailure(ctx, req.Identifier)
		if gerr != nil {
			return nil, gerr
		}
		metrics.LoginOutcomes.WithLabelValues("invalid_credentials").Inc()
		s.audit.Record(ctx, "", model.AuditActionLoginFailed, "login", "", map[string]interface{}{
			"failures": state.Failures,
		})
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := s.guard.RecordSuccess(ctx, req.Identifier); err != nil {
		return nil, err
	}

	if !identity.IsActive() {
		metrics.LoginOutcomes.WithLabelValues("suspended").Inc()
		return nil, ErrAccountSuspended
	}

	if err := s.identities.UpdateLastLogin(ctx, identity.ID, s.now().UTC()); err != nil {
		s.log.Error().Err(err).Str("identity_id", identity.ID).Msg("failed to update last login")
	}

	if identity.MFAEnabled {
		token, err := s.mfa.CreateMFAToken(identity)
		if err != nil {
			return nil, err
		}
		metrics.LoginOutcomes.WithLabelValues("mfa_required").Inc()
		s.audit.Record(ctx, identity.ID, model.AuditActionLogin, "identity", identity.ID, map[string]interface{}{
			"mfa_required": true,
		})
		return &LoginResult{MFAChallenge: &model.MFAChallengeResponse{
			Status:           "mfa_required",
			MFAToken:         token,
			AvailableMethods: s.mfa.AvailableMethods(identity),
		}}, nil
	}

	pair, err := s.sessions.Issue(ctx, identity)
	if err != nil {
		return nil, err
	}
	metrics.LoginOutcomes.WithLabelValues("success").Inc()
	s.audit.Record(ctx, identity.ID, model.AuditActionLogin, "identity", identity.ID, nil)
	s.log.Info().Str("identity_id", identity.ID).Msg("identity logged in")
	return &LoginResult{Tokens: pair}, nil
}

// CompleteMFA verifies the second factor and issues the session
func (s *AuthService) CompleteMFA(ctx context.Context, mfaToken string, method model.MFAMethodType, code string) (*model.TokenPair, error) {
	if method == "" {
		method = model.MFAMethodEmail
	}
	identity, err := s.mfa.VerifyCode(ctx, mfaToken, method, code)
	if err != nil {
		return nil, err
	}
	if !identity.IsActive() {
		return nil, ErrAccountSuspended
	}
	return s.sessions.Issue(ctx, identity)
}

// Refresh rotates a refresh token
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
	return s.sessions.Rotate(ctx, refreshToken)
}

// Logout revokes the chain of a refresh token
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.sessions.Revoke(ctx, refreshToken)
}
