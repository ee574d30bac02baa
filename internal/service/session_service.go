package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bankportal/idcore/internal/auth"
	"github.com/bankportal/idcore/internal/config"
	"github.com/bankportal/idcore/internal/logger"
	"github.com/bankportal/idcore/internal/metrics"
	"github.com/bankportal/idcore/internal/model"
	"github.com/bankportal/idcore/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionService mints access tokens and rotates refresh-token chains
type SessionService struct {
	store      SessionStore
	identities IdentityStore
	tokens     TokenSigner
	accessTTL  time.Duration
	refreshTTL time.Duration
	audit      *Auditor
	log        *logger.Logger
	now        func() time.Time
}

// NewSessionService creates a new SessionService
func NewSessionService(store SessionStore, identities IdentityStore, tokens TokenSigner, audit *Auditor, cfg config.TokenConfig, log *logger.Logger) *SessionService {
	return &SessionService{
		store:      store,
		identities: identities,
		tokens:     tokens,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		audit:      audit,
		log:        log.WithComponent("session_service"),
		now:        time.Now,
	}
}

// Issue starts a new refresh chain for identity and returns the first pair
func (s *SessionService) Issue(ctx context.Context, identity *model.Identity) (*model.TokenPair, error) {
	now := s.now()
	sess := &model.Session{
		ChainID:    uuid.New().String(),
		IdentityID: identity.ID,
		Role:       identity.Role,
		Generation: 1,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.refreshTTL),
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return s.mint(sess.IdentityID, sess.Role, sess.ChainID, sess.Generation, s.refreshTTL)
}

func (s *SessionService) mint(identityID string, role model.Role, chainID string, generation int64, refreshTTL time.Duration) (*model.TokenPair, error) {
	access, err := s.tokens.Issue(auth.KindAccess, auth.Claims{
		RegisteredClaims: subjectClaims(identityID),
		Role:             role,
	}, s.accessTTL)
	if err != nil {
		return nil, err
	}

	refresh, err := s.tokens.Issue(auth.KindRefresh, auth.Claims{
		RegisteredClaims: subjectClaims(identityID),
		Role:             role,
		ChainID:          chainID,
		Generation:       generation,
	}, refreshTTL)
	if err != nil {
		return nil, err
	}

	return &model.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.accessTTL.Seconds()),
	}, nil
}

// VerifyAccess validates an access token
func (s *SessionService) VerifyAccess(token string) (*auth.Claims, error) {
	claims, err := s.tokens.Verify(auth.KindAccess, token)
	if err != nil {
		return nil, mapTokenError(err)
	}
	return claims, nil
}

// Rotate redeems a refresh token for a new pair. Redeeming a superseded
// token revokes the whole chain and reports reuse. The identity is
// re-read so that suspension ends the chain and role changes apply.
func (s *SessionService) Rotate(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
	claims, err := s.tokens.Verify(auth.KindRefresh, refreshToken)
	if err != nil {
		err = mapTokenError(err)
		metrics.RefreshRotations.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}
	if claims.ChainID == "" || claims.Generation < 1 {
		metrics.RefreshRotations.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidToken
	}

	identity, err := s.identities.GetByID(ctx, claims.Subject)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	if identity == nil || !identity.IsActive() {
		if err := s.store.Revoke(ctx, claims.ChainID); err != nil {
			s.log.Error().Err(err).Str("chain_id", claims.ChainID).Msg("failed to revoke session of inactive identity")
		}
		metrics.RefreshRotations.WithLabelValues("inactive").Inc()
		if identity == nil {
			return nil, ErrInvalidToken
		}
		return nil, ErrAccountSuspended
	}

	now := s.now()
	outcome, gen, chainExpiry, err := s.store.Rotate(ctx, claims.ChainID, claims.Generation, now)
	if err != nil {
		return nil, fmt.Errorf("failed to rotate session: %w", err)
	}

	switch outcome {
	case repository.RotateOK:
	case repository.RotateReuseDetected:
		metrics.RefreshRotations.WithLabelValues("reuse_detected").Inc()
		s.log.Warn().
			Str("identity_id", claims.Subject).
			Str("chain_id", claims.ChainID).
			Int64("generation", claims.Generation).
			Msg("refresh token reuse detected, chain revoked")
		s.audit.Record(ctx, claims.Subject, model.AuditActionTokenReuse, "session", claims.ChainID, map[string]interface{}{
			"generation": claims.Generation,
		})
		return nil, ErrTokenReuseDetected
	case repository.RotateExpired:
		metrics.RefreshRotations.WithLabelValues("expired").Inc()
		return nil, ErrTokenExpired
	default:
		metrics.RefreshRotations.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidToken
	}

	remaining := chainExpiry.Sub(now)
	if remaining <= 0 {
		remaining = time.Second
	}
	pair, err := s.mint(identity.ID, identity.Role, claims.ChainID, gen, remaining)
	if err != nil {
		return nil, err
	}

	metrics.RefreshRotations.WithLabelValues("ok").Inc()
	s.audit.Record(ctx, claims.Subject, model.AuditActionTokenRefresh, "session", claims.ChainID, map[string]interface{}{
		"generation": gen,
	})
	return pair, nil
}

// Revoke ends the chain a refresh token belongs to. Unknown, expired or
// malformed tokens are ignored so logout is idempotent.
func (s *SessionService) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.Verify(auth.KindRefresh, refreshToken)
	if err != nil || claims.ChainID == "" {
		return nil
	}
	if err := s.store.Revoke(ctx, claims.ChainID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	s.audit.Record(ctx, claims.Subject, model.AuditActionLogout, "session", claims.ChainID, nil)
	return nil
}

// RevokeAll ends every chain of an identity
func (s *SessionService) RevokeAll(ctx context.Context, identityID string) (int, error) {
	return s.store.RevokeAll(ctx, identityID)
}

func subjectClaims(identityID string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{Subject: identityID}
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrInvalidToken
	}
}

func outcomeLabel(err error) string {
	if errors.Is(err, ErrTokenExpired) {
		return "expired"
	}
	return "invalid"
}
