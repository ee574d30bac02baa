package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bankportal/idcore/internal/auth"
	"github.com/bankportal/idcore/internal/config"
	"github.com/bankportal/idcore/internal/logger"
	"github.com/bankportal/idcore/internal/metrics"
	"github.com/bankportal/idcore/internal/model"
)

// CaptchaVerifier validates a CAPTCHA-equivalent proof for an identifier
type CaptchaVerifier interface {
	Verify(ctx context.Context, identifier, proof string) bool
}

const markerCaptchaNonce = "captcha_nonce"

// HMACCaptchaVerifier accepts proofs minted by the CAPTCHA front end that
// shares its secret. A proof reads nonce.expiry.mac with
// mac = hex(HMAC-SHA256(secret, identifier|nonce|expiry)); a nonce is
// accepted once and only until its expiry.
type HMACCaptchaVerifier struct {
	secret  []byte
	maxAge  time.Duration
	markers MarkerStore
	log     *logger.Logger
	now     func() time.Time
}

// NewCaptchaVerifier returns the configured verifier, or nil when no secret
// is set. A nil verifier turns the CAPTCHA gate off.
func NewCaptchaVerifier(cfg config.CaptchaConfig, markers MarkerStore, log *logger.Logger) CaptchaVerifier {
	if cfg.Secret == "" {
		return nil
	}
	return &HMACCaptchaVerifier{
		secret:  []byte(cfg.Secret),
		maxAge:  cfg.MaxAge,
		markers: markers,
		log:     log.WithComponent("captcha"),
		now:     time.Now,
	}
}

// Verify implements CaptchaVerifier
func (v *HMACCaptchaVerifier) Verify(ctx context.Context, identifier, proof string) bool {
	nonce, rest, ok := strings.Cut(proof, ".")
	if !ok || nonce == "" {
		return false
	}
	rawExpiry, mac, ok := strings.Cut(rest, ".")
	if !ok {
		return false
	}
	expiry, err := strconv.ParseInt(rawExpiry, 10, 64)
	if err != nil {
		return false
	}

	now := v.now()
	until := time.Unix(expiry, 0)
	if !now.Before(until) || until.Sub(now) > v.maxAge {
		return false
	}
	if !hmac.Equal([]byte(captchaMAC(v.secret, auth.NormalizeIdentifier(identifier), nonce, expiry)), []byte(mac)) {
		return false
	}

	first, err := v.markers.ConsumeOnce(ctx, markerCaptchaNonce, nonce, v.maxAge)
	if err != nil {
		v.log.Error().Err(err).Msg("failed to record captcha nonce")
		return false
	}
	return first
}

func captchaMAC(secret []byte, identifier, nonce string, expiry int64) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s|%s|%d", identifier, nonce, expiry)
	return hex.EncodeToString(mac.Sum(nil))
}

// LoginGuard throttles login attempts per submitted identifier
type LoginGuard struct {
	store   AttemptStore
	captcha CaptchaVerifier
	cfg     config.LockoutConfig
	log     *logger.Logger
	now     func() time.Time
}

// NewLoginGuard creates a new LoginGuard
func NewLoginGuard(store AttemptStore, captcha CaptchaVerifier, cfg config.LockoutConfig, log *logger.Logger) *LoginGuard {
	return &LoginGuard{
		store:   store,
		captcha: captcha,
		cfg:     cfg,
		log:     log.WithComponent("login_guard"),
		now:     time.Now,
	}
}

// Check rejects an attempt before any credential work is done. A lock whose
// window has elapsed is cleared here.
func (g *LoginGuard) Check(ctx context.Context, identifier, captchaProof string) error {
	key := auth.NormalizeIdentifier(identifier)
	state, err := g.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read attempt state: %w", err)
	}

	now := g.now()
	if state.IsLocked(now) {
		return &LockedError{Until: *state.LockedUntil}
	}
	if state.LockExpired(now) {
		if err := g.store.Reset(ctx, key); err != nil {
			return fmt.Errorf("failed to clear expired lock: %w", err)
		}
		return nil
	}

	if g.captcha != nil && state.Failures >= g.cfg.CaptchaThreshold && !g.captcha.Verify(ctx, key, captchaProof) {
		return ErrCaptchaRequired
	}
	return nil
}

// RecordFailure counts a failed credential check
func (g *LoginGuard) RecordFailure(ctx context.Context, identifier string) (*model.AttemptState, error) {
	key := auth.NormalizeIdentifier(identifier)
	now := g.now()

	state, err := g.store.RecordFailure(ctx, key, now, g.cfg.LockThreshold, g.cfg.LockDuration, g.cfg.CounterTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to record failure: %w", err)
	}

	if state.Failures == g.cfg.LockThreshold && state.IsLocked(now) {
		metrics.Lockouts.Inc()
		g.log.Warn().
			Int("failures", state.Failures).
			Time("locked_until", *state.LockedUntil).
			Msg("identifier locked")
	}
	return state, nil
}

// RecordSuccess clears the counter for identifier
func (g *LoginGuard) RecordSuccess(ctx context.Context, identifier string) error {
	return g.Clear(ctx, identifier)
}

// Clear drops counters and locks for each identifier
func (g *LoginGuard) Clear(ctx context.Context, identifiers ...string) error {
	keys := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		if k := auth.NormalizeIdentifier(id); k != "" {
			keys = append(keys, k)
		}
	}
	if err := g.store.Reset(ctx, keys...); err != nil {
		return fmt.Errorf("failed to reset attempt state: %w", err)
	}
	return nil
}

// State returns the current counter for identifier
func (g *LoginGuard) State(ctx context.Context, identifier string) (*model.AttemptState, error) {
	return g.store.Get(ctx, auth.NormalizeIdentifier(identifier))
}
