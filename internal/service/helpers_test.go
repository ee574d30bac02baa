package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bankportal/idcore/internal/auth"
	"github.com/bankportal/idcore/internal/config"
	"github.com/bankportal/idcore/internal/database"
	"github.com/bankportal/idcore/internal/logger"
	"github.com/bankportal/idcore/internal/model"
	"github.com/bankportal/idcore/internal/notify"
	"github.com/bankportal/idcore/internal/repository"
	"github.com/redis/go-redis/v9"
)

const testSecret = "Corr3ct-Horse-Battery"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeIdentities is an in-memory IdentityStore and VerifiedMarker
type fakeIdentities struct {
	mu        sync.Mutex
	byID      map[string]*model.Identity
	updateErr error
}

func newFakeIdentities() *fakeIdentities {
	return &fakeIdentities{byID: make(map[string]*model.Identity)}
}

func (f *fakeIdentities) put(i *model.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[i.ID] = i
}

func (f *fakeIdentities) get(id string) *model.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.byID[id]
	if !ok {
		return nil
	}
	cp := *i
	return &cp
}

func (f *fakeIdentities) find(match func(*model.Identity) bool) (*model.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, i := range f.byID {
		if match(i) {
			cp := *i
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeIdentities) GetByID(_ context.Context, id string) (*model.Identity, error) {
	if i := f.get(id); i != nil {
		return i, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeIdentities) GetByEmail(_ context.Context, email string) (*model.Identity, error) {
	return f.find(func(i *model.Identity) bool { return strings.EqualFold(i.Email, email) })
}

func (f *fakeIdentities) GetByNationalID(_ context.Context, nationalID string) (*model.Identity, error) {
	return f.find(func(i *model.Identity) bool { return i.NationalID != nil && *i.NationalID == nationalID })
}

func (f *fakeIdentities) update(id string, fn func(*model.Identity)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(i)
	return nil
}

func (f *fakeIdentities) failUpdates(err error) {
	f.mu.Lock()
	f.updateErr = err
	f.mu.Unlock()
}

func (f *fakeIdentities) UpdatePasswordHash(_ context.Context, id, hash string) error {
	f.mu.Lock()
	err := f.updateErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.update(id, func(i *model.Identity) { i.PasswordHash = hash })
}

func (f *fakeIdentities) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	return f.update(id, func(i *model.Identity) { i.LastLoginAt = &at })
}

func (f *fakeIdentities) EnableTOTP(_ context.Context, id, secret string) error {
	return f.update(id, func(i *model.Identity) {
		i.TOTPSecret = &secret
		i.MFAEnabled = true
	})
}

func (f *fakeIdentities) MarkVerified(_ context.Context, id string) error {
	return f.update(id, func(i *model.Identity) { i.Verified = true })
}

// fakeNotifier captures queued codes instead of delivering them
type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.CodeNotification
}

func (n *fakeNotifier) Enqueue(c notify.CodeNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, c)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *fakeNotifier) last(t *testing.T) notify.CodeNotification {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatalf("no notification was queued")
	}
	return n.sent[len(n.sent)-1]
}

// fakeAudit records actions written through the Auditor
type fakeAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *fakeAudit) Create(_ context.Context, entry *model.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, entry.Action)
	return nil
}

func (a *fakeAudit) has(action string) bool {
	return a.count(action) > 0
}

func (a *fakeAudit) count(action string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, got := range a.actions {
		if got == action {
			n++
		}
	}
	return n
}

type harness struct {
	mr          *miniredis.Miniredis
	clock       *testClock
	identities  *fakeIdentities
	notifier    *fakeNotifier
	audit       *fakeAudit
	captcha     *HMACCaptchaVerifier
	tokens      *auth.TokenService
	hasher      *auth.Hasher
	sessions    *SessionService
	credentials *CredentialService
	guard       *LoginGuard
	challenges  *ChallengeManager
	mfa         *MFAService
	auth        *AuthService
	reset       *PasswordResetService
	verify      *EmailVerificationService
}

func testConfig() *config.Config {
	return &config.Config{
		Security: config.SecurityConfig{
			Password: config.PasswordConfig{MinLength: 10, MinClasses: 3},
			Tokens: config.TokenConfig{
				Issuer:          "idcore-test",
				AccessTokenTTL:  15 * time.Minute,
				RefreshTokenTTL: 7 * 24 * time.Hour,
				MFATokenTTL:     5 * time.Minute,
				ResetProofTTL:   10 * time.Minute,
				AccessSecret:    strings.Repeat("a", 32),
				RefreshSecret:   strings.Repeat("r", 32),
				MFASecret:       strings.Repeat("m", 32),
				ResetSecret:     strings.Repeat("p", 32),
			},
			Lockout: config.LockoutConfig{
				CaptchaThreshold: 10,
				LockThreshold:    3,
				LockDuration:     15 * time.Minute,
				CounterTTL:       24 * time.Hour,
			},
			Challenge: config.ChallengeConfig{CodeLength: 6, TTL: 10 * time.Minute, MaxMismatches: 3},
			Captcha:   config.CaptchaConfig{Secret: strings.Repeat("c", 32), MaxAge: 5 * time.Minute},
		},
		MFA: config.MFAConfig{TOTP: config.TOTPConfig{
			Issuer:   "idcore-test",
			Digits:   6,
			Period:   30,
			SetupTTL: 10 * time.Minute,
		}},
	}
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithConfig(t, testConfig())
}

func newHarnessWithConfig(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	rdb := &database.Redis{Client: client}
	log := logger.Nop()

	h := &harness{
		mr:         mr,
		clock:      newTestClock(),
		identities: newFakeIdentities(),
		notifier:   &fakeNotifier{},
		audit:      &fakeAudit{},
	}

	h.hasher, err = auth.NewHasher(auth.NewParams(1024, 1, 1))
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	h.tokens, err = auth.NewTokenService(cfg.Security.Tokens, auth.WithClock(h.clock.Now))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	auditor := NewAuditor(h.audit, log)
	markers := repository.NewMarkerStore(rdb)

	var captcha CaptchaVerifier
	if v := NewCaptchaVerifier(cfg.Security.Captcha, markers, log); v != nil {
		h.captcha = v.(*HMACCaptchaVerifier)
		h.captcha.now = h.clock.Now
		captcha = h.captcha
	}

	h.sessions = NewSessionService(repository.NewSessionStore(rdb), h.identities, h.tokens, auditor, cfg.Security.Tokens, log)
	h.sessions.now = h.clock.Now
	h.credentials = NewCredentialService(h.identities, h.hasher, h.sessions, auditor, cfg.Security.Password, log)
	h.guard = NewLoginGuard(repository.NewAttemptStore(rdb), captcha, cfg.Security.Lockout, log)
	h.guard.now = h.clock.Now
	h.challenges = NewChallengeManager(repository.NewChallengeStore(rdb), h.notifier, cfg.Security.Challenge, log)
	h.challenges.now = h.clock.Now
	h.mfa = NewMFAService(h.identities, h.tokens, h.challenges, markers, auditor, cfg, log)
	h.mfa.now = h.clock.Now
	h.auth = NewAuthService(h.credentials, h.guard, h.sessions, h.mfa, h.identities, auditor, log)
	h.auth.now = h.clock.Now
	h.reset = NewPasswordResetService(h.credentials, h.identities, h.challenges, h.guard, h.tokens, markers, auditor, cfg.Security.Tokens.ResetProofTTL, log)
	h.verify = NewEmailVerificationService(h.identities, h.identities, h.challenges, auditor, log)
	return h
}

// captchaProof mints a proof the way the CAPTCHA front end does
func (h *harness) captchaProof(identifier, nonce string, ttl time.Duration) string {
	expiry := h.clock.Now().Add(ttl).Unix()
	return fmt.Sprintf("%s.%d.%s", nonce, expiry, captchaMAC(h.captcha.secret, identifier, nonce, expiry))
}

// addIdentity stores an active client identity whose secret is testSecret
func (h *harness) addIdentity(t *testing.T, id, email string, opts ...func(*model.Identity)) *model.Identity {
	t.Helper()
	hash, err := h.hasher.Hash(testSecret)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	identity := &model.Identity{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleClient,
		Status:       model.IdentityStatusActive,
		CreatedAt:    h.clock.Now(),
		UpdatedAt:    h.clock.Now(),
	}
	for _, opt := range opts {
		opt(identity)
	}
	h.identities.put(identity)
	return identity
}

func withNationalID(nid string) func(*model.Identity) {
	return func(i *model.Identity) { i.NationalID = &nid }
}

func withPhone(phone string) func(*model.Identity) {
	return func(i *model.Identity) { i.Phone = &phone }
}
