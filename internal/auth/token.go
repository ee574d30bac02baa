package auth

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/bankportal/idcore/internal/config"
	"github.com/bankportal/idcore/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// TokenKind separates the token families. Each kind has its own key and
// must match the "typ" claim on verification.
type TokenKind string

const (
	KindAccess     TokenKind = "access"
	KindRefresh    TokenKind = "refresh"
	KindMFA        TokenKind = "mfa"
	KindResetProof TokenKind = "reset_proof"
)

// Claims is the claim set shared by every token kind. Fields that do not
// apply to a kind stay empty.
type Claims struct {
	jwt.RegisteredClaims
	Kind       TokenKind  `json:"typ"`
	Role       model.Role `json:"role,omitempty"`
	ChainID    string     `json:"cid,omitempty"`
	Generation int64      `json:"gen,omitempty"`
}

// Issuer signs tokens of a given kind
type Issuer interface {
	Issue(kind TokenKind, claims Claims, ttl time.Duration) (string, error)
}

// Verifier validates tokens of a given kind
type Verifier interface {
	Verify(kind TokenKind, token string) (*Claims, error)
}

type keyPair struct {
	sign   interface{}
	verify interface{}
}

// TokenService handles JWT creation and validation for all token kinds
type TokenService struct {
	cfg    config.TokenConfig
	method jwt.SigningMethod
	keys   map[TokenKind]keyPair
	now    func() time.Time
}

// TokenOption customizes a TokenService
type TokenOption func(*TokenService)

// WithClock overrides the time source used for iat/exp and validation
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService creates a TokenService. HS256 uses each configured secret
// directly; EdDSA derives an Ed25519 key pair from each secret.
func NewTokenService(cfg config.TokenConfig, opts ...TokenOption) (*TokenService, error) {
	secrets := map[TokenKind]string{
		KindAccess:     cfg.AccessSecret,
		KindRefresh:    cfg.RefreshSecret,
		KindMFA:        cfg.MFASecret,
		KindResetProof: cfg.ResetSecret,
	}

	s := &TokenService{cfg: cfg, keys: make(map[TokenKind]keyPair, len(secrets)), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	switch cfg.SigningAlgorithm {
	case "", "HS256":
		s.method = jwt.SigningMethodHS256
		for kind, secret := range secrets {
			if secret == "" {
				return nil, fmt.Errorf("missing %s token secret", kind)
			}
			s.keys[kind] = keyPair{sign: []byte(secret), verify: []byte(secret)}
		}
	case "EdDSA":
		s.method = jwt.SigningMethodEdDSA
		for kind, secret := range secrets {
			if secret == "" {
				return nil, fmt.Errorf("missing %s token secret", kind)
			}
			seed := sha256.Sum256([]byte(secret))
			sk := ed25519.NewKeyFromSeed(seed[:])
			s.keys[kind] = keyPair{sign: sk, verify: sk.Public()}
		}
	default:
		return nil, fmt.Errorf("unsupported signing algorithm: %s", cfg.SigningAlgorithm)
	}

	return s, nil
}

// Issue signs claims as a token of kind, valid for ttl from now. Registered
// claims iss, iat, exp and jti are filled in; a preset jti is kept.
func (s *TokenService) Issue(kind TokenKind, claims Claims, ttl time.Duration) (string, error) {
	keys, ok := s.keys[kind]
	if !ok {
		return "", fmt.Errorf("unknown token kind: %s", kind)
	}

	now := s.now()
	claims.Kind = kind
	claims.Issuer = s.cfg.Issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if claims.ID == "" {
		claims.ID = uuid.New().String()
	}

	token := jwt.NewWithClaims(s.method, claims)
	signed, err := token.SignedString(keys.sign)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify validates signature, issuer, expiry and kind
func (s *TokenService) Verify(kind TokenKind, tokenString string) (*Claims, error) {
	keys, ok := s.keys[kind]
	if !ok {
		return nil, ErrTokenInvalid
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return keys.verify, nil },
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid || claims.Kind != kind || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
