package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bankportal/idcore/internal/database"
	"github.com/bankportal/idcore/internal/model"
	"github.com/redis/go-redis/v9"
)

// RotateOutcome is the result of a rotation attempt on a session chain
type RotateOutcome int

const (
	RotateOK RotateOutcome = iota
	RotateMissing
	RotateRevoked
	RotateExpired
	RotateReuseDetected
)

// rotateSessionLua compares the presented generation with the stored one and
// bumps it in the same step. A stale generation revokes the chain.
// KEYS[1] = session key
// ARGV[1] = presented generation
// ARGV[2] = now (unix ms)
//
// Returns {outcome, generation, chain expiry ms}
var rotateSessionLua = redis.NewScript(`
local s = redis.call('HMGET', KEYS[1], 'gen', 'revoked', 'exp')
if not s[1] then
  return {'missing', 0, 0}
end
if s[2] == '1' then
  return {'revoked', 0, 0}
end
if tonumber(s[3]) <= tonumber(ARGV[2]) then
  return {'expired', 0, 0}
end
if tonumber(s[1]) ~= tonumber(ARGV[1]) then
  redis.call('HSET', KEYS[1], 'revoked', '1')
  return {'reuse', 0, 0}
end
local g = redis.call('HINCRBY', KEYS[1], 'gen', 1)
return {'ok', g, tonumber(s[3])}
`)

// revokeSessionLua marks one chain revoked and drops it from the owner's index.
// KEYS[1] = session key
// ARGV[1] = identity index prefix
// ARGV[2] = chain id
var revokeSessionLua = redis.NewScript(`
local sub = redis.call('HGET', KEYS[1], 'sub')
if not sub then
  return 0
end
redis.call('HSET', KEYS[1], 'revoked', '1')
redis.call('SREM', ARGV[1] .. sub, ARGV[2])
return 1
`)

// revokeAllSessionsLua revokes every live chain in an identity's index.
// KEYS[1] = identity index key
// ARGV[1] = session key prefix
var revokeAllSessionsLua = redis.NewScript(`
local ids = redis.call('SMEMBERS', KEYS[1])
local n = 0
for _, id in ipairs(ids) do
  local k = ARGV[1] .. id
  if redis.call('EXISTS', k) == 1 then
    redis.call('HSET', k, 'revoked', '1')
    n = n + 1
  end
end
redis.call('DEL', KEYS[1])
return n
`)

const (
	sessionKeyPrefix         = "session:"
	identitySessionKeyPrefix = "identity_sessions:"
)

// SessionStore keeps refresh-token chains in Redis
type SessionStore struct {
	redis *database.Redis
}

// NewSessionStore creates a new SessionStore
func NewSessionStore(r *database.Redis) *SessionStore {
	return &SessionStore{redis: r}
}

// Create stores a new chain at generation sess.Generation
func (s *SessionStore) Create(ctx context.Context, sess *model.Session) error {
	ttl := sess.ExpiresAt.Sub(sess.IssuedAt)
	if ttl <= 0 {
		return fmt.Errorf("failed to create session: chain already expired")
	}

	key := sessionKeyPrefix + sess.ChainID
	indexKey := identitySessionKeyPrefix + sess.IdentityID

	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"sub":     sess.IdentityID,
		"role":    string(sess.Role),
		"gen":     sess.Generation,
		"revoked": "0",
		"iat":     sess.IssuedAt.UnixMilli(),
		"exp":     sess.ExpiresAt.UnixMilli(),
	})
	pipe.PExpire(ctx, key, ttl)
	pipe.SAdd(ctx, indexKey, sess.ChainID)
	pipe.PExpire(ctx, indexKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Get loads a chain
func (s *SessionStore) Get(ctx context.Context, chainID string) (*model.Session, error) {
	vals, err := s.redis.HGetAll(ctx, sessionKeyPrefix+chainID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}

	gen, _ := strconv.ParseInt(vals["gen"], 10, 64)
	iat, _ := strconv.ParseInt(vals["iat"], 10, 64)
	exp, _ := strconv.ParseInt(vals["exp"], 10, 64)
	return &model.Session{
		ChainID:    chainID,
		IdentityID: vals["sub"],
		Role:       model.Role(vals["role"]),
		Generation: gen,
		Revoked:    vals["revoked"] == "1",
		IssuedAt:   time.UnixMilli(iat),
		ExpiresAt:  time.UnixMilli(exp),
	}, nil
}

// Rotate atomically advances a chain from generation presented to presented+1.
// On success it returns the new generation and the chain's absolute expiry.
func (s *SessionStore) Rotate(ctx context.Context, chainID string, presented int64, now time.Time) (RotateOutcome, int64, time.Time, error) {
	res, err := rotateSessionLua.Run(ctx, s.redis, []string{sessionKeyPrefix + chainID},
		presented, now.UnixMilli(),
	).Slice()
	if err != nil {
		return RotateMissing, 0, time.Time{}, fmt.Errorf("failed to rotate session: %w", err)
	}
	if len(res) != 3 {
		return RotateMissing, 0, time.Time{}, errors.New("failed to rotate session: unexpected script result")
	}

	status, _ := res[0].(string)
	gen, _ := res[1].(int64)
	exp, _ := res[2].(int64)
	switch status {
	case "ok":
		return RotateOK, gen, time.UnixMilli(exp), nil
	case "revoked":
		return RotateRevoked, 0, time.Time{}, nil
	case "expired":
		return RotateExpired, 0, time.Time{}, nil
	case "reuse":
		return RotateReuseDetected, 0, time.Time{}, nil
	default:
		return RotateMissing, 0, time.Time{}, nil
	}
}

// Revoke marks a chain revoked; revoking an unknown chain is not an error
func (s *SessionStore) Revoke(ctx context.Context, chainID string) error {
	err := revokeSessionLua.Run(ctx, s.redis, []string{sessionKeyPrefix + chainID},
		identitySessionKeyPrefix, chainID,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// RevokeAll revokes every chain of an identity and returns how many were live
func (s *SessionStore) RevokeAll(ctx context.Context, identityID string) (int, error) {
	n, err := revokeAllSessionsLua.Run(ctx, s.redis, []string{identitySessionKeyPrefix + identityID},
		sessionKeyPrefix,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return n, nil
}
