package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bankportal/idcore/internal/database"
	"github.com/bankportal/idcore/internal/model"
	"github.com/redis/go-redis/v9"
)

// checkChallengeLua verifies a code hash against a stored challenge.
// KEYS[1] = challenge key
// ARGV[1] = expected purpose
// ARGV[2] = submitted code hash
// ARGV[3] = now (unix ms)
// ARGV[4] = max mismatches
var checkChallengeLua = redis.NewScript(`
local c = redis.call('HMGET', KEYS[1], 'purpose', 'hash', 'exp', 'consumed', 'mismatches')
if not c[1] or c[1] ~= ARGV[1] then
  return 'missing'
end
if c[4] == '1' then
  return 'consumed'
end
local limit = tonumber(ARGV[4])
if tonumber(c[5]) >= limit then
  return 'invalidated'
end
if tonumber(c[3]) <= tonumber(ARGV[3]) then
  return 'expired'
end
if c[2] ~= ARGV[2] then
  local m = redis.call('HINCRBY', KEYS[1], 'mismatches', 1)
  if m >= limit then
    return 'invalidated'
  end
  return 'mismatch'
end
redis.call('HSET', KEYS[1], 'consumed', '1')
return 'ok'
`)

const (
	challengeKeyPrefix        = "challenge:"
	challengeSubjectKeyPrefix = "challenge_subject:"
	// challenges outlive their expiry briefly so late submissions read as expired
	challengeRetention = 10 * time.Minute
)

// ChallengeStore keeps one-time code challenges in Redis
type ChallengeStore struct {
	redis *database.Redis
}

// NewChallengeStore creates a new ChallengeStore
func NewChallengeStore(r *database.Redis) *ChallengeStore {
	return &ChallengeStore{redis: r}
}

func subjectKey(purpose model.ChallengePurpose, subject string) string {
	return challengeSubjectKeyPrefix + string(purpose) + ":" + subject
}

// Save stores a challenge and makes it the latest for its subject and purpose
func (s *ChallengeStore) Save(ctx context.Context, c *model.Challenge) error {
	key := challengeKeyPrefix + c.ID
	keep := c.ExpiresAt.Sub(c.CreatedAt) + challengeRetention

	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"subject":    c.Subject,
		"purpose":    string(c.Purpose),
		"hash":       c.CodeHash,
		"channel":    string(c.Channel),
		"mismatches": 0,
		"consumed":   "0",
		"created":    c.CreatedAt.UnixMilli(),
		"exp":        c.ExpiresAt.UnixMilli(),
	})
	pipe.PExpire(ctx, key, keep)
	pipe.Set(ctx, subjectKey(c.Purpose, c.Subject), c.ID, keep)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save challenge: %w", err)
	}
	return nil
}

// LatestID returns the id of the newest challenge for a subject and purpose
func (s *ChallengeStore) LatestID(ctx context.Context, purpose model.ChallengePurpose, subject string) (string, error) {
	id, err := s.redis.Get(ctx, subjectKey(purpose, subject)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest challenge: %w", err)
	}
	return id, nil
}

// Check atomically verifies codeHash and consumes the challenge on success
func (s *ChallengeStore) Check(ctx context.Context, id string, purpose model.ChallengePurpose, codeHash string, now time.Time, maxMismatches int) (model.ChallengeOutcome, error) {
	res, err := checkChallengeLua.Run(ctx, s.redis, []string{challengeKeyPrefix + id},
		string(purpose), codeHash, now.UnixMilli(), maxMismatches,
	).Text()
	if err != nil {
		return model.ChallengeMissing, fmt.Errorf("failed to check challenge: %w", err)
	}
	return model.ChallengeOutcome(res), nil
}
