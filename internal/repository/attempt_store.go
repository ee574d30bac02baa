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

// recordFailureLua increments the failure counter and sets the lock once the
// threshold is reached.
// KEYS[1] = attempt key
// ARGV[1] = now (unix ms)
// ARGV[2] = lock threshold
// ARGV[3] = lock duration (ms)
// ARGV[4] = key ttl (ms)
//
// Returns {failures, first failure ms, locked until ms or 0}
var recordFailureLua = redis.NewScript(`
local now = tonumber(ARGV[1])
local f = redis.call('HINCRBY', KEYS[1], 'failures', 1)
if f == 1 then
  redis.call('HSET', KEYS[1], 'first', now)
end
if f >= tonumber(ARGV[2]) then
  local current = tonumber(redis.call('HGET', KEYS[1], 'locked_until') or '0')
  if current <= now then
    redis.call('HSET', KEYS[1], 'locked_until', now + tonumber(ARGV[3]))
  end
end
redis.call('PEXPIRE', KEYS[1], ARGV[4])
local first = tonumber(redis.call('HGET', KEYS[1], 'first') or '0')
local locked = tonumber(redis.call('HGET', KEYS[1], 'locked_until') or '0')
return {f, first, locked}
`)

const attemptKeyPrefix = "login_attempts:"

// AttemptStore keeps login failure counters per normalized identifier
type AttemptStore struct {
	redis *database.Redis
}

// NewAttemptStore creates a new AttemptStore
func NewAttemptStore(r *database.Redis) *AttemptStore {
	return &AttemptStore{redis: r}
}

// Get returns the current state; an absent key is a zero state
func (s *AttemptStore) Get(ctx context.Context, identifier string) (*model.AttemptState, error) {
	vals, err := s.redis.HGetAll(ctx, attemptKeyPrefix+identifier).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt state: %w", err)
	}

	state := &model.AttemptState{}
	if len(vals) == 0 {
		return state, nil
	}
	state.Failures, _ = strconv.Atoi(vals["failures"])
	state.FirstFailureAt = millisPtr(vals["first"])
	state.LockedUntil = millisPtr(vals["locked_until"])
	return state, nil
}

// RecordFailure counts one failure and returns the resulting state
func (s *AttemptStore) RecordFailure(ctx context.Context, identifier string, now time.Time, lockThreshold int, lockDuration, ttl time.Duration) (*model.AttemptState, error) {
	if ttl < lockDuration {
		ttl = lockDuration
	}
	res, err := recordFailureLua.Run(ctx, s.redis, []string{attemptKeyPrefix + identifier},
		now.UnixMilli(), lockThreshold, lockDuration.Milliseconds(), ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to record login failure: %w", err)
	}
	if len(res) != 3 {
		return nil, errors.New("failed to record login failure: unexpected script result")
	}

	state := &model.AttemptState{Failures: int(res[0])}
	if res[1] > 0 {
		t := time.UnixMilli(res[1])
		state.FirstFailureAt = &t
	}
	if res[2] > 0 {
		t := time.UnixMilli(res[2])
		state.LockedUntil = &t
	}
	return state, nil
}

// Reset clears the counter and any lock
func (s *AttemptStore) Reset(ctx context.Context, identifiers ...string) error {
	if len(identifiers) == 0 {
		return nil
	}
	keys := make([]string, len(identifiers))
	for i, id := range identifiers {
		keys[i] = attemptKeyPrefix + id
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to reset attempt state: %w", err)
	}
	return nil
}

func millisPtr(v string) *time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms)
	return &t
}
