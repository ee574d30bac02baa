package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bankportal/idcore/internal/database"
	"github.com/redis/go-redis/v9"
)

// MarkerStore records single-use token ids and short-lived pending secrets
type MarkerStore struct {
	redis *database.Redis
}

// NewMarkerStore creates a new MarkerStore
func NewMarkerStore(r *database.Redis) *MarkerStore {
	return &MarkerStore{redis: r}
}

// ConsumeOnce returns true the first time it sees namespace/id within ttl
func (s *MarkerStore) ConsumeOnce(ctx context.Context, namespace, id string, ttl time.Duration) (bool, error) {
	ok, err := s.redis.SetNX(ctx, "used:"+namespace+":"+id, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record token use: %w", err)
	}
	return ok, nil
}

// Release forgets a ConsumeOnce mark so the id can be used again
func (s *MarkerStore) Release(ctx context.Context, namespace, id string) error {
	if err := s.redis.Del(ctx, "used:"+namespace+":"+id).Err(); err != nil {
		return fmt.Errorf("failed to release token use: %w", err)
	}
	return nil
}

// Increment bumps the counter for namespace/id and returns the new value.
// The counter lives for ttl from its first increment.
func (s *MarkerStore) Increment(ctx context.Context, namespace, id string, ttl time.Duration) (int64, error) {
	key := "count:" + namespace + ":" + id
	n, err := s.redis.Client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	if n == 1 {
		if err := s.redis.Client.PExpire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("failed to set counter ttl: %w", err)
		}
	}
	return n, nil
}

// PutPending stores a value that must be confirmed before ttl elapses
func (s *MarkerStore) PutPending(ctx context.Context, namespace, id, value string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, "pending:"+namespace+":"+id, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store pending value: %w", err)
	}
	return nil
}

// GetPending reads a pending value
func (s *MarkerStore) GetPending(ctx context.Context, namespace, id string) (string, error) {
	v, err := s.redis.Get(ctx, "pending:"+namespace+":"+id).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get pending value: %w", err)
	}
	return v, nil
}

// DeletePending drops a pending value
func (s *MarkerStore) DeletePending(ctx context.Context, namespace, id string) error {
	if err := s.redis.Del(ctx, "pending:"+namespace+":"+id).Err(); err != nil {
		return fmt.Errorf("failed to delete pending value: %w", err)
	}
	return nil
}
