package repository

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/bankportal/idcore/internal/database"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*database.Redis, *miniredis.Miniredis) {
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
	return &database.Redis{Client: client}, mr
}
