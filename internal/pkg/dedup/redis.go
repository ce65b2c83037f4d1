package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps keys in Redis with an explicit expiry, so they survive
// process restarts.
type RedisStore struct {
	Client *redis.Client
	Prefix string
}

// NewRedisStore creates a RedisStore from connection options.
func NewRedisStore(opt *redis.Options, prefix string) *RedisStore {
	return &RedisStore{Client: redis.NewClient(opt), Prefix: prefix}
}

// MarkIfNew issues SET key 1 NX EX ttl.
func (s *RedisStore) MarkIfNew(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.Client.SetNX(ctx, s.Prefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark key: %w", err)
	}
	return ok, nil
}

// Seen reports whether the key exists.
func (s *RedisStore) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.Client.Exists(ctx, s.Prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check key: %w", err)
	}
	return n > 0, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.Client.Close()
}
