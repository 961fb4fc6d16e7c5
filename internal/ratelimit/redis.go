package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis so counters are shared across
// instances. INCR is atomic on the server; the window expiry is set with
// NX so later increments never extend an open window.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore creates a Redis-backed counter store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, keyPrefix: "dotmac:ratelimit:"}
}

func (s *RedisStore) Get(ctx context.Context, key string) (int64, time.Time, error) {
	k := s.keyPrefix + key

	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, k)
	ttlCmd := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, time.Time{}, err
	}

	count, err := getCmd.Int64()
	if err == redis.Nil {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, err
	}

	ttl, err := ttlCmd.Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if ttl <= 0 {
		return 0, time.Time{}, nil
	}
	return count, time.Now().Add(ttl), nil
}

func (s *RedisStore) Increment(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	k := s.keyPrefix + key

	pipe := s.client.Pipeline()
	incrCmd := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, expiration)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incrCmd.Result()
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.keyPrefix+key).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
