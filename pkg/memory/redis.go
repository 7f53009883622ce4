package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "threatgate:memory:"

// RedisStore keeps violation history in Redis so multiple gateway instances
// share one view of an identity's streak. Atomicity per identity comes from
// Redis executing commands for a key serially; decay comes from the key TTL,
// which each new violation refreshes.
type RedisStore struct {
	client *redis.Client
	window time.Duration
}

// NewRedisStore creates a Redis-backed store. Callers should Ping the
// client first and fall back to the in-memory store if Redis is down.
func NewRedisStore(client *redis.Client, window time.Duration) *RedisStore {
	if window <= 0 {
		window = DefaultDecayWindow
	}
	return &RedisStore{client: client, window: window}
}

func redisKey(identity string) string {
	return redisKeyPrefix + identity
}

// Read returns the identity's current violation count. Expired keys no
// longer exist, so decay is implicit.
func (s *RedisStore) Read(ctx context.Context, identity string) (Record, bool, error) {
	count, err := s.client.Get(ctx, redisKey(identity)).Int()
	if err == redis.Nil {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("memory read: %w", err)
	}
	return Record{Identity: identity, ViolationCount: count}, true, nil
}

// RecordAndEscalate increments the violation counter and refreshes its TTL
// in one pipeline. INCR is atomic in Redis, so two concurrent violations
// always produce distinct consecutive counts.
func (s *RedisStore) RecordAndEscalate(ctx context.Context, identity string, violated bool) (int, error) {
	key := redisKey(identity)

	if !violated {
		count, err := s.client.Get(ctx, key).Int()
		if err == redis.Nil {
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("memory read: %w", err)
		}
		return count, nil
	}

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.PExpire(ctx, key, s.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("memory update: %w", err)
	}
	return int(incr.Val()), nil
}
