package server

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisAttemptStore counts attempts with an INCR per key and a TTL equal to
// the window, so throttling decisions are shared across replicas.
type redisAttemptStore struct {
	client  redis.UniversalClient
	timeout time.Duration
}

func newRedisAttemptStore(addr, password string, timeout time.Duration) *redisAttemptStore {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{addr},
		Password:     password,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
	return &redisAttemptStore{client: client, timeout: timeout}
}

func (s *redisAttemptStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("count login attempt: %w", err)
	}

	count := incr.Val()
	if count <= int64(limit) {
		return true, 0, nil
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return false, ttl, nil
}

func (s *redisAttemptStore) Close() error {
	return s.client.Close()
}
