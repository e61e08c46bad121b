package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// opTimeout bounds every quota store round trip so a slow Redis cannot
// stall the request path.
const opTimeout = 500 * time.Millisecond

// RedisCounterStore implements CounterStore on a Redis instance.
type RedisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore connects to Redis using a URL such as
// redis://host:6379/0.
func NewRedisCounterStore(url string) (*RedisCounterStore, error) {
	opt, errParse := redis.ParseURL(url)
	if errParse != nil {
		return nil, fmt.Errorf("quota: parse redis url: %w", errParse)
	}
	return &RedisCounterStore{client: redis.NewClient(opt)}, nil
}

// IncrementAndGet atomically increments key and returns the new value.
// ExpireNX sets the window TTL only on the increment that created the key,
// so the window expires at its original boundary regardless of later hits.
func (s *RedisCounterStore) IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, ttl)
	if _, errExec := pipe.Exec(ctx); errExec != nil {
		return 0, fmt.Errorf("quota: increment %s: %w", key, errExec)
	}
	return incr.Val(), nil
}

// Get returns the counter value for key, or zero when absent.
func (s *RedisCounterStore) Get(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	val, errGet := s.client.Get(ctx, key).Int64()
	if errGet != nil {
		if errors.Is(errGet, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("quota: get %s: %w", key, errGet)
	}
	return val, nil
}

// Ping verifies the Redis connection.
func (s *RedisCounterStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying Redis client.
func (s *RedisCounterStore) Close() error {
	return s.client.Close()
}
