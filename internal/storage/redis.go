package storage

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore commits counters to Redis. Each commit is a transactional
// INCR + EXPIRE pipeline so the counter and its expiry move together.
type RedisStore struct {
	client *redis.Client
}

// NewRedis connects to Redis and verifies connectivity before returning.
func NewRedis(ctx context.Context, addr, password string, db int, connectTimeout time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: connectTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// IncrementWithTTL atomically increments the key and refreshes its expiry.
func (s *RedisStore) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Ping verifies connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client's connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
