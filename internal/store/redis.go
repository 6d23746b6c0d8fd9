package store

import (
	"context"

	"finance-enricher/internal/redis"
)

// RedisStore backs the durable tier with a Redis server.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key)
	if err != nil {
		if redis.IsNotFound(err) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	// No redis-side expiration: the cache layer evicts by entry timestamp.
	return s.client.Set(ctx, key, value, 0)
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	return s.client.Delete(ctx, keys...)
}

func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	return s.client.Keys(ctx, prefix)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Health() error {
	return s.client.Health()
}

var _ Store = (*RedisStore)(nil)
