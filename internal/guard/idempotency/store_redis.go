package idempotency

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the guard with Redis so multiple service instances share
// claim state. SetNX gives the atomic check-and-set; claims carry no TTL
// because an executed operation is blocked permanently.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "govern:idem:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(operationID string) string {
	return s.prefix + operationID
}

func (s *RedisStore) Claim(ctx context.Context, operationID string) (bool, error) {
	return s.client.SetNX(ctx, s.key(operationID), "claimed", 0).Result()
}

func (s *RedisStore) Complete(ctx context.Context, operationID string) error {
	return s.client.Set(ctx, s.key(operationID), "executed", 0).Err()
}

func (s *RedisStore) Release(ctx context.Context, operationID string) error {
	return s.client.Del(ctx, s.key(operationID)).Err()
}
