package redis

import (
	"context"
	"errors"
	"fmt"

	"velancis-storefront/internal/storage"

	goredis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "storefront:"

// StateRepository keeps the gateway's JSON documents in Redis without expiry.
// It implements storage.Storage.
type StateRepository struct {
	client goredis.UniversalClient
	prefix string
}

// NewStateRepository creates a Redis-backed state store. An empty prefix uses "storefront:".
func NewStateRepository(client goredis.UniversalClient, prefix string) *StateRepository {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &StateRepository{
		client: client,
		prefix: prefix,
	}
}

func (r *StateRepository) key(k string) string {
	return r.prefix + k
}

func (r *StateRepository) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state %s: %w", key, err)
	}
	return val, nil
}

func (r *StateRepository) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}
	return nil
}

func (r *StateRepository) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete state %s: %w", key, err)
	}
	return nil
}

func (r *StateRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
