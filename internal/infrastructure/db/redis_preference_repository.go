package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/damon-houk/waybill-pricing/internal/domain/repository"
	"github.com/redis/go-redis/v9"
)

// RedisPreferenceRepository stores preferences in Redis so several
// instances share the same selection
type RedisPreferenceRepository struct {
	client *redis.Client
	prefix string
}

var _ repository.PreferenceRepository = (*RedisPreferenceRepository)(nil)

// NewRedisPreferenceRepository creates a repository on an existing client
func NewRedisPreferenceRepository(client *redis.Client) *RedisPreferenceRepository {
	return &RedisPreferenceRepository{client: client, prefix: preferencePrefix}
}

// NewRedisClient opens a client and checks the server is reachable
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func (r *RedisPreferenceRepository) key(key string) string {
	return r.prefix + key
}

// Get retrieves the value stored under key
func (r *RedisPreferenceRepository) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to retrieve preference %s: %w", key, err)
	}
	return val, nil
}

// Set stores value under key with no expiry
func (r *RedisPreferenceRepository) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to store preference %s: %w", key, err)
	}
	return nil
}
