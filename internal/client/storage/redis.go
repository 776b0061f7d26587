package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisTimeout = 5 * time.Second
	redisTokenKey       = "schoolbus:" + TokenKey
)

// RedisConfig captures the settings for establishing a Redis connection.
type RedisConfig struct {
	Addr    string
	DB      int
	Timeout time.Duration
}

// ConnectRedis initialises a Redis client and validates connectivity with a ping.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}

// redisKV is the part of the go-redis command set RedisStore uses.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps the token under a single Redis key without expiry.
type RedisStore struct {
	kv  redisKV
	key string
}

// NewRedisStore wraps a go-redis client (or any redisKV).
func NewRedisStore(kv redisKV) *RedisStore {
	return &RedisStore{kv: kv, key: redisTokenKey}
}

// Get implements TokenStore.
func (r *RedisStore) Get(ctx context.Context) (string, bool, error) {
	token, err := r.kv.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get token: %w", err)
	}
	return token, true, nil
}

// Set implements TokenStore.
func (r *RedisStore) Set(ctx context.Context, token string) error {
	if err := r.kv.Set(ctx, r.key, token, 0).Err(); err != nil {
		return fmt.Errorf("redis set token: %w", err)
	}
	return nil
}

// Delete implements TokenStore.
func (r *RedisStore) Delete(ctx context.Context) error {
	if err := r.kv.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis delete token: %w", err)
	}
	return nil
}
