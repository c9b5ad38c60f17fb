package dedup

import (
	"context"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces the keys written to Redis.
const DefaultPrefix = "shinimi:mid:"

// RedisStore keeps ids in Redis so that several bot processes share them.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *backend.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// DialRedis connects and pings Redis.
func DialRedis(ctx context.Context, opts Options) (*RedisStore, error) {
	client := backend.NewClient(&backend.Options{
		Addr:     opts.RedisAddr,
		Password: opts.RedisPassword,
		DB:       opts.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.RedisAddr, err)
	}
	return NewRedisStore(client, opts.Prefix, opts.TTL), nil
}

// Mark implements Store using SET NX PX.
func (r *RedisStore) Mark(ctx context.Context, id string) (bool, error) {
	stored, err := r.client.SetNX(ctx, r.prefix+id, time.Now().Unix(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record message id: %w", err)
	}
	return !stored, nil
}

// Close implements Store.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
