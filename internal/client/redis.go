package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Get when the key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// ErrLockHeld is returned by Lock when another holder owns the lock.
var ErrLockHeld = errors.New("lock held by another owner")

// unlockScript deletes the lock only if the caller still owns it.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisClient wraps the go-redis client for the artifact memo cache and
// per-user write locks.
type RedisClient struct {
	client redis.UniversalClient
}

// NewRedisClient creates a new Redis client from URL.
// URL format: redis://[:password@]host:port/db
func NewRedisClient(url string) (*RedisClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// NewRedisClientFrom wraps an existing go-redis client.
func NewRedisClientFrom(c redis.UniversalClient) *RedisClient {
	return &RedisClient{client: c}
}

// Close closes the Redis connection.
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Get returns the raw value stored at key, or ErrCacheMiss.
func (r *RedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Set stores value at key with a TTL. A zero TTL keeps the key forever.
func (r *RedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Lock takes a lock on key for at most ttl, identified by token. It does not
// wait; a held lock returns ErrLockHeld.
func (r *RedisClient) Lock(ctx context.Context, key, token string, ttl time.Duration) error {
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// Unlock releases a lock taken with the same token.
func (r *RedisClient) Unlock(ctx context.Context, key, token string) error {
	return unlockScript.Run(ctx, r.client, []string{key}, token).Err()
}

// Ping checks Redis connectivity.
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
