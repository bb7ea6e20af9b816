package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCountCache is a Redis-backed CountCache shared across processes
type RedisCountCache struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisConfig holds the Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisCountCache connects to Redis and verifies the connection
func NewRedisCountCache(config RedisConfig) (*RedisCountCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewRedisCountCacheWithClient(client, config.TTL), nil
}

// NewRedisCountCacheWithClient wraps an existing client
func NewRedisCountCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCountCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCountCache{client: client, ttl: ttl}
}

// Get returns the cached total if present
func (c *RedisCountCache) Get(ctx context.Context, resourceType string) (int, bool, error) {
	value, err := c.client.Get(ctx, key(resourceType)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, err
	}

	total, err := strconv.Atoi(value)
	if err != nil {
		// A corrupt entry behaves like a miss
		return 0, false, nil
	}
	return total, true, nil
}

// Set stores the total with the configured TTL
func (c *RedisCountCache) Set(ctx context.Context, resourceType string, total int) error {
	return c.client.Set(ctx, key(resourceType), strconv.Itoa(total), c.ttl).Err()
}

// Invalidate drops the entry
func (c *RedisCountCache) Invalidate(ctx context.Context, resourceType string) error {
	return c.client.Del(ctx, key(resourceType)).Err()
}
