package jwks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix is prepended to the tenant to form a Redis key.
const DefaultRedisKeyPrefix = "aadtoken:jwks:"

// RedisCache is a Cache shared by every validator pointed at the same Redis.
// Key sets are stored as JSON and expire with the Redis key TTL.
type RedisCache struct {
	client    redis.Cmdable
	keyPrefix string
	ttl       time.Duration
}

// RedisCacheOption configures a RedisCache.
type RedisCacheOption func(*RedisCache)

// WithKeyPrefix sets the key prefix. Default is DefaultRedisKeyPrefix.
func WithKeyPrefix(prefix string) RedisCacheOption {
	return func(c *RedisCache) {
		c.keyPrefix = prefix
	}
}

// WithRedisTTL sets the Redis expiration of stored key sets. Default is 15
// minutes; zero keeps keys forever.
func WithRedisTTL(ttl time.Duration) RedisCacheOption {
	return func(c *RedisCache) {
		c.ttl = ttl
	}
}

// NewRedisCache wraps client as a Cache.
func NewRedisCache(client redis.Cmdable, opts ...RedisCacheOption) *RedisCache {
	c := &RedisCache{
		client:    client,
		keyPrefix: DefaultRedisKeyPrefix,
		ttl:       defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRedisCacheFromURL dials the Redis server described by a redis:// URL.
func NewRedisCacheFromURL(url string, opts ...RedisCacheOption) (*RedisCache, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return NewRedisCache(redis.NewClient(options), opts...), nil
}

func (c *RedisCache) key(tenant string) string {
	return c.keyPrefix + tenant
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, tenant string) (*JWKS, bool, error) {
	val, err := c.client.Get(ctx, c.key(tenant)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get %s: %w", c.key(tenant), err)
	}

	var set JWKS
	if err := json.Unmarshal(val, &set); err != nil {
		return nil, false, fmt.Errorf("could not decode cached JWKS for tenant %q: %w", tenant, err)
	}
	return &set, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, tenant string, set *JWKS) error {
	if set == nil {
		return fmt.Errorf("cannot cache a nil key set for tenant %q", tenant)
	}
	b, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("could not encode JWKS for tenant %q: %w", tenant, err)
	}
	if err := c.client.Set(ctx, c.key(tenant), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", c.key(tenant), err)
	}
	return nil
}
