package jwks

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache stores key sets by tenant. Implementations must be safe for
// concurrent use. Freshness is decided by the Resolver from
// JWKS.FetchedAt; a cache only has to remember what it was given.
type Cache interface {
	// Get returns the stored key set for tenant. ok is false on a miss.
	Get(ctx context.Context, tenant string) (set *JWKS, ok bool, err error)

	// Set stores the key set for tenant, replacing any previous one.
	Set(ctx context.Context, tenant string, set *JWKS) error
}

const (
	defaultMaxTenants = 100
	defaultCacheTTL   = 15 * time.Minute
)

// MemoryCache is an in-process Cache bounded to a number of tenants. The
// least recently used tenant is evicted first, and entries older than the
// TTL are dropped on read.
type MemoryCache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, *JWKS]
	ttl     time.Duration
	now     func() time.Time
}

// MemoryCacheOption configures a MemoryCache.
type MemoryCacheOption func(*memoryCacheConfig) error

type memoryCacheConfig struct {
	maxTenants int
	ttl        time.Duration
	now        func() time.Time
}

// WithMaxTenants bounds the number of tenants kept. Default is 100.
func WithMaxTenants(n int) MemoryCacheOption {
	return func(c *memoryCacheConfig) error {
		if n <= 0 {
			return fmt.Errorf("max tenants must be positive, got %d", n)
		}
		c.maxTenants = n
		return nil
	}
}

// WithEntryTTL sets how long an entry is retained. Default is 15 minutes.
func WithEntryTTL(ttl time.Duration) MemoryCacheOption {
	return func(c *memoryCacheConfig) error {
		if ttl <= 0 {
			return fmt.Errorf("entry TTL must be positive, got %s", ttl)
		}
		c.ttl = ttl
		return nil
	}
}

// WithCacheClock sets the time source used for TTL checks.
func WithCacheClock(now func() time.Time) MemoryCacheOption {
	return func(c *memoryCacheConfig) error {
		if now == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		c.now = now
		return nil
	}
}

// NewMemoryCache builds a MemoryCache.
func NewMemoryCache(opts ...MemoryCacheOption) (*MemoryCache, error) {
	cfg := &memoryCacheConfig{
		maxTenants: defaultMaxTenants,
		ttl:        defaultCacheTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	entries, err := lru.New[string, *JWKS](cfg.maxTenants)
	if err != nil {
		return nil, fmt.Errorf("could not create LRU: %w", err)
	}

	return &MemoryCache{entries: entries, ttl: cfg.ttl, now: cfg.now}, nil
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, tenant string) (*JWKS, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.entries.Get(tenant)
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(set.FetchedAt.Add(c.ttl)) {
		c.entries.Remove(tenant)
		return nil, false, nil
	}
	return set, true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, tenant string, set *JWKS) error {
	if set == nil {
		return fmt.Errorf("cannot cache a nil key set for tenant %q", tenant)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Add(tenant, set)
	return nil
}

// Len returns the number of tenants currently held.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
