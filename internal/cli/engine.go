package cli

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"

	aadtoken "github.com/entratools/aad-token-validator"
	"github.com/entratools/aad-token-validator/jwks"
)

// newEngine builds an engine from the loaded config. The returned function
// closes the Redis connection when one was opened and flushes the engine
// logger.
func (a *app) newEngine(opts ...aadtoken.Option) (*aadtoken.Engine, func(), error) {
	cfg := a.cfg

	authority, err := url.Parse(cfg.Authority)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid authority: %w", err)
	}

	logger, flush, err := engineLogger(cfg, a.log, a.streams.Err)
	if err != nil {
		return nil, nil, err
	}

	release := flush
	var cache jwks.Cache
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		cache = jwks.NewRedisCache(client, jwks.WithKeyPrefix(cfg.RedisPrefix), jwks.WithRedisTTL(cfg.CacheTTL))
		release = func() {
			_ = client.Close()
			flush()
		}
		a.log.WithField("addr", cfg.RedisAddr).Debug("caching signing keys in redis")
	} else {
		memory, err := jwks.NewMemoryCache(jwks.WithMaxTenants(cfg.MaxTenants), jwks.WithEntryTTL(cfg.CacheTTL))
		if err != nil {
			release()
			return nil, nil, err
		}
		cache = memory
	}

	base := []aadtoken.Option{
		aadtoken.WithLogger(logger),
		aadtoken.WithDefaultClockSkew(cfg.ClockSkew),
		aadtoken.WithResolverOptions(
			jwks.WithAuthority(authority),
			jwks.WithCache(cache),
			jwks.WithCacheTTL(cfg.CacheTTL),
			jwks.WithTimeout(cfg.HTTPTimeout),
		),
	}
	engine, err := aadtoken.New(append(base, opts...)...)
	if err != nil {
		release()
		return nil, nil, err
	}
	return engine, release, nil
}

// tenantOverride turns the configured tenant into an explicit override.
// "common" means the tenant is taken from the token.
func tenantOverride(tenant string) string {
	tenant = strings.TrimSpace(tenant)
	if strings.EqualFold(tenant, jwks.CommonTenant) {
		return ""
	}
	return tenant
}
