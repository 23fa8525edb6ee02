/*
Package jwks resolves the RSA signing keys that Azure AD publishes for each
tenant.

# Resolution

For a tenant the Resolver fetches

	{authority}/{tenant}/v2.0/.well-known/openid-configuration

reads its jwks_uri, fetches that key set and keeps only the RSA keys. The
result is stored in a Cache and served from there until the cache TTL passes.

	resolver, err := jwks.NewResolver()
	key, set, err := resolver.ResolveKey(ctx, "contoso.onmicrosoft.com", kid)

ResolveKey tolerates key rotation: a kid missing from the cached set triggers
exactly one forced Refresh before core.ErrUnknownKeyID is returned.

# Failures

Every HTTP request is retried once after a short backoff on network errors,
429 and 5xx answers. A failed fetch matches core.ErrJWKSFetch; a fetch that
ran out of time matches core.ErrTimeout as well.

# Concurrency

Callers that need the same tenant at the same time share one fetch. The
fetch runs under its own deadline, so a caller giving up early does not
cancel it for the others.

# Caches

MemoryCache keeps up to 100 tenants (least recently used first out).
RedisCache lets a fleet of validators share fetched key sets:

	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	resolver, err := jwks.NewResolver(jwks.WithCache(jwks.NewRedisCache(rdb)))
*/
package jwks
