package jwks

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ResolverOption is how options for the Resolver are set up.
type ResolverOption func(*Resolver) error

// WithAuthority sets the Azure AD authority host, e.g. a sovereign cloud.
// Default is https://login.microsoftonline.com.
func WithAuthority(authority *url.URL) ResolverOption {
	return func(r *Resolver) error {
		if authority == nil {
			return fmt.Errorf("authority URL cannot be nil")
		}
		if authority.Scheme == "" || authority.Host == "" {
			return fmt.Errorf("authority URL %q must be absolute", authority.String())
		}
		r.authority = authority
		return nil
	}
}

// WithHTTPClient sets the HTTP client used for discovery and JWKS requests.
// Its Timeout is replaced by the per-request timeout.
func WithHTTPClient(c *http.Client) ResolverOption {
	return func(r *Resolver) error {
		if c == nil {
			return fmt.Errorf("HTTP client cannot be nil")
		}
		r.httpClient = c
		return nil
	}
}

// WithCache sets where fetched key sets are stored. Default is a MemoryCache
// holding up to 100 tenants.
func WithCache(cache Cache) ResolverOption {
	return func(r *Resolver) error {
		if cache == nil {
			return fmt.Errorf("cache cannot be nil")
		}
		r.cache = cache
		return nil
	}
}

// WithCacheTTL sets how long a fetched key set is served without going back
// to the network. Default is 15 minutes.
func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) error {
		if ttl < 0 {
			return fmt.Errorf("cache TTL cannot be negative")
		}
		if ttl == 0 {
			ttl = defaultCacheTTL
		}
		r.cacheTTL = ttl
		return nil
	}
}

// WithTimeout bounds each HTTP request. Default is 10 seconds.
func WithTimeout(timeout time.Duration) ResolverOption {
	return func(r *Resolver) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive")
		}
		r.timeout = timeout
		return nil
	}
}

// WithRetryWait sets the backoff before the single retry. Default is 250ms.
func WithRetryWait(wait time.Duration) ResolverOption {
	return func(r *Resolver) error {
		if wait < 0 {
			return fmt.Errorf("retry wait cannot be negative")
		}
		r.retryWait = wait
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l Logger) ResolverOption {
	return func(r *Resolver) error {
		if l == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		r.logger = l
		return nil
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) ResolverOption {
	return func(r *Resolver) error {
		if m == nil {
			return fmt.Errorf("metrics cannot be nil")
		}
		r.metrics = m
		return nil
	}
}

// WithClock sets the time source used for freshness checks and FetchedAt.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) error {
		if now == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		r.now = now
		return nil
	}
}
