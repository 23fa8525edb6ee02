package jwks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/singleflight"

	"github.com/entratools/aad-token-validator/core"
	"github.com/entratools/aad-token-validator/internal/oidc"
)

const (
	// DefaultAuthority is the Azure AD public cloud login host.
	DefaultAuthority = "https://login.microsoftonline.com"

	// CommonTenant is used when no tenant is known.
	CommonTenant = "common"

	defaultTimeout   = 10 * time.Second
	defaultRetryWait = 250 * time.Millisecond

	// maxJWKSSize bounds the JWKS response body. Azure AD key sets are a few KB.
	maxJWKSSize = 1024 * 1024
)

// Metric names reported by the Resolver.
const (
	MetricJWKSFetchTotal   = "aadtoken_jwks_fetch_total"
	MetricJWKSCacheHits    = "aadtoken_jwks_cache_hits_total"
	MetricJWKSFetchSeconds = "aadtoken_jwks_fetch_seconds"
)

// Logger is the logging interface the Resolver writes to. The loggers of the
// aadtoken package satisfy it.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Metrics is the metrics interface the Resolver reports to.
type Metrics interface {
	IncCounter(name string, tags map[string]string)
	ObserveHistogram(name string, value float64, tags map[string]string)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Warnf(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, map[string]string)                {}
func (noopMetrics) ObserveHistogram(string, float64, map[string]string) {}

// Resolver finds the signing keys of Azure AD tenants. It discovers each
// tenant's jwks_uri, fetches the key set, and keeps it in a Cache until the
// cache TTL passes.
//
// A Resolver is safe for concurrent use. Concurrent callers that need the
// same tenant share one fetch.
type Resolver struct {
	authority  *url.URL
	httpClient *http.Client
	client     *http.Client
	cache      Cache
	cacheTTL   time.Duration
	timeout    time.Duration
	retryWait  time.Duration
	logger     Logger
	metrics    Metrics
	now        func() time.Time

	group singleflight.Group
}

// NewResolver builds and returns a new *Resolver.
//
// Example:
//
//	resolver, err := jwks.NewResolver(
//	    jwks.WithCacheTTL(30*time.Minute),
//	    jwks.WithTimeout(5*time.Second),
//	)
func NewResolver(opts ...ResolverOption) (*Resolver, error) {
	authority, err := url.Parse(DefaultAuthority)
	if err != nil {
		return nil, err
	}

	r := &Resolver{
		authority:  authority,
		httpClient: &http.Client{},
		cacheTTL:   defaultCacheTTL,
		timeout:    defaultTimeout,
		retryWait:  defaultRetryWait,
		logger:     noopLogger{},
		metrics:    noopMetrics{},
		now:        time.Now,
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	if r.cache == nil {
		cache, err := NewMemoryCache(WithEntryTTL(r.cacheTTL), WithCacheClock(r.now))
		if err != nil {
			return nil, err
		}
		r.cache = cache
	}

	base := *r.httpClient
	base.Timeout = r.timeout

	retrying := retryablehttp.NewClient()
	retrying.HTTPClient = &base
	retrying.RetryMax = 1
	retrying.RetryWaitMin = r.retryWait
	retrying.RetryWaitMax = r.retryWait
	retrying.Logger = nil
	r.client = retrying.StandardClient()

	return r, nil
}

// Resolve returns the key set of tenant, from the cache when it is fresh and
// from the network otherwise. An empty tenant means "common".
func (r *Resolver) Resolve(ctx context.Context, tenant string) (*JWKS, error) {
	tenant, err := normalizeTenant(tenant)
	if err != nil {
		return nil, err
	}

	if set, ok := r.cached(ctx, tenant); ok {
		r.metrics.IncCounter(MetricJWKSCacheHits, map[string]string{"tenant": tenant})
		return set, nil
	}

	return r.fetchShared(ctx, tenant, false)
}

// Refresh fetches the key set of tenant from the network, bypassing the
// cache, and stores the result.
func (r *Resolver) Refresh(ctx context.Context, tenant string) (*JWKS, error) {
	tenant, err := normalizeTenant(tenant)
	if err != nil {
		return nil, err
	}
	return r.fetchShared(ctx, tenant, true)
}

// ResolveKey returns the RSA key with the given kid. When the kid is not in
// the current key set, the set is refreshed exactly once before giving up
// with core.ErrUnknownKeyID. An empty kid fails without any network I/O.
func (r *Resolver) ResolveKey(ctx context.Context, tenant, kid string) (*JWK, *JWKS, error) {
	if kid == "" {
		return nil, nil, core.NewValidationError(
			core.ErrorCodeJWKSKeyNotFound,
			"unknown key id",
			errors.New("token header has no kid"),
		)
	}

	set, err := r.Resolve(ctx, tenant)
	if err != nil {
		return nil, nil, err
	}
	if key, ok := set.LookupKeyID(kid); ok {
		return key, set, nil
	}

	r.logger.Infof("kid %q not found in JWKS for tenant %s, forcing a refresh", kid, set.Tenant)

	set, err = r.Refresh(ctx, tenant)
	if err != nil {
		return nil, nil, err
	}
	if key, ok := set.LookupKeyID(kid); ok {
		return key, set, nil
	}

	return nil, set, core.NewValidationError(
		core.ErrorCodeJWKSKeyNotFound,
		"unknown key id",
		fmt.Errorf("kid %q is not published by tenant %s (keys: %s)", kid, set.Tenant, strings.Join(set.KeyIDs(), ", ")),
	)
}

// cached returns the stored key set for tenant if it is younger than the
// cache TTL. Cache errors are logged and treated as a miss.
func (r *Resolver) cached(ctx context.Context, tenant string) (*JWKS, bool) {
	set, ok, err := r.cache.Get(ctx, tenant)
	if err != nil {
		r.logger.Warnf("JWKS cache read for tenant %s failed: %v", tenant, err)
		return nil, false
	}
	if !ok || set == nil {
		return nil, false
	}
	if !r.now().Before(set.FetchedAt.Add(r.cacheTTL)) {
		return nil, false
	}
	return set, true
}

// fetchShared runs at most one fetch per tenant at a time. The fetch is
// detached from the caller's cancellation and bounded by its own deadline;
// the caller's context only limits how long this caller waits for it.
func (r *Resolver) fetchShared(ctx context.Context, tenant string, force bool) (*JWKS, error) {
	key := tenant
	if force {
		// a refresh must not join a flight that may answer from the cache
		key += "\x00refresh"
	}
	ch := r.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchBudget())
		defer cancel()

		if !force {
			if set, ok := r.cached(fetchCtx, tenant); ok {
				return set, nil
			}
		}
		return r.fetchAndStore(fetchCtx, tenant)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*JWKS), nil
	case <-ctx.Done():
		return nil, fetchError(tenant, ctx.Err())
	}
}

// fetchBudget bounds one discovery plus one JWKS request, each with a retry.
func (r *Resolver) fetchBudget() time.Duration {
	return 2 * (2*r.timeout + r.retryWait)
}

func (r *Resolver) fetchAndStore(ctx context.Context, tenant string) (*JWKS, error) {
	start := time.Now()
	set, err := r.fetch(ctx, tenant)
	r.metrics.ObserveHistogram(MetricJWKSFetchSeconds, time.Since(start).Seconds(), map[string]string{"tenant": tenant})

	if err != nil {
		r.metrics.IncCounter(MetricJWKSFetchTotal, map[string]string{"tenant": tenant, "result": "error"})
		r.logger.Errorf("could not fetch JWKS for tenant %s: %v", tenant, err)
		return nil, fetchError(tenant, err)
	}
	r.metrics.IncCounter(MetricJWKSFetchTotal, map[string]string{"tenant": tenant, "result": "success"})
	r.logger.Debugf("fetched %d RSA keys for tenant %s from %s", len(set.Keys), tenant, set.JWKSURI)

	if err := r.cache.Set(ctx, tenant, set); err != nil {
		r.logger.Warnf("JWKS cache write for tenant %s failed: %v", tenant, err)
	}
	return set, nil
}

func (r *Resolver) fetch(ctx context.Context, tenant string) (*JWKS, error) {
	endpoints, err := oidc.GetWellKnownEndpoints(ctx, r.client, oidc.DiscoveryURL(*r.authority, tenant))
	if err != nil {
		return nil, fmt.Errorf("could not discover JWKS URI: %w", err)
	}

	body, err := r.get(ctx, endpoints.JWKSURI)
	if err != nil {
		return nil, err
	}

	keys, skipped, err := parseKeySet(body)
	if err != nil {
		return nil, err
	}
	for _, s := range skipped {
		r.logger.Debugf("ignoring JWKS entry %s for tenant %s", s, tenant)
	}

	return &JWKS{
		Keys:      keys,
		Tenant:    tenant,
		Issuer:    endpoints.Issuer,
		JWKSURI:   endpoints.JWKSURI,
		FetchedAt: r.now(),
	}, nil
}

func (r *Resolver) get(ctx context.Context, jwksURI string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request to %s returned status %d, expected 200", jwksURI, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS: %w", err)
	}
	if len(body) > maxJWKSSize {
		return nil, fmt.Errorf("JWKS response exceeds %d bytes", maxJWKSSize)
	}
	return body, nil
}

// fetchError classifies a fetch failure as a timeout or a plain fetch error.
func fetchError(tenant string, err error) error {
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		return err
	}
	if isTimeout(err) {
		return core.NewValidationError(
			core.ErrorCodeTimeout,
			fmt.Sprintf("JWKS fetch for tenant %s timed out", tenant),
			err,
		)
	}
	return core.NewValidationError(
		core.ErrorCodeJWKSFetchFailed,
		fmt.Sprintf("could not fetch JWKS for tenant %s", tenant),
		err,
	)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if t, ok := e.(interface{ Timeout() bool }); ok && t.Timeout() {
			return true
		}
	}
	return false
}

// normalizeTenant lower-cases tenant and defaults it to "common". Only
// characters found in tenant GUIDs and domain names are accepted, so the
// tenant can be placed in a URL path as is.
func normalizeTenant(tenant string) (string, error) {
	tenant = strings.ToLower(strings.TrimSpace(tenant))
	if tenant == "" {
		return CommonTenant, nil
	}
	for _, c := range tenant {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '.', c == '_':
		default:
			return "", core.NewValidationError(
				core.ErrorCodeJWKSFetchFailed,
				"invalid tenant",
				fmt.Errorf("tenant %q contains %q", tenant, c),
			)
		}
	}
	if strings.Trim(tenant, ".") == "" {
		return "", core.NewValidationError(
			core.ErrorCodeJWKSFetchFailed,
			"invalid tenant",
			fmt.Errorf("tenant %q is not a name", tenant),
		)
	}
	return tenant, nil
}
