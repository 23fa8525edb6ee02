package jwks

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entratools/aad-token-validator/core"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func rsaJWK(t *testing.T, kid string) map[string]any {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return map[string]any{
		"kty": "RSA",
		"use": "sig",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}

// gatedCache misses the first read once armed and holds the second one until
// release is closed.
type gatedCache struct {
	Cache

	armed   atomic.Bool
	gets    atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (c *gatedCache) Get(ctx context.Context, tenant string) (*JWKS, bool, error) {
	if c.armed.Load() {
		switch c.gets.Add(1) {
		case 1:
			return nil, false, nil
		case 2:
			close(c.entered)
			<-c.release
		}
	}
	return c.Cache.Get(ctx, tenant)
}

// aadServer imitates the discovery and keys endpoints of Azure AD.
type aadServer struct {
	*httptest.Server

	mu    sync.Mutex
	keys  []map[string]any
	delay time.Duration

	// failures is the number of upcoming requests answered with 500.
	failures atomic.Int32

	discoveryCount atomic.Int32
	jwksCount      atomic.Int32
}

func newAADServer(t *testing.T, keys ...map[string]any) *aadServer {
	t.Helper()
	s := &aadServer{keys: keys}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *aadServer) setKeys(keys ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = keys
}

func (s *aadServer) setDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

func (s *aadServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delay, keys := s.delay, s.keys
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if strings.HasSuffix(r.URL.Path, "/v2.0/.well-known/openid-configuration") {
		s.discoveryCount.Add(1)
	}
	if strings.HasPrefix(r.URL.Path, "/keys/") {
		s.jwksCount.Add(1)
	}

	if s.failures.Load() > 0 {
		s.failures.Add(-1)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/v2.0/.well-known/openid-configuration"):
		tenant := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")[0]
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":   "https://login.microsoftonline.com/" + tenant + "/v2.0",
			"jwks_uri": s.URL + "/keys/" + tenant,
		})
	case strings.HasPrefix(r.URL.Path, "/keys/"):
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": keys})
	default:
		http.NotFound(w, r)
	}
}

func newTestResolver(t *testing.T, s *aadServer, opts ...ResolverOption) *Resolver {
	t.Helper()
	authority, err := url.Parse(s.URL)
	require.NoError(t, err)

	opts = append([]ResolverOption{
		WithAuthority(authority),
		WithRetryWait(time.Millisecond),
	}, opts...)
	r, err := NewResolver(opts...)
	require.NoError(t, err)
	return r
}

func TestResolver_Resolve(t *testing.T) {
	t.Run("it discovers and fetches the key set", func(t *testing.T) {
		s := newAADServer(t, rsaJWK(t, "k1"), rsaJWK(t, "k2"))
		r := newTestResolver(t, s)

		set, err := r.Resolve(context.Background(), "Contoso.onmicrosoft.com")
		require.NoError(t, err)

		assert.Equal(t, []string{"k1", "k2"}, set.KeyIDs())
		assert.Equal(t, "contoso.onmicrosoft.com", set.Tenant)
		assert.Equal(t, "https://login.microsoftonline.com/contoso.onmicrosoft.com/v2.0", set.Issuer)
		assert.Equal(t, s.URL+"/keys/contoso.onmicrosoft.com", set.JWKSURI)
		assert.False(t, set.FetchedAt.IsZero())
	})

	t.Run("it defaults an empty tenant to common", func(t *testing.T) {
		s := newAADServer(t, rsaJWK(t, "k1"))
		r := newTestResolver(t, s)

		set, err := r.Resolve(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, CommonTenant, set.Tenant)
	})

	t.Run("it serves a fresh entry from the cache without network I/O", func(t *testing.T) {
		s := newAADServer(t, rsaJWK(t, "k1"))
		r := newTestResolver(t, s)

		first, err := r.Resolve(context.Background(), "common")
		require.NoError(t, err)
		second, err := r.Resolve(context.Background(), "common")
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, int32(1), s.discoveryCount.Load())
		assert.Equal(t, int32(1), s.jwksCount.Load())
	})

	t.Run("it fetches again once the cache TTL has passed", func(t *testing.T) {
		s := newAADServer(t, rsaJWK(t, "k1"))
		clock := newFakeClock()
		r := newTestResolver(t, s, WithClock(clock.Now), WithCacheTTL(time.Minute))

		_, err := r.Resolve(context.Background(), "common")
		require.NoError(t, err)

		clock.Advance(59 * time.Second)
		_, err = r.Resolve(context.Background(), "common")
		require.NoError(t, err)
		assert.Equal(t, int32(1), s.jwksCount.Load())

		clock.Advance(time.Second)
		_, err = r.Resolve(context.Background(), "common")
		require.NoError(t, err)
		assert.Equal(t, int32(2), s.jwksCount.Load())
	})

	t.Run("it drops keys that are not RSA", func(t *testing.T) {
		ec := map[string]any{"kty": "EC", "kid": "ec1", "crv": "P-256", "x": "AA", "y": "AA"}
		broken := map[string]any{"kty": "RSA", "kid": 42}
		s := newAADServer(t, ec, rsaJWK(t, "rsa1"), broken)
		r := newTestResolver(t, s)

		set, err := r.Resolve(context.Background(), "common")
		require.NoError(t, err)
		assert.Equal(t, []string{"rsa1"}, set.KeyIDs())

		_, _, err = r.ResolveKey(context.Background(), "common", "ec1")
		assert.ErrorIs(t, err, core.ErrUnknownKeyID)
	})

	t.Run("it rejects tenants that cannot be placed in a URL path", func(t *testing.T) {
		s := newAADServer(t)
		r := newTestResolver(t, s)

		for _, tenant := range []string{"../admin", "a/b", "..", "contoso?x=1"} {
			_, err := r.Resolve(context.Background(), tenant)
			assert.ErrorIs(t, err, core.ErrJWKSFetch, tenant)
		}
		assert.Equal(t, int32(0), s.discoveryCount.Load())
	})
}

func TestResolver_ResolveKey(t *testing.T) {
	t.Run("it returns the key with a matching kid", func(t *testing.T) {
		s := newAADServer(t, rsaJWK(t, "k1"), rsaJWK(t, "k2"))
		r := newTestResolver(t, s)

		key, set, err := r.ResolveKey(context.Background(), "common", "k2")
		require.NoError(t, err)
		assert.Equal(t, "k2", key.Kid)
		assert.Equal(t, "RSA", key.Kty)
		assert.Len(t, set.Keys, 2)
	})

	t.Run("it refreshes exactly once for an unknown kid", func(t *testing.T) {
		s := newAADServer(t, rsaJWK(t, "k1"))
		r := newTestResolver(t, s)

		_, set, err := r.ResolveKey(context.Background(), "common", "missing")
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrUnknownKeyID)
		assert.Equal(t, core.ErrorCodeJWKSKeyNotFound, core.CodeOf(err))
		assert.NotNil(t, set)
		assert.Equal(t, int32(2), s.jwksCount.Load())
	})

	t.Run("it picks up a rotated key after the refresh", func(t *testing.T) {
		s := newAADServer(t, rsaJWK(t, "old"))
		r := newTestResolver(t, s)

		_, err := r.Resolve(context.Background(), "common")
		require.NoError(t, err)

		s.setKeys(rsaJWK(t, "old"), rsaJWK(t, "new"))

		key, _, err := r.ResolveKey(context.Background(), "common", "new")
		require.NoError(t, err)
		assert.Equal(t, "new", key.Kid)
		assert.Equal(t, int32(2), s.jwksCount.Load())

		// the refreshed set replaced the cached one
		_, _, err = r.ResolveKey(context.Background(), "common", "new")
		require.NoError(t, err)
		assert.Equal(t, int32(2), s.jwksCount.Load())
	})

	t.Run("it fails an empty kid without network I/O", func(t *testing.T) {
		s := newAADServer(t, rsaJWK(t, "k1"))
		r := newTestResolver(t, s)

		_, _, err := r.ResolveKey(context.Background(), "common", "")
		assert.ErrorIs(t, err, core.ErrUnknownKeyID)
		assert.Equal(t, int32(0), s.discoveryCount.Load())
		assert.Equal(t, int32(0), s.jwksCount.Load())
	})
}

func TestResolver_Failures(t *testing.T) {
	t.Run("it retries once and succeeds", func(t *testing.T) {
		s := newAADServer(t, rsaJWK(t, "k1"))
		s.failures.Store(1)
		r := newTestResolver(t, s)

		set, err := r.Resolve(context.Background(), "common")
		require.NoError(t, err)
		assert.Len(t, set.Keys, 1)
		assert.Equal(t, int32(2), s.discoveryCount.Load())
	})

	t.Run("it gives up after two attempts", func(t *testing.T) {
		s := newAADServer(t, rsaJWK(t, "k1"))
		s.failures.Store(100)
		r := newTestResolver(t, s)

		_, err := r.Resolve(context.Background(), "common")
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrJWKSFetch)
		assert.NotErrorIs(t, err, core.ErrTimeout)
		assert.Equal(t, core.ErrorCodeJWKSFetchFailed, core.CodeOf(err))
		assert.Equal(t, int32(2), s.discoveryCount.Load())
		assert.Equal(t, int32(0), s.jwksCount.Load())
	})

	t.Run("it does not cache failures", func(t *testing.T) {
		s := newAADServer(t, rsaJWK(t, "k1"))
		s.failures.Store(2)
		r := newTestResolver(t, s)

		_, err := r.Resolve(context.Background(), "common")
		require.Error(t, err)

		_, err = r.Resolve(context.Background(), "common")
		require.NoError(t, err)
	})

	t.Run("it reports a slow endpoint as a timeout", func(t *testing.T) {
		s := newAADServer(t, rsaJWK(t, "k1"))
		s.setDelay(2 * time.Second)
		r := newTestResolver(t, s, WithTimeout(50*time.Millisecond))

		start := time.Now()
		_, err := r.Resolve(context.Background(), "common")
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrTimeout)
		assert.ErrorIs(t, err, core.ErrJWKSFetch)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("it rejects a document without keys", func(t *testing.T) {
		s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/keys") {
				_, _ = w.Write([]byte(`{"nokeys":[]}`))
				return
			}
			_, _ = fmt.Fprintf(w, `{"jwks_uri":%q}`, "http://"+r.Host+"/keys")
		}))
		defer s.Close()

		authority, _ := url.Parse(s.URL)
		r, err := NewResolver(WithAuthority(authority), WithRetryWait(0))
		require.NoError(t, err)

		_, err = r.Resolve(context.Background(), "common")
		assert.ErrorIs(t, err, core.ErrJWKSFetch)
	})
}

func TestResolver_Concurrency(t *testing.T) {
	t.Run("concurrent cold-start callers share one fetch", func(t *testing.T) {
		s := newAADServer(t, rsaJWK(t, "k1"))
		s.setDelay(100 * time.Millisecond)
		r := newTestResolver(t, s)

		const callers = 20
		var wg sync.WaitGroup
		errs := make([]error, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _, errs[i] = r.ResolveKey(context.Background(), "common", "k1")
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			assert.NoError(t, err)
		}
		assert.Equal(t, int32(1), s.discoveryCount.Load())
		assert.Equal(t, int32(1), s.jwksCount.Load())
	})

	t.Run("a caller deadline only aborts that caller", func(t *testing.T) {
		s := newAADServer(t, rsaJWK(t, "k1"))
		s.setDelay(150 * time.Millisecond)
		r := newTestResolver(t, s)

		impatient, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		var wg sync.WaitGroup
		var patientErr error
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(5 * time.Millisecond)
			_, patientErr = r.Resolve(context.Background(), "common")
		}()

		_, err := r.Resolve(impatient, "common")
		assert.ErrorIs(t, err, core.ErrTimeout)

		wg.Wait()
		require.NoError(t, patientErr)
		assert.Equal(t, int32(1), s.jwksCount.Load())

		// the shared fetch completed and was cached
		_, err = r.Resolve(context.Background(), "common")
		require.NoError(t, err)
		assert.Equal(t, int32(1), s.jwksCount.Load())
	})

	t.Run("a refresh does not join a cache read in flight", func(t *testing.T) {
		s := newAADServer(t, rsaJWK(t, "k1"))
		inner, err := NewMemoryCache()
		require.NoError(t, err)
		cache := &gatedCache{Cache: inner, entered: make(chan struct{}), release: make(chan struct{})}
		r := newTestResolver(t, s, WithCache(cache))

		_, err = r.Resolve(context.Background(), "common")
		require.NoError(t, err)
		require.Equal(t, int32(1), s.jwksCount.Load())

		cache.armed.Store(true)
		resolved := make(chan error, 1)
		go func() {
			_, err := r.Resolve(context.Background(), "common")
			resolved <- err
		}()
		<-cache.entered

		refreshed := make(chan error, 1)
		go func() {
			_, err := r.Refresh(context.Background(), "common")
			refreshed <- err
		}()
		select {
		case err := <-refreshed:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("refresh waited on the cached read")
		}
		assert.Equal(t, int32(2), s.jwksCount.Load())

		close(cache.release)
		require.NoError(t, <-resolved)
	})

	t.Run("different tenants are fetched independently", func(t *testing.T) {
		s := newAADServer(t, rsaJWK(t, "k1"))
		r := newTestResolver(t, s)

		var wg sync.WaitGroup
		for _, tenant := range []string{"a", "b", "c"} {
			wg.Add(1)
			go func(tenant string) {
				defer wg.Done()
				_, err := r.Resolve(context.Background(), tenant)
				assert.NoError(t, err)
			}(tenant)
		}
		wg.Wait()
		assert.Equal(t, int32(3), s.jwksCount.Load())
	})
}

type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string]int
}

func (m *recordingMetrics) IncCounter(name string, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = map[string]int{}
	}
	m.counters[name+"/"+tags["result"]]++
}

func (m *recordingMetrics) ObserveHistogram(string, float64, map[string]string) {}

func TestResolver_Metrics(t *testing.T) {
	s := newAADServer(t, rsaJWK(t, "k1"))
	metrics := &recordingMetrics{}
	r := newTestResolver(t, s, WithMetrics(metrics))

	for i := 0; i < 3; i++ {
		_, err := r.Resolve(context.Background(), "common")
		require.NoError(t, err)
	}

	assert.Equal(t, 1, metrics.counters[MetricJWKSFetchTotal+"/success"])
	assert.Equal(t, 2, metrics.counters[MetricJWKSCacheHits+"/"])
}

func TestNewResolver_InvalidOptions(t *testing.T) {
	testCases := []struct {
		name string
		opt  ResolverOption
	}{
		{name: "nil authority", opt: WithAuthority(nil)},
		{name: "relative authority", opt: WithAuthority(&url.URL{Path: "login"})},
		{name: "nil client", opt: WithHTTPClient(nil)},
		{name: "nil cache", opt: WithCache(nil)},
		{name: "negative TTL", opt: WithCacheTTL(-time.Second)},
		{name: "zero timeout", opt: WithTimeout(0)},
		{name: "negative retry wait", opt: WithRetryWait(-time.Second)},
		{name: "nil logger", opt: WithLogger(nil)},
		{name: "nil metrics", opt: WithMetrics(nil)},
		{name: "nil clock", opt: WithClock(nil)},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := NewResolver(testCase.opt)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid option")
		})
	}
}
