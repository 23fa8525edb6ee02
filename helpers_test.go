package aadtoken

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/stretchr/testify/require"

	"github.com/entratools/aad-token-validator/jwks"
)

const (
	testTenant  = "72f988bf-86f1-41af-91ab-2d7cd011db47"
	otherTenant = "9188040d-6c67-4c5b-b112-36a304b66dad"
	testDomain  = "contoso.onmicrosoft.com"
	testKid     = "kid-1"
)

var (
	testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b64     = base64.RawURLEncoding

	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

func publicJWK(key *rsa.PrivateKey, kid string) map[string]any {
	return map[string]any{
		"kty": "RSA",
		"use": "sig",
		"kid": kid,
		"n":   b64.EncodeToString(key.N.Bytes()),
		"e":   b64.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}

// validClaims returns claims that pass every check at testNow.
func validClaims() map[string]any {
	return map[string]any{
		"aud": "api://aadtoken-tests",
		"iss": "https://login.microsoftonline.com/" + testTenant + "/v2.0",
		"iat": testNow.Add(-time.Minute).Unix(),
		"nbf": testNow.Add(-time.Minute).Unix(),
		"exp": testNow.Add(time.Hour).Unix(),
		"tid": testTenant,
		"sub": "subject",
		"ver": "2.0",
	}
}

func signToken(t *testing.T, header, claims map[string]any) string {
	t.Helper()
	if header == nil {
		header = map[string]any{"alg": "RS256", "typ": "JWT", "kid": testKid}
	}
	h, err := json.Marshal(header)
	require.NoError(t, err)
	p, err := json.Marshal(claims)
	require.NoError(t, err)

	input := b64.EncodeToString(h) + "." + b64.EncodeToString(p)
	signer, err := jws.NewSigner(jwa.RS256)
	require.NoError(t, err)
	sig, err := signer.Sign([]byte(input), signingKey(t))
	require.NoError(t, err)
	return input + "." + b64.EncodeToString(sig)
}

// keyServer serves discovery documents and keys for every tenant. The
// discovery document of testDomain names testTenant as its issuer.
type keyServer struct {
	*httptest.Server

	down     atomic.Bool
	requests atomic.Int32
	keys     []map[string]any
}

func newKeyServer(t *testing.T) *keyServer {
	t.Helper()
	s := &keyServer{keys: []map[string]any{publicJWK(signingKey(t), testKid)}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *keyServer) handle(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	if s.down.Load() {
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	tenant := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")[0]
	switch {
	case strings.HasSuffix(r.URL.Path, "/.well-known/openid-configuration"):
		issuerTenant := tenant
		if tenant == testDomain {
			issuerTenant = testTenant
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":   "https://login.microsoftonline.com/" + issuerTenant + "/v2.0",
			"jwks_uri": s.URL + "/" + tenant + "/discovery/v2.0/keys",
		})
	case strings.HasSuffix(r.URL.Path, "/discovery/v2.0/keys"):
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": s.keys})
	default:
		http.NotFound(w, r)
	}
}

func newTestEngine(t *testing.T, s *keyServer, opts ...Option) *Engine {
	t.Helper()
	authority, err := url.Parse(s.URL)
	require.NoError(t, err)

	opts = append([]Option{
		WithClock(func() time.Time { return testNow }),
		WithResolverOptions(
			jwks.WithAuthority(authority),
			jwks.WithRetryWait(time.Millisecond),
			jwks.WithTimeout(2*time.Second),
		),
	}, opts...)
	e, err := New(opts...)
	require.NoError(t, err)
	return e
}

// fakeResolver answers every lookup with the same key, set and error.
type fakeResolver struct {
	key   *jwks.JWK
	set   *jwks.JWKS
	err   error
	calls atomic.Int32
}

func (f *fakeResolver) ResolveKey(context.Context, string, string) (*jwks.JWK, *jwks.JWKS, error) {
	f.calls.Add(1)
	return f.key, f.set, f.err
}

type recordingMetrics struct {
	NoopMetrics

	mu       sync.Mutex
	counters map[string]int
}

func (m *recordingMetrics) IncCounter(name string, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int)
	}
	key := name
	if r, ok := tags["result"]; ok {
		key += "/" + r
	}
	m.counters[key]++
}

func (m *recordingMetrics) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key]
}
