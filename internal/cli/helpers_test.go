package cli

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/stretchr/testify/require"
)

const (
	testTenant = "72f988bf-86f1-41af-91ab-2d7cd011db47"
	testKid    = "kid-1"
)

var (
	b64 = base64.RawURLEncoding

	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func signingKey() *rsa.PrivateKey {
	keyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

// accessClaims returns delegated access token claims valid for the next hour.
func accessClaims() map[string]any {
	now := time.Now()
	return map[string]any{
		"aud":                "00000003-0000-0000-c000-000000000000",
		"iss":                "https://login.microsoftonline.com/" + testTenant + "/v2.0",
		"iat":                now.Add(-time.Minute).Unix(),
		"nbf":                now.Add(-time.Minute).Unix(),
		"exp":                now.Add(time.Hour).Unix(),
		"tid":                testTenant,
		"name":               "Megan Bowen",
		"preferred_username": "megan@contoso.com",
		"scp":                "User.Read",
		"ver":                "2.0",
		"xms_tcdt":           1612345678,
	}
}

// idClaims returns ID token claims valid for the next hour.
func idClaims() map[string]any {
	claims := accessClaims()
	delete(claims, "scp")
	claims["aud"] = "6e74172b-be56-4843-9ff4-e66a39bb12e3"
	return claims
}

func signToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	h, err := json.Marshal(map[string]any{"alg": "RS256", "typ": "JWT", "kid": testKid})
	require.NoError(t, err)
	p, err := json.Marshal(claims)
	require.NoError(t, err)

	input := b64.EncodeToString(h) + "." + b64.EncodeToString(p)
	signer, err := jws.NewSigner(jwa.RS256)
	require.NoError(t, err)
	sig, err := signer.Sign([]byte(input), signingKey())
	require.NoError(t, err)
	return input + "." + b64.EncodeToString(sig)
}

// keyServer serves discovery documents and signing keys for every tenant.
type keyServer struct {
	*httptest.Server
	down atomic.Bool
}

func newKeyServer(t *testing.T) *keyServer {
	t.Helper()
	s := &keyServer{}
	key := signingKey()
	jwk := map[string]any{
		"kty": "RSA",
		"use": "sig",
		"kid": testKid,
		"n":   b64.EncodeToString(key.N.Bytes()),
		"e":   b64.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		tenant := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")[0]
		switch {
		case strings.HasSuffix(r.URL.Path, "/.well-known/openid-configuration"):
			_ = json.NewEncoder(w).Encode(map[string]string{
				"issuer":   "https://login.microsoftonline.com/" + tenant + "/v2.0",
				"jwks_uri": s.URL + "/" + tenant + "/discovery/v2.0/keys",
			})
		case strings.HasSuffix(r.URL.Path, "/discovery/v2.0/keys"):
			_ = json.NewEncoder(w).Encode(map[string]any{"keys": []any{jwk}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

type result struct {
	code   int
	stdout string
	stderr string
}

// runCLI runs the command against the key server with an isolated
// environment.
func runCLI(t *testing.T, s *keyServer, stdin string, args ...string) result {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("AAD_LOG_LEVEL", "error")

	var stdout, stderr bytes.Buffer
	full := append([]string{args[0], "--authority", s.URL, "--http-timeout", "2s"}, args[1:]...)
	code := run(context.Background(), full, Streams{
		In:  strings.NewReader(stdin),
		Out: &stdout,
		Err: &stderr,
	})
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}
