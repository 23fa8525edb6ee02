package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommand(t *testing.T) {
	s := newKeyServer(t)

	t.Run("valid token", func(t *testing.T) {
		res := runCLI(t, s, "", "validate", signToken(t, accessClaims()))

		assert.Equal(t, ExitOK, res.code, res.stderr)
		assert.Contains(t, res.stdout, "=== Token Information ===")
		assert.Contains(t, res.stdout, "Token type: access_token")
		assert.Contains(t, res.stdout, "Name: Megan Bowen")
		assert.Contains(t, res.stdout, "Username: megan@contoso.com")
		assert.Contains(t, res.stdout, "Scope: User.Read")
		assert.Contains(t, res.stdout, "=== Additional Claims ===")
		assert.Contains(t, res.stdout, "xms_tcdt: 1612345678")
		assert.Contains(t, res.stdout, "Tenant: "+testTenant+" (tid)")
		assert.Contains(t, res.stdout, "Signature: valid")
		assert.Contains(t, res.stdout, "Result: valid")
	})

	t.Run("json output", func(t *testing.T) {
		res := runCLI(t, s, "", "validate", "--json", signToken(t, accessClaims()))
		require.Equal(t, ExitOK, res.code, res.stderr)

		var report map[string]any
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &report))
		assert.Equal(t, true, report["valid"])
		assert.Equal(t, "valid", report["result"])
		assert.Equal(t, "access_token", report["token_type"])
		assert.Equal(t, testTenant, report["tenant"])
	})

	t.Run("engine logs through the configured backend", func(t *testing.T) {
		for _, backend := range []string{"logrus", "zap", "zerolog"} {
			res := runCLI(t, s, "", "validate", "--log-backend", backend, "--log-level", "info", signToken(t, accessClaims()))
			require.Equal(t, ExitOK, res.code, res.stderr)
			assert.Contains(t, res.stderr, "validated: valid", backend)
			assert.Contains(t, res.stderr, "aadtoken", backend)
		}
	})

	t.Run("token from standard input", func(t *testing.T) {
		res := runCLI(t, s, signToken(t, accessClaims())+"\n", "validate")
		assert.Equal(t, ExitOK, res.code, res.stderr)
		assert.Contains(t, res.stderr, "Enter token: ")
		assert.Contains(t, res.stdout, "Result: valid")
	})

	t.Run("expired token", func(t *testing.T) {
		claims := accessClaims()
		claims["exp"] = time.Now().Add(-time.Hour).Unix()

		res := runCLI(t, s, "", "validate", signToken(t, claims))
		assert.Equal(t, ExitInvalid, res.code)
		assert.Contains(t, res.stdout, "Signature: valid")
		assert.Contains(t, res.stdout, "Result: invalid")
	})

	t.Run("expired token with skip-expiration", func(t *testing.T) {
		claims := accessClaims()
		claims["exp"] = time.Now().Add(-time.Hour).Unix()

		res := runCLI(t, s, "", "validate", "--skip-expiration", signToken(t, claims))
		assert.Equal(t, ExitOK, res.code, res.stdout)
	})

	t.Run("malformed token", func(t *testing.T) {
		res := runCLI(t, s, "", "validate", "not-a-token")
		assert.Equal(t, ExitInvalid, res.code)
		assert.Contains(t, res.stderr, "Failed to decode token")
		assert.Empty(t, res.stdout)
	})

	t.Run("no token", func(t *testing.T) {
		res := runCLI(t, s, "\n", "validate")
		assert.Equal(t, ExitError, res.code)
		assert.Contains(t, res.stderr, "no token provided")
	})

	t.Run("keys unavailable", func(t *testing.T) {
		s.down.Store(true)
		t.Cleanup(func() { s.down.Store(false) })

		res := runCLI(t, s, "", "validate", signToken(t, accessClaims()))
		assert.Equal(t, ExitIndeterminate, res.code)
		assert.Contains(t, res.stdout, "Signature: not checked")
		assert.Contains(t, res.stdout, "Result: indeterminate")
	})

	t.Run("invalid config", func(t *testing.T) {
		res := runCLI(t, s, "", "validate", "--log-level", "verbose", signToken(t, accessClaims()))
		assert.Equal(t, ExitError, res.code)
		assert.Contains(t, res.stderr, "invalid config")
	})
}

func newGraphServer(t *testing.T) (*httptest.Server, *string) {
	t.Helper()
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/v1.0/me" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"Request_ResourceNotFound"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"displayName":"Megan Bowen"}`))
	}))
	t.Cleanup(server.Close)
	return server, &gotAuth
}

func TestGraphCommand(t *testing.T) {
	s := newKeyServer(t)
	graphServer, gotAuth := newGraphServer(t)

	t.Run("access token", func(t *testing.T) {
		t.Setenv("AAD_GRAPH_BASE_URL", graphServer.URL+"/v1.0/")
		raw := signToken(t, accessClaims())

		res := runCLI(t, s, "", "graph", raw)
		assert.Equal(t, ExitOK, res.code, res.stderr)
		assert.Equal(t, "Bearer "+raw, *gotAuth)
		assert.Contains(t, res.stdout, "Graph API response (200)")
		assert.Contains(t, res.stdout, `"displayName": "Megan Bowen"`)
	})

	t.Run("rejected endpoint", func(t *testing.T) {
		t.Setenv("AAD_GRAPH_BASE_URL", graphServer.URL+"/v1.0/")

		res := runCLI(t, s, "", "graph", "--endpoint", "/users/nobody", signToken(t, accessClaims()))
		assert.Equal(t, ExitError, res.code)
		assert.Contains(t, res.stderr, "graph returned status 404")
	})

	t.Run("id token", func(t *testing.T) {
		res := runCLI(t, s, "", "graph", signToken(t, idClaims()))
		assert.Equal(t, ExitError, res.code)
		assert.Contains(t, res.stderr, "ID token")
	})

	t.Run("validate --graph keeps the validation exit code", func(t *testing.T) {
		res := runCLI(t, s, "", "validate", "--graph", signToken(t, idClaims()))
		assert.Equal(t, ExitOK, res.code, res.stderr)
		assert.Contains(t, res.stdout, "Token type: id_token")
		assert.Contains(t, res.stdout, "Graph API test failed")
	})
}

func TestTenantOverride(t *testing.T) {
	assert.Equal(t, "", tenantOverride("common"))
	assert.Equal(t, "", tenantOverride(" Common "))
	assert.Equal(t, "", tenantOverride(""))
	assert.Equal(t, testTenant, tenantOverride(testTenant))
	assert.Equal(t, "contoso.onmicrosoft.com", tenantOverride("contoso.onmicrosoft.com"))
}
