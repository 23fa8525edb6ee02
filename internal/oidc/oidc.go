package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
)

// maxDocumentSize bounds the discovery document body.
const maxDocumentSize = 1024 * 1024

// WellKnownEndpoints holds the parts of the OpenID configuration the
// validator needs.
type WellKnownEndpoints struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// StatusError is returned when the discovery endpoint answers with a
// non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// DiscoveryURL builds the v2.0 discovery document URL for tenant:
// {authority}/{tenant}/v2.0/.well-known/openid-configuration.
func DiscoveryURL(authority url.URL, tenant string) string {
	authority.Path = path.Join("/", authority.Path, tenant, "v2.0/.well-known/openid-configuration")
	authority.RawQuery = ""
	authority.Fragment = ""
	return authority.String()
}

// GetWellKnownEndpoints fetches and decodes the discovery document at
// discoveryURL. The returned JWKSURI is never empty.
func GetWellKnownEndpoints(ctx context.Context, client *http.Client, discoveryURL string) (*WellKnownEndpoints, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("could not build request to get well-known endpoints: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not fetch well-known endpoints from %s: %w", discoveryURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: discoveryURL, StatusCode: resp.StatusCode}
	}

	var wkEndpoints WellKnownEndpoints
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentSize)).Decode(&wkEndpoints); err != nil {
		return nil, fmt.Errorf("failed to decode JSON from %s: %w", discoveryURL, err)
	}

	if wkEndpoints.JWKSURI == "" {
		return nil, errors.New("discovery document is missing required 'jwks_uri' field")
	}

	return &wkEndpoints, nil
}
