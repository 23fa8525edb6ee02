package jwks

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/entratools/aad-token-validator/core"
)

// JWK is one published signing key. Only the members used for RS256
// verification are kept; the parsed jwx key backs them.
type JWK struct {
	Kid string   `json:"kid"`
	Kty string   `json:"kty"`
	Use string   `json:"use,omitempty"`
	Alg string   `json:"alg,omitempty"`
	N   string   `json:"n"`
	E   string   `json:"e"`
	X5c []string `json:"x5c,omitempty"`
	X5t string   `json:"x5t,omitempty"`

	key jwk.Key
}

// ParseKey parses one JSON Web Key. Failures match core.ErrKeyConstruction.
func ParseKey(b []byte) (*JWK, error) {
	key, err := jwk.ParseKey(b)
	if err != nil {
		return nil, core.NewValidationError(core.ErrorCodeKeyConstruction, "could not parse signing key", err)
	}
	return NewJWK(key)
}

// NewJWK wraps a jwx key. Private keys are reduced to their public half.
func NewJWK(key jwk.Key) (*JWK, error) {
	pub, err := key.PublicKey()
	if err != nil {
		return nil, core.NewValidationError(core.ErrorCodeKeyConstruction, "could not derive public key", err)
	}

	k := &JWK{
		Kid: pub.KeyID(),
		Kty: pub.KeyType().String(),
		Use: pub.KeyUsage(),
		X5t: pub.X509CertThumbprint(),
		key: pub,
	}
	if alg := pub.Algorithm(); alg != nil && alg.String() != "" {
		k.Alg = alg.String()
	}
	if chain := pub.X509CertChain(); chain != nil {
		for i := 0; i < chain.Len(); i++ {
			c, _ := chain.Get(i)
			k.X5c = append(k.X5c, string(c))
		}
	}
	if rsaKey, ok := pub.(jwk.RSAPublicKey); ok {
		k.N = base64.RawURLEncoding.EncodeToString(rsaKey.N())
		k.E = base64.RawURLEncoding.EncodeToString(rsaKey.E())
	}
	return k, nil
}

// Key returns the parsed jwx key, or nil for a JWK that was not built by
// ParseKey, NewJWK or JSON decoding.
func (k *JWK) Key() jwk.Key {
	return k.key
}

// UnmarshalJSON parses the key through jwx, so keys read back from a cache
// carry their key material.
func (k *JWK) UnmarshalJSON(b []byte) error {
	parsed, err := ParseKey(b)
	if err != nil {
		return err
	}
	*k = *parsed
	return nil
}

// JWKS is the ordered set of RSA keys a tenant published, tagged with where
// and when it was fetched.
type JWKS struct {
	Keys      []JWK     `json:"keys"`
	Tenant    string    `json:"tenant"`
	Issuer    string    `json:"issuer,omitempty"`
	JWKSURI   string    `json:"jwks_uri"`
	FetchedAt time.Time `json:"fetched_at"`
}

// LookupKeyID returns the first key whose kid equals kid.
func (s *JWKS) LookupKeyID(kid string) (*JWK, bool) {
	if s == nil || kid == "" {
		return nil, false
	}
	for i := range s.Keys {
		if s.Keys[i].Kid == kid {
			k := s.Keys[i]
			return &k, true
		}
	}
	return nil, false
}

// KeyIDs returns the kid of every key, in document order.
func (s *JWKS) KeyIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.Keys))
	for _, k := range s.Keys {
		ids = append(ids, k.Kid)
	}
	return ids
}

// parseKeySet decodes a JWKS document. Entries jwx cannot parse are dropped;
// keys that are not RSA are returned in skipped.
func parseKeySet(body []byte) (keys []JWK, skipped []string, err error) {
	set, err := jwk.Parse(body, jwk.WithIgnoreParseError(true))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}

	keys = make([]JWK, 0, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		if key.KeyType() != jwa.RSA {
			skipped = append(skipped, fmt.Sprintf("%q (kty %q)", key.KeyID(), key.KeyType()))
			continue
		}
		k, err := NewJWK(key)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%q (%v)", key.KeyID(), err))
			continue
		}
		keys = append(keys, *k)
	}
	return keys, skipped, nil
}
