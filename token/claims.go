package token

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Registered and Azure AD claim names with typed accessors.
const (
	ClaimIssuer            = "iss"
	ClaimAudience          = "aud"
	ClaimSubject           = "sub"
	ClaimExpiry            = "exp"
	ClaimNotBefore         = "nbf"
	ClaimIssuedAt          = "iat"
	ClaimTenantID          = "tid"
	ClaimName              = "name"
	ClaimEmail             = "email"
	ClaimPreferredUsername = "preferred_username"
	ClaimUPN               = "upn"
	ClaimUniqueName        = "unique_name"
	ClaimScp               = "scp"
	ClaimScope             = "scope"
	ClaimAppID             = "appid"
	ClaimAzp               = "azp"
	ClaimRoles             = "roles"
	ClaimVersion           = "ver"
	ClaimObjectID          = "oid"
)

var recognized = map[string]struct{}{
	ClaimIssuer: {}, ClaimAudience: {}, ClaimSubject: {}, ClaimExpiry: {},
	ClaimNotBefore: {}, ClaimIssuedAt: {}, ClaimTenantID: {}, ClaimName: {},
	ClaimEmail: {}, ClaimPreferredUsername: {}, ClaimUPN: {}, ClaimUniqueName: {},
	ClaimScp: {}, ClaimScope: {}, ClaimAppID: {}, ClaimAzp: {}, ClaimRoles: {},
	ClaimVersion: {}, ClaimObjectID: {},
}

// Claims is the decoded payload: an ordered mapping from claim name to value.
type Claims struct {
	*Object
}

// NumericDate returns the claim called name as unix seconds. present is true
// when the claim exists; err is set when it exists but is not a number.
func (c *Claims) NumericDate(name string) (seconds int64, present bool, err error) {
	v, ok := c.Get(name)
	if !ok {
		return 0, false, nil
	}
	seconds, ok = v.Int64()
	if !ok {
		return 0, true, fmt.Errorf("claim %q is a %s, not a NumericDate", name, v.Kind())
	}
	return seconds, true, nil
}

func (c *Claims) date(name string) (int64, bool) {
	v, ok, err := c.NumericDate(name)
	return v, ok && err == nil
}

// Expiry returns exp in unix seconds.
func (c *Claims) Expiry() (int64, bool) { return c.date(ClaimExpiry) }

// NotBefore returns nbf in unix seconds.
func (c *Claims) NotBefore() (int64, bool) { return c.date(ClaimNotBefore) }

// IssuedAt returns iat in unix seconds.
func (c *Claims) IssuedAt() (int64, bool) { return c.date(ClaimIssuedAt) }

func (c *Claims) str(names ...string) string {
	for _, name := range names {
		if v, ok := c.Get(name); ok {
			if s, ok := v.Str(); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func (c *Claims) Issuer() string            { return c.str(ClaimIssuer) }
func (c *Claims) Subject() string           { return c.str(ClaimSubject) }
func (c *Claims) TenantID() string          { return c.str(ClaimTenantID) }
func (c *Claims) Name() string              { return c.str(ClaimName) }
func (c *Claims) Email() string             { return c.str(ClaimEmail) }
func (c *Claims) PreferredUsername() string { return c.str(ClaimPreferredUsername) }
func (c *Claims) Version() string           { return c.str(ClaimVersion) }
func (c *Claims) ObjectID() string          { return c.str(ClaimObjectID) }

// UPN returns upn, falling back to the v1 unique_name claim.
func (c *Claims) UPN() string { return c.str(ClaimUPN, ClaimUniqueName) }

// Scope returns the space separated delegated scopes (scp or scope).
func (c *Claims) Scope() string { return c.str(ClaimScp, ClaimScope) }

// AppID returns the client application id (appid in v1, azp in v2).
func (c *Claims) AppID() string { return c.str(ClaimAppID, ClaimAzp) }

// Audience returns aud whether it was encoded as a string or an array.
// Non-string array members are skipped.
func (c *Claims) Audience() []string {
	return c.strings(ClaimAudience)
}

// Roles returns the app roles granted to the subject.
func (c *Claims) Roles() []string {
	return c.strings(ClaimRoles)
}

func (c *Claims) strings(name string) []string {
	v, ok := c.Get(name)
	if !ok {
		return nil
	}
	if s, ok := v.Str(); ok {
		return []string{s}
	}
	arr, ok := v.Array()
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		if s, ok := el.Str(); ok {
			out = append(out, s)
		}
	}
	return out
}

// AudienceDisplay renders aud for humans: the string itself, a JSON array,
// or "Unknown format" for anything else.
func (c *Claims) AudienceDisplay() string {
	v, ok := c.Get(ClaimAudience)
	if !ok {
		return "Unknown format"
	}
	switch v.Kind() {
	case KindString:
		return v.str
	case KindArray:
		return v.String()
	default:
		return "Unknown format"
	}
}

// Additional returns the claims that have no typed accessor, in token order.
func (c *Claims) Additional() *Object {
	out := newObject(0)
	c.Range(func(name string, v Value) bool {
		if _, ok := recognized[name]; !ok {
			out.set(name, v)
		}
		return true
	})
	return out
}

// Map converts the claims into plain Go values, as produced by Value.Interface.
func (c *Claims) Map() map[string]any {
	out := make(map[string]any, c.Len())
	c.Range(func(name string, v Value) bool {
		out[name] = v.Interface()
		return true
	})
	return out
}

// MarshalJSON emits the claims in token order.
func (c *Claims) MarshalJSON() ([]byte, error) {
	if c == nil || c.Object == nil {
		return []byte("null"), nil
	}
	return c.Object.MarshalJSON()
}

// HasScope reports whether scope is one of the space separated scopes.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range strings.Fields(c.Scope()) {
		if s == scope {
			return true
		}
	}
	return false
}

var _ json.Marshaler = (*Claims)(nil)
