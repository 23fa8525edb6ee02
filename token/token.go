package token

import (
	"strings"
	"time"
)

// Well-known audiences of Microsoft Graph access tokens.
const (
	GraphAppID    = "00000003-0000-0000-c000-000000000000"
	GraphResource = "https://graph.microsoft.com"
)

// Type distinguishes ID tokens from access tokens.
type Type string

const (
	TypeID     Type = "id_token"
	TypeAccess Type = "access_token"
)

// Token is a decoded compact JWS. It is never mutated after Decode returns.
type Token struct {
	Header Header
	Claims *Claims

	raw          string
	signingInput []byte
	signature    []byte
}

// Header holds the JOSE header. Alg is always present; Kid and Typ are
// optional.
type Header struct {
	Alg    string
	Kid    string
	HasKid bool
	Typ    string

	// Fields holds every header member in the order it appeared.
	Fields *Object
}

// Raw returns the compact token as it was decoded, without any Bearer prefix
// or surrounding whitespace.
func (t *Token) Raw() string { return t.raw }

// SigningInput returns the exact bytes "header.payload" as received.
func (t *Token) SigningInput() []byte {
	return append([]byte(nil), t.signingInput...)
}

// Signature returns the decoded signature bytes.
func (t *Token) Signature() []byte {
	return append([]byte(nil), t.signature...)
}

// Type reports whether t looks like an access token. Tokens issued for
// Microsoft Graph or carrying delegated scopes or app roles are access
// tokens; everything else is treated as an ID token.
func (t *Token) Type() Type {
	if t.IsGraphToken() {
		return TypeAccess
	}
	if t.Claims.Scope() != "" || len(t.Claims.Roles()) > 0 {
		return TypeAccess
	}
	return TypeID
}

// IsGraphToken reports whether the audience is Microsoft Graph.
func (t *Token) IsGraphToken() bool {
	for _, aud := range t.Claims.Audience() {
		if aud == GraphAppID || strings.TrimSuffix(aud, "/") == GraphResource {
			return true
		}
	}
	return false
}

// FormatTimestamp renders unix seconds the way reports print them.
func FormatTimestamp(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04:05 UTC")
}
