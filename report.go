package aadtoken

import (
	"encoding/json"

	"github.com/entratools/aad-token-validator/core"
	"github.com/entratools/aad-token-validator/token"
	"github.com/entratools/aad-token-validator/validator"
)

// SignatureStatus is the outcome of signature verification. Unknown means
// verification could not be attempted, usually because signing keys could
// not be fetched.
type SignatureStatus string

const (
	SignatureUnknown SignatureStatus = "unknown"
	SignatureValid   SignatureStatus = "valid"
	SignatureInvalid SignatureStatus = "invalid"
)

// TenantSource records where the tenant used for key resolution came from.
type TenantSource string

const (
	TenantFromOverride TenantSource = "override"
	TenantFromTID      TenantSource = "tid"
	TenantFromIssuer   TenantSource = "issuer"
	TenantFromDefault  TenantSource = "default"
)

// Report is the outcome of one validation run. Every check is recorded
// independently; a failed signature does not hide claim problems and the
// other way around.
type Report struct {
	Decoded bool
	Token   *token.Token

	// Tenant is the tenant whose keys were used. ExpectedTenant is the tenant
	// the issuer was checked against, which differs from Tenant when a domain
	// name override was mapped to its directory GUID.
	Tenant         string
	TenantSource   TenantSource
	ExpectedTenant string

	Signature      SignatureStatus
	SignatureError error

	IssuerValid  bool
	IssuerFormat validator.IssuerFormat
	IssuerError  error

	AudiencePresent bool

	HasExpiry    bool
	HasNotBefore bool
	HasIssuedAt  bool
	Expiry       int64
	NotBefore    int64
	IssuedAt     int64
	Expired      bool
	NotYetValid  bool
	IssuedAtSane bool

	// Problems lists every failed check in the order it was evaluated.
	Problems []error

	// Warnings are informational findings that leave the report valid.
	Warnings []string
}

// Valid reports whether the signature verified and every claim check passed.
// A future iat only shows up in IssuedAtSane and Warnings.
func (r *Report) Valid() bool {
	return r != nil &&
		r.Decoded &&
		r.Signature == SignatureValid &&
		r.IssuerValid &&
		r.AudiencePresent &&
		!r.Expired &&
		!r.NotYetValid
}

// Result classifies the report for metrics and logs.
func (r *Report) Result() string {
	switch {
	case r.Valid():
		return "valid"
	case r.Signature == SignatureUnknown:
		return "indeterminate"
	default:
		return "invalid"
	}
}

type problemJSON struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type reportJSON struct {
	Valid           bool            `json:"valid"`
	Result          string          `json:"result"`
	TokenType       token.Type      `json:"token_type,omitempty"`
	Tenant          string          `json:"tenant"`
	TenantSource    TenantSource    `json:"tenant_source"`
	ExpectedTenant  string          `json:"expected_tenant,omitempty"`
	Signature       SignatureStatus `json:"signature"`
	SignatureError  string          `json:"signature_error,omitempty"`
	IssuerValid     bool            `json:"issuer_valid"`
	IssuerFormat    string          `json:"issuer_format"`
	IssuerError     string          `json:"issuer_error,omitempty"`
	AudiencePresent bool            `json:"audience_present"`
	Audience        string          `json:"audience,omitempty"`
	Expiry          string          `json:"expires_at,omitempty"`
	NotBefore       string          `json:"not_before,omitempty"`
	IssuedAt        string          `json:"issued_at,omitempty"`
	Expired         bool            `json:"expired"`
	NotYetValid     bool            `json:"not_yet_valid"`
	IssuedAtSane    bool            `json:"issued_at_sane"`
	Header          *token.Object   `json:"header,omitempty"`
	Claims          *token.Claims   `json:"claims,omitempty"`
	Problems        []problemJSON   `json:"problems"`
	Warnings        []string        `json:"warnings,omitempty"`
}

// MarshalJSON renders the report for the service endpoints and the CLI
// --json output. Timestamps are rendered as UTC strings.
func (r *Report) MarshalJSON() ([]byte, error) {
	out := reportJSON{
		Valid:           r.Valid(),
		Result:          r.Result(),
		Tenant:          r.Tenant,
		TenantSource:    r.TenantSource,
		Signature:       r.Signature,
		SignatureError:  errString(r.SignatureError),
		IssuerValid:     r.IssuerValid,
		IssuerFormat:    string(r.IssuerFormat),
		IssuerError:     errString(r.IssuerError),
		AudiencePresent: r.AudiencePresent,
		Expired:         r.Expired,
		NotYetValid:     r.NotYetValid,
		IssuedAtSane:    r.IssuedAtSane,
		Problems:        make([]problemJSON, 0, len(r.Problems)),
		Warnings:        r.Warnings,
	}
	if r.ExpectedTenant != r.Tenant {
		out.ExpectedTenant = r.ExpectedTenant
	}
	if r.Token != nil {
		out.TokenType = r.Token.Type()
		out.Header = r.Token.Header.Fields
		out.Claims = r.Token.Claims
		out.Audience = r.Token.Claims.AudienceDisplay()
	}
	if r.HasExpiry {
		out.Expiry = token.FormatTimestamp(r.Expiry)
	}
	if r.HasNotBefore {
		out.NotBefore = token.FormatTimestamp(r.NotBefore)
	}
	if r.HasIssuedAt {
		out.IssuedAt = token.FormatTimestamp(r.IssuedAt)
	}
	for _, p := range r.Problems {
		out.Problems = append(out.Problems, problemJSON{Code: core.CodeOf(p), Message: p.Error()})
	}
	return json.Marshal(out)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
