package validator

import (
	"fmt"
	"time"

	"github.com/entratools/aad-token-validator/core"
	"github.com/entratools/aad-token-validator/token"
)

// DefaultClockSkew is the leeway applied to exp, nbf and iat.
const DefaultClockSkew = 300 * time.Second

// ClaimsOptions tunes ValidateClaims.
type ClaimsOptions struct {
	SkipExpiration bool
	ClockSkew      time.Duration
}

// ClaimsReport is the outcome of every claim check. Checks are independent:
// one failing never hides the result of another.
type ClaimsReport struct {
	IssuerValid  bool
	IssuerFormat IssuerFormat
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

	// Problems lists every failed check in the order they were made.
	Problems []error

	// Warnings are findings that do not make the claims invalid, such as an
	// iat in the future.
	Warnings []string
}

// ValidateClaims checks issuer, audience presence and the time claims of
// claims against tenant at now.
//
// tenant may be a tenant id, a verified domain or one of the multi-tenant
// aliases (common, organizations, consumers).
func ValidateClaims(claims *token.Claims, now time.Time, tenant string, opts ClaimsOptions) ClaimsReport {
	r := ClaimsReport{IssuedAtSane: true}
	skew := opts.ClockSkew
	if skew < 0 {
		skew = 0
	}
	unix := now.Unix()
	skewSeconds := int64(skew / time.Second)

	format, err := checkIssuer(claims.Issuer(), tenant, claims.TenantID())
	r.IssuerFormat = format
	if err != nil {
		r.IssuerError = core.NewValidationError(core.ErrorCodeInvalidIssuer, "issuer mismatch", err)
		r.Problems = append(r.Problems, r.IssuerError)
	} else {
		r.IssuerValid = true
	}

	r.AudiencePresent = audiencePresent(claims)
	if !r.AudiencePresent {
		r.Problems = append(r.Problems, core.NewValidationError(
			core.ErrorCodeInvalidAudience, "audience missing", fmt.Errorf(`"aud" is absent or empty`),
		))
	}

	var ok bool
	if r.NotBefore, ok = dateClaim(claims, token.ClaimNotBefore, &r); ok {
		r.HasNotBefore = true
		if unix+skewSeconds < r.NotBefore {
			r.NotYetValid = true
			r.Problems = append(r.Problems, core.NewValidationError(
				core.ErrorCodeTokenNotYetValid, "token not yet valid",
				fmt.Errorf("nbf %s is after %s", token.FormatTimestamp(r.NotBefore), token.FormatTimestamp(unix)),
			))
		}
	}

	if r.Expiry, ok = dateClaim(claims, token.ClaimExpiry, &r); ok {
		r.HasExpiry = true
		if !opts.SkipExpiration && unix-skewSeconds > r.Expiry {
			r.Expired = true
			r.Problems = append(r.Problems, core.NewValidationError(
				core.ErrorCodeTokenExpired, "token expired",
				fmt.Errorf("exp %s is before %s", token.FormatTimestamp(r.Expiry), token.FormatTimestamp(unix)),
			))
		}
	}

	if r.IssuedAt, ok = dateClaim(claims, token.ClaimIssuedAt, &r); ok {
		r.HasIssuedAt = true
		if r.IssuedAt > unix+skewSeconds {
			r.IssuedAtSane = false
			r.Warnings = append(r.Warnings, fmt.Sprintf("iat %s is in the future", token.FormatTimestamp(r.IssuedAt)))
		}
	}
	return r
}

// dateClaim reads a NumericDate. A claim of the wrong type counts as absent
// and is recorded as a problem.
func dateClaim(claims *token.Claims, name string, r *ClaimsReport) (int64, bool) {
	v, present, err := claims.NumericDate(name)
	if err != nil {
		r.Problems = append(r.Problems, err)
		return 0, false
	}
	return v, present
}

func audiencePresent(claims *token.Claims) bool {
	for _, aud := range claims.Audience() {
		if aud != "" {
			return true
		}
	}
	return false
}

// Valid reports whether every check passed. IssuedAtSane is informational
// and does not take part.
func (r ClaimsReport) Valid() bool {
	return r.IssuerValid && r.AudiencePresent && !r.Expired && !r.NotYetValid
}
