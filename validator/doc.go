/*
Package validator holds the two CPU-only checks of a validation run.

VerifySignature checks an RS256 signature against one published key:

	outcome := validator.VerifySignature(tok, key)
	if !outcome.Valid {
	    // outcome.Err matches core.ErrUnsupportedAlgorithm,
	    // core.ErrUnknownKeyID, core.ErrKeyConstruction or
	    // core.ErrSignatureInvalid
	}

Only RS256 is accepted. "none" and HMAC tokens are refused before any key
is used.

ValidateClaims checks the issuer, the presence of an audience and the time
claims:

	report := validator.ValidateClaims(tok.Claims, time.Now(), tenant, validator.ClaimsOptions{
	    ClockSkew: validator.DefaultClockSkew,
	})

Azure AD issuers take one of two forms:

	https://sts.windows.net/{tid}/                  (v1.0)
	https://login.microsoftonline.com/{tid}/v2.0    (v2.0)

When the expected tenant is common, organizations or consumers, any tenant id
is accepted as long as it agrees with the token's tid claim.
*/
package validator
