/*
Package core holds the pieces shared by every layer of the validator: the
error taxonomy and the context helpers used by transport adapters.

# Errors

Every failure past decoding is a *ValidationError carrying a machine-readable
code. Each code has a sentinel so callers can branch with errors.Is:

	switch {
	case errors.Is(err, core.ErrTimeout):
	    // the JWKS endpoint did not answer in time
	case errors.Is(err, core.ErrJWKSFetch):
	    // network or HTTP failure after one retry
	case errors.Is(err, core.ErrUnknownKeyID):
	    // kid not published, even after a forced refresh
	}

A timeout also matches ErrJWKSFetch. CodeOf returns the code for logs and
metric labels.

# Context

Adapters store the validation report with SetReport and handlers read it back
with GetReport:

	report, err := core.GetReport[*aadtoken.Report](r.Context())
*/
package core
