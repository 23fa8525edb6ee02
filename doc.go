/*
Package aadtoken validates and inspects tokens issued by Azure AD.

An Engine decodes a compact JWT, resolves the signing keys published for the
tenant, verifies the RS256 signature and checks the issuer, audience and time
claims. Every check is recorded in a Report; a failed check never hides the
result of another.

# Quick Start

	engine, err := aadtoken.New(
	    aadtoken.WithLogger(aadtoken.NewLogrusLogger(logrus.StandardLogger())),
	)
	if err != nil {
	    log.Fatal(err)
	}

	report, err := engine.Validate(ctx, raw, aadtoken.ValidateOptions{})
	if err != nil {
	    // the token could not be decoded
	    log.Fatal(err)
	}
	if !report.Valid() {
	    for _, p := range report.Problems {
	        fmt.Println(p)
	    }
	}

# Tenants

Keys are resolved for the tenant given in ValidateOptions.TenantOverride,
else the token's tid claim, else the tenant segment of its issuer, else
"common". A verified domain may be given as override; the issuer is then
checked against the tenant id found in the domain's discovery document.

# Signature status

The signature is valid, invalid or unknown. Unknown means the keys could not
be fetched or the fetch timed out; the claims are still checked.

# HTTP

Middleware and GinMiddleware extract a bearer token, run the engine and
store accepted reports in the request context:

	mw, err := aadtoken.NewMiddleware(engine)
	if err != nil {
	    log.Fatal(err)
	}
	http.Handle("/api/", mw.CheckToken(apiHandler))

	func apiHandler(w http.ResponseWriter, r *http.Request) {
	    report, err := aadtoken.GetReport(r.Context())
	    ...
	}

Missing tokens get 400, rejected tokens 401 and key endpoint outages 503.
*/
package aadtoken
