package cli

import (
	"fmt"
	"io"

	aadtoken "github.com/entratools/aad-token-validator"
	"github.com/entratools/aad-token-validator/token"
)

// printReport writes the human-readable form of report.
func printReport(w io.Writer, report *aadtoken.Report) {
	tok := report.Token
	claims := tok.Claims

	fmt.Fprintln(w, "=== Token Information ===")
	fmt.Fprintf(w, "Token type: %s\n", tok.Type())
	fmt.Fprintf(w, "Issuer: %s\n", claims.Issuer())
	fmt.Fprintf(w, "Audience: %s\n", claims.AudienceDisplay())
	fmt.Fprintf(w, "Not before: %s\n", timestamp(report.NotBefore, report.HasNotBefore))
	fmt.Fprintf(w, "Issued at: %s\n", timestamp(report.IssuedAt, report.HasIssuedAt))
	fmt.Fprintf(w, "Expiration: %s\n", timestamp(report.Expiry, report.HasExpiry))

	optional := []struct{ label, value string }{
		{"Name", claims.Name()},
		{"Email", claims.Email()},
		{"Username", claims.PreferredUsername()},
		{"UPN", claims.UPN()},
		{"App ID", claims.AppID()},
		{"Scope", claims.Scope()},
	}
	for _, field := range optional {
		if field.value != "" {
			fmt.Fprintf(w, "%s: %s\n", field.label, field.value)
		}
	}

	if extra := claims.Additional(); extra.Len() > 0 {
		fmt.Fprintln(w, "\n=== Additional Claims ===")
		extra.Range(func(name string, v token.Value) bool {
			fmt.Fprintf(w, "%s: %s\n", name, v)
			return true
		})
	}

	fmt.Fprintln(w, "\n=== Validation Result ===")
	fmt.Fprintf(w, "Tenant: %s (%s)\n", report.Tenant, report.TenantSource)
	switch report.Signature {
	case aadtoken.SignatureValid:
		fmt.Fprintln(w, "Signature: valid")
	case aadtoken.SignatureInvalid:
		fmt.Fprintf(w, "Signature: invalid (%v)\n", report.SignatureError)
	default:
		fmt.Fprintf(w, "Signature: not checked (%v)\n", report.SignatureError)
	}
	if report.IssuerValid {
		fmt.Fprintf(w, "Issuer: valid (%s)\n", report.IssuerFormat)
	} else {
		fmt.Fprintf(w, "Issuer: invalid (%v)\n", report.IssuerError)
	}
	for _, problem := range report.Problems {
		fmt.Fprintf(w, "Problem: %v\n", problem)
	}
	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}
	fmt.Fprintf(w, "Result: %s\n", report.Result())
}

func timestamp(unix int64, present bool) string {
	if !present {
		return "Not present"
	}
	return token.FormatTimestamp(unix)
}
