package validator

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// IssuerFormat is the Azure AD endpoint version an issuer belongs to.
type IssuerFormat string

const (
	IssuerV1      IssuerFormat = "v1.0"
	IssuerV2      IssuerFormat = "v2.0"
	IssuerUnknown IssuerFormat = "unknown"
)

const (
	v1IssuerPrefix = "https://sts.windows.net/"
	v2IssuerPrefix = "https://login.microsoftonline.com/"
	v2IssuerSuffix = "/v2.0"
)

// Multi-tenant aliases. Tokens are never issued by them, so any tenant GUID
// is accepted in their place.
var multiTenantAliases = map[string]bool{
	"common":        true,
	"organizations": true,
	"consumers":     true,
}

// IsMultiTenant reports whether tenant is common, organizations or consumers.
func IsMultiTenant(tenant string) bool {
	return multiTenantAliases[strings.ToLower(tenant)]
}

// IsTenantGUID reports whether s is a tenant id in canonical GUID form.
func IsTenantGUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// V1Issuer and V2Issuer build the issuer Azure AD uses for tenant.
func V1Issuer(tenant string) string { return v1IssuerPrefix + tenant + "/" }
func V2Issuer(tenant string) string { return v2IssuerPrefix + tenant + v2IssuerSuffix }

// ParseIssuer splits an Azure AD issuer into its format and tenant segment.
// ok is false when iss matches neither template.
func ParseIssuer(iss string) (format IssuerFormat, tenant string, ok bool) {
	switch {
	case len(iss) > len(v1IssuerPrefix) && strings.HasPrefix(iss, v1IssuerPrefix) && strings.HasSuffix(iss, "/"):
		tenant = iss[len(v1IssuerPrefix) : len(iss)-1]
		format = IssuerV1
	case len(iss) >= len(v2IssuerPrefix)+len(v2IssuerSuffix) && strings.HasPrefix(iss, v2IssuerPrefix) && strings.HasSuffix(iss, v2IssuerSuffix):
		tenant = iss[len(v2IssuerPrefix) : len(iss)-len(v2IssuerSuffix)]
		format = IssuerV2
	default:
		return IssuerUnknown, "", false
	}
	if tenant == "" || strings.Contains(tenant, "/") {
		return IssuerUnknown, "", false
	}
	return format, tenant, true
}

// TenantFromIssuer returns the tenant segment of an Azure AD issuer.
func TenantFromIssuer(iss string) (string, bool) {
	_, tenant, ok := ParseIssuer(iss)
	return tenant, ok
}

// checkIssuer verifies iss against the expected tenant. For multi-tenant
// aliases the issuer tenant must be a GUID and, when the token carries tid,
// equal to it.
func checkIssuer(iss, expectedTenant, tid string) (IssuerFormat, error) {
	if iss == "" {
		return IssuerUnknown, fmt.Errorf(`missing "iss" claim`)
	}
	format, issTenant, ok := ParseIssuer(iss)
	if !ok {
		return IssuerUnknown, fmt.Errorf("issuer %q is not an Azure AD v1.0 or v2.0 issuer", iss)
	}

	if expectedTenant == "" || IsMultiTenant(expectedTenant) {
		if !IsTenantGUID(issTenant) {
			return format, fmt.Errorf("issuer tenant %q is not a tenant id", issTenant)
		}
		if tid != "" && !strings.EqualFold(tid, issTenant) {
			return format, fmt.Errorf("issuer tenant %q does not match tid %q", issTenant, tid)
		}
		return format, nil
	}

	if !strings.EqualFold(issTenant, expectedTenant) {
		return format, fmt.Errorf("issuer tenant %q does not match expected tenant %q", issTenant, expectedTenant)
	}
	return format, nil
}
