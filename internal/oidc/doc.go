/*
Package oidc fetches the Azure AD OpenID Connect discovery document.

Every tenant publishes its metadata at

	{authority}/{tenant}/v2.0/.well-known/openid-configuration

The validator only reads two members: issuer, recorded next to the fetched
keys, and jwks_uri, the location of the tenant's signing keys.

	u := oidc.DiscoveryURL(authority, "contoso.onmicrosoft.com")
	endpoints, err := oidc.GetWellKnownEndpoints(ctx, client, u)

Non-2xx answers are reported as *StatusError. The document must carry a
jwks_uri.
*/
package oidc
