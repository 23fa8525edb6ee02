package aadtoken

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entratools/aad-token-validator/core"
	"github.com/entratools/aad-token-validator/jwks"
	"github.com/entratools/aad-token-validator/token"
	"github.com/entratools/aad-token-validator/validator"
)

// MetricValidationsTotal counts validation runs by result: valid, invalid,
// indeterminate or malformed.
const MetricValidationsTotal = "aadtoken_validations_total"

// KeyResolver finds the signing key for a tenant and key id. *jwks.Resolver
// implements it.
type KeyResolver interface {
	ResolveKey(ctx context.Context, tenant, kid string) (*jwks.JWK, *jwks.JWKS, error)
}

// ValidateOptions are the per-call settings of Engine.Validate.
type ValidateOptions struct {
	// TenantOverride, when set, is used for key resolution instead of the
	// tenant found in the token. It may be a tenant id, a verified domain or
	// a multi-tenant alias.
	TenantOverride string

	// SkipExpiration disables the exp check.
	SkipExpiration bool

	// ClockSkew overrides the engine's default leeway when non-nil.
	ClockSkew *time.Duration
}

// Engine decodes a token, verifies its signature against the tenant's
// published keys and checks its claims. An Engine is safe for concurrent
// use; runs share the resolver and its cache.
type Engine struct {
	resolver    KeyResolver
	logger      Logger
	metrics     Metrics
	tracer      Tracer
	now         func() time.Time
	clockSkew   time.Duration
	resolverOps []jwks.ResolverOption
}

// New builds an Engine. Without WithResolver a jwks.Resolver against the
// public Azure AD authority is created, sharing the engine's logger and
// metrics.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:    noopLogger{},
		metrics:   &NoopMetrics{},
		tracer:    &NoopTracer{},
		now:       time.Now,
		clockSkew: validator.DefaultClockSkew,
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	if e.resolver == nil {
		ops := append([]jwks.ResolverOption{
			jwks.WithLogger(e.logger),
			jwks.WithMetrics(e.metrics),
		}, e.resolverOps...)
		r, err := jwks.NewResolver(ops...)
		if err != nil {
			return nil, fmt.Errorf("could not create key resolver: %w", err)
		}
		e.resolver = r
	}

	return e, nil
}

// Validate runs every check on raw and returns the report.
//
// The only error returned is a core.ErrMalformedToken when raw cannot be
// decoded; every other failure, including an unreachable key endpoint, is
// recorded in the report.
func (e *Engine) Validate(ctx context.Context, raw string, opts ValidateOptions) (*Report, error) {
	ctx, span := e.tracer.StartSpan(ctx, "aadtoken.Validate")
	defer span.Finish()

	tok, err := token.Decode(raw)
	if err != nil {
		e.logger.Debugf("token could not be decoded: %v", err)
		e.metrics.IncCounter(MetricValidationsTotal, map[string]string{"result": "malformed"})
		span.RecordError(err)
		return nil, err
	}

	report := &Report{
		Decoded:   true,
		Token:     tok,
		Signature: SignatureUnknown,
	}
	report.Tenant, report.TenantSource = selectTenant(opts.TenantOverride, tok.Claims)
	report.ExpectedTenant = report.Tenant
	span.SetTag("tenant", report.Tenant)
	span.SetTag("tenant_source", string(report.TenantSource))
	span.SetTag("kid", tok.Header.Kid)

	e.verify(ctx, tok, report)

	skew := e.clockSkew
	if opts.ClockSkew != nil {
		skew = *opts.ClockSkew
	}
	expected := report.ExpectedTenant
	if report.TenantSource == TenantFromOverride && !validator.IsTenantGUID(expected) && !validator.IsMultiTenant(expected) {
		// an unmapped domain cannot be compared with the GUID in the issuer
		report.Warnings = append(report.Warnings, fmt.Sprintf("tenant %q could not be mapped to a tenant id; the issuer tenant was not compared", expected))
		expected = ""
	}
	claims := validator.ValidateClaims(tok.Claims, e.now(), expected, validator.ClaimsOptions{
		SkipExpiration: opts.SkipExpiration,
		ClockSkew:      skew,
	})
	report.apply(claims)

	if report.TenantSource == TenantFromOverride {
		checkOverride(report, tok.Claims.TenantID())
	}

	result := report.Result()
	span.SetTag("result", result)
	e.metrics.IncCounter(MetricValidationsTotal, map[string]string{"result": result})
	e.logger.Infof("token for tenant %s validated: %s (%d problems)", report.Tenant, result, len(report.Problems))

	return report, nil
}

// verify fills in the signature part of report. The algorithm is checked
// before any key is fetched.
func (e *Engine) verify(ctx context.Context, tok *token.Token, report *Report) {
	if err := validator.CheckAlgorithm(tok.Header.Alg); err != nil {
		report.signatureFailed(SignatureInvalid, err)
		return
	}

	key, set, err := e.resolver.ResolveKey(ctx, report.Tenant, tok.Header.Kid)
	if guid, ok := directoryTenant(report.Tenant, set); ok {
		report.ExpectedTenant = guid
	}
	switch {
	case err == nil:
	case errors.Is(err, core.ErrJWKSFetch):
		e.logger.Warnf("signing keys for tenant %s unavailable: %v", report.Tenant, err)
		report.signatureFailed(SignatureUnknown, err)
		return
	default:
		report.signatureFailed(SignatureInvalid, err)
		return
	}

	outcome := validator.VerifySignature(tok, key)
	if !outcome.Valid {
		report.signatureFailed(SignatureInvalid, outcome.Err)
		return
	}
	report.Signature = SignatureValid
}

func (r *Report) signatureFailed(status SignatureStatus, err error) {
	r.Signature = status
	r.SignatureError = err
	r.Problems = append(r.Problems, err)
}

func (r *Report) apply(c validator.ClaimsReport) {
	r.IssuerValid = c.IssuerValid
	r.IssuerFormat = c.IssuerFormat
	r.IssuerError = c.IssuerError
	r.AudiencePresent = c.AudiencePresent
	r.HasExpiry, r.Expiry = c.HasExpiry, c.Expiry
	r.HasNotBefore, r.NotBefore = c.HasNotBefore, c.NotBefore
	r.HasIssuedAt, r.IssuedAt = c.HasIssuedAt, c.IssuedAt
	r.Expired = c.Expired
	r.NotYetValid = c.NotYetValid
	r.IssuedAtSane = c.IssuedAtSane
	r.Problems = append(r.Problems, c.Problems...)
	r.Warnings = append(r.Warnings, c.Warnings...)
}

// selectTenant picks the tenant used for key resolution: the override, then
// the tid claim, then the issuer's tenant segment, then common.
func selectTenant(override string, claims *token.Claims) (string, TenantSource) {
	if t := strings.TrimSpace(override); t != "" {
		return t, TenantFromOverride
	}
	if tid := claims.TenantID(); tid != "" {
		return tid, TenantFromTID
	}
	if t, ok := validator.TenantFromIssuer(claims.Issuer()); ok {
		return t, TenantFromIssuer
	}
	return jwks.CommonTenant, TenantFromDefault
}

// directoryTenant maps a verified domain to the tenant id found in the
// discovery issuer, since tokens always carry the GUID.
func directoryTenant(tenant string, set *jwks.JWKS) (string, bool) {
	if set == nil || validator.IsTenantGUID(tenant) || validator.IsMultiTenant(tenant) {
		return "", false
	}
	guid, ok := validator.TenantFromIssuer(set.Issuer)
	if !ok || !validator.IsTenantGUID(guid) {
		return "", false
	}
	return guid, true
}

// checkOverride records an issuer mismatch when the issuer agrees with the
// override but the token's tid names a different tenant.
func checkOverride(r *Report, tid string) {
	if !r.IssuerValid || tid == "" || !validator.IsTenantGUID(r.ExpectedTenant) || strings.EqualFold(tid, r.ExpectedTenant) {
		return
	}
	r.IssuerValid = false
	r.IssuerError = core.NewValidationError(
		core.ErrorCodeInvalidIssuer,
		"issuer mismatch",
		fmt.Errorf("token tid %q does not match tenant %q", tid, r.ExpectedTenant),
	)
	r.Problems = append(r.Problems, r.IssuerError)
}
