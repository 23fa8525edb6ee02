package aadtoken

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/entratools/aad-token-validator/core"
)

// Middleware validates bearer tokens on net/http requests and stores the
// report of every accepted token in the request context.
type Middleware struct {
	validator           TokenValidator
	validateOptions     ValidateOptions
	errorHandler        ErrorHandler
	tokenExtractor      TokenExtractor
	validateOnOptions   bool
	credentialsOptional bool
	exclusionURLHandler ExclusionURLHandler
	logger              Logger
}

// ExclusionURLHandler is a function that takes in a http.Request and returns
// true if the request should be excluded from token validation.
type ExclusionURLHandler func(r *http.Request) bool

// NewMiddleware constructs a Middleware validating tokens with v.
//
// Example:
//
//	engine, err := aadtoken.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	mw, err := aadtoken.NewMiddleware(engine, aadtoken.WithTenant("contoso.onmicrosoft.com"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	http.Handle("/api", mw.CheckToken(handler))
func NewMiddleware(v TokenValidator, opts ...MiddlewareOption) (*Middleware, error) {
	if v == nil {
		return nil, ErrValidatorNil
	}
	m := &Middleware{
		validator:         v,
		errorHandler:      DefaultErrorHandler,
		tokenExtractor:    AuthHeaderTokenExtractor,
		validateOnOptions: true,
		logger:            noopLogger{},
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	return m, nil
}

// GetReport retrieves the report the middleware stored in ctx.
func GetReport(ctx context.Context) (*Report, error) {
	return core.GetReport[*Report](ctx)
}

// MustGetReport retrieves the report from ctx or panics.
// Use only when you are certain the middleware ran.
func MustGetReport(ctx context.Context) *Report {
	report, err := GetReport(ctx)
	if err != nil {
		panic(err)
	}
	return report
}

// CheckToken is the main Middleware function. It is passed a http.Handler
// which will be called if the token passes validation.
func (m *Middleware) CheckToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.exclusionURLHandler != nil && m.exclusionURLHandler(r) {
			m.logger.Debugf("skipping token validation for excluded URL %s", r.URL.Path)
			next.ServeHTTP(w, r)
			return
		}
		// If we don't validate on OPTIONS and this is OPTIONS
		// then continue onto next without validating.
		if !m.validateOnOptions && r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := m.tokenExtractor(r)
		if err != nil {
			// This is not ErrTokenMissing because an error here means that the
			// tokenExtractor had an error and _not_ that the token was missing.
			m.logger.Warnf("failed to extract token from %s %s: %v", r.Method, r.URL.Path, err)
			m.errorHandler(w, r, fmt.Errorf("error extracting token: %w", err))
			return
		}

		if raw == "" && m.credentialsOptional {
			next.ServeHTTP(w, r)
			return
		}

		report, err := Authenticate(r.Context(), m.validator, raw, m.validateOptions)
		if err != nil {
			if !errors.Is(err, ErrTokenMissing) {
				m.logger.Warnf("token rejected for %s %s: %v", r.Method, r.URL.Path, err)
			}
			m.errorHandler(w, r, err)
			return
		}

		r = r.Clone(core.SetReport(r.Context(), report))
		next.ServeHTTP(w, r)
	})
}

// MiddlewareOption configures the Middleware and GinMiddleware.
type MiddlewareOption func(*Middleware) error

// WithTenant pins key resolution and the issuer check to tenant instead of
// the tenant named in each token.
func WithTenant(tenant string) MiddlewareOption {
	return func(m *Middleware) error {
		m.validateOptions.TenantOverride = tenant
		return nil
	}
}

// WithValidateOptions sets every per-call option at once.
func WithValidateOptions(opts ValidateOptions) MiddlewareOption {
	return func(m *Middleware) error {
		m.validateOptions = opts
		return nil
	}
}

// WithCredentialsOptional sets whether credentials are optional.
// If set to true, requests without a token pass through without a report.
//
// Default: false (credentials required)
func WithCredentialsOptional(value bool) MiddlewareOption {
	return func(m *Middleware) error {
		m.credentialsOptional = value
		return nil
	}
}

// WithValidateOnOptions sets whether OPTIONS requests should have their token validated.
//
// Default: true (OPTIONS requests are validated)
func WithValidateOnOptions(value bool) MiddlewareOption {
	return func(m *Middleware) error {
		m.validateOnOptions = value
		return nil
	}
}

// WithErrorHandler sets the handler called when errors occur during token
// validation. It is not used by GinMiddleware, see WithGinErrorHandler.
//
// Default: DefaultErrorHandler
func WithErrorHandler(h ErrorHandler) MiddlewareOption {
	return func(m *Middleware) error {
		if h == nil {
			return ErrErrorHandlerNil
		}
		m.errorHandler = h
		return nil
	}
}

// WithTokenExtractor sets the function to extract the token from the request.
//
// Default: AuthHeaderTokenExtractor
func WithTokenExtractor(e TokenExtractor) MiddlewareOption {
	return func(m *Middleware) error {
		if e == nil {
			return ErrTokenExtractorNil
		}
		m.tokenExtractor = e
		return nil
	}
}

// WithExclusionUrls configures URL patterns to exclude from validation.
// URLs can be full URLs or just paths.
func WithExclusionUrls(exclusions []string) MiddlewareOption {
	return func(m *Middleware) error {
		if len(exclusions) == 0 {
			return ErrExclusionUrlsEmpty
		}
		m.exclusionURLHandler = func(r *http.Request) bool {
			for _, exclusion := range exclusions {
				if r.URL.String() == exclusion || r.URL.Path == exclusion {
					return true
				}
			}
			return false
		}
		return nil
	}
}

// WithMiddlewareLogger sets the logger for rejected and skipped requests.
func WithMiddlewareLogger(l Logger) MiddlewareOption {
	return func(m *Middleware) error {
		if l == nil {
			return ErrLoggerNil
		}
		m.logger = l
		return nil
	}
}

var (
	ErrValidatorNil       = errors.New("validator cannot be nil")
	ErrErrorHandlerNil    = errors.New("errorHandler cannot be nil")
	ErrTokenExtractorNil  = errors.New("tokenExtractor cannot be nil")
	ErrExclusionUrlsEmpty = errors.New("exclusion URLs list cannot be empty")
)
