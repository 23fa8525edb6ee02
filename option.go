package aadtoken

import (
	"errors"
	"time"

	"github.com/entratools/aad-token-validator/jwks"
)

// Option configures the Engine.
// Returns error for validation failures.
type Option func(*Engine) error

// WithResolver sets the key resolver. Use it to share one *jwks.Resolver,
// and therefore one cache, between several engines.
//
// Default: a jwks.Resolver for https://login.microsoftonline.com with an
// in-memory cache.
func WithResolver(r KeyResolver) Option {
	return func(e *Engine) error {
		if r == nil {
			return ErrResolverNil
		}
		e.resolver = r
		return nil
	}
}

// WithResolverOptions passes options to the default resolver. It has no
// effect together with WithResolver.
//
// Example:
//
//	engine, err := aadtoken.New(
//	    aadtoken.WithResolverOptions(
//	        jwks.WithCache(redisCache),
//	        jwks.WithTimeout(5*time.Second),
//	    ),
//	)
func WithResolverOptions(opts ...jwks.ResolverOption) Option {
	return func(e *Engine) error {
		e.resolverOps = append(e.resolverOps, opts...)
		return nil
	}
}

// WithLogger sets the logger used by the engine and the default resolver.
func WithLogger(l Logger) Option {
	return func(e *Engine) error {
		if l == nil {
			return ErrLoggerNil
		}
		e.logger = l
		return nil
	}
}

// WithMetrics sets the metrics sink used by the engine and the default
// resolver.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) error {
		if m == nil {
			return ErrMetricsNil
		}
		e.metrics = m
		return nil
	}
}

// WithTracer sets the tracer. One span is started per validation.
func WithTracer(t Tracer) Option {
	return func(e *Engine) error {
		if t == nil {
			return ErrTracerNil
		}
		e.tracer = t
		return nil
	}
}

// WithClock sets the time source for the time claim checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) error {
		if now == nil {
			return ErrClockNil
		}
		e.now = now
		return nil
	}
}

// WithDefaultClockSkew sets the leeway applied to exp, nbf and iat when a
// call does not pass its own.
//
// Default: 300 seconds
func WithDefaultClockSkew(skew time.Duration) Option {
	return func(e *Engine) error {
		if skew < 0 {
			return ErrNegativeClockSkew
		}
		e.clockSkew = skew
		return nil
	}
}

// Sentinel errors for configuration validation
var (
	ErrResolverNil       = errors.New("resolver cannot be nil")
	ErrLoggerNil         = errors.New("logger cannot be nil")
	ErrMetricsNil        = errors.New("metrics cannot be nil")
	ErrTracerNil         = errors.New("tracer cannot be nil")
	ErrClockNil          = errors.New("clock cannot be nil")
	ErrNegativeClockSkew = errors.New("clock skew cannot be negative")
)
