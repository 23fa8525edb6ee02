package aadecho

import (
	"errors"

	"github.com/labstack/echo/v4"

	aadtoken "github.com/entratools/aad-token-validator"
)

// Option is a function that configures the middleware
type Option func(*echoMiddlewareConfig) error

// WithErrorHandler sets a custom error handler. Its return value is returned
// from the middleware.
func WithErrorHandler(handler func(echo.Context, error) error) Option {
	return func(config *echoMiddlewareConfig) error {
		if handler == nil {
			return errors.New("error handler cannot be nil")
		}
		config.errorHandler = handler
		return nil
	}
}

// WithContextKey sets a custom context key to store the report
func WithContextKey(key string) Option {
	return func(config *echoMiddlewareConfig) error {
		if key == "" {
			return errors.New("context key cannot be empty")
		}
		config.contextKey = key
		return nil
	}
}

// WithTokenExtractor sets a custom token extractor
func WithTokenExtractor(extractor aadtoken.TokenExtractor) Option {
	return func(config *echoMiddlewareConfig) error {
		if extractor == nil {
			return aadtoken.ErrTokenExtractorNil
		}
		config.tokenExtractor = extractor
		return nil
	}
}

// WithValidateOptions sets the per-call options passed to the validator.
func WithValidateOptions(opts aadtoken.ValidateOptions) Option {
	return func(config *echoMiddlewareConfig) error {
		config.validateOptions = opts
		return nil
	}
}

// WithCredentialsOptional lets requests without a token through without a
// report.
func WithCredentialsOptional(value bool) Option {
	return func(config *echoMiddlewareConfig) error {
		config.credentialsOptional = value
		return nil
	}
}
