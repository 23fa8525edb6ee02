package aadecho

import (
	"errors"
	"fmt"

	"github.com/labstack/echo/v4"

	aadtoken "github.com/entratools/aad-token-validator"
	"github.com/entratools/aad-token-validator/core"
)

// DefaultReportKey is the echo context key the report is stored under.
var DefaultReportKey = "aadtoken.report"

// echoMiddlewareConfig holds all configuration for the middleware
type echoMiddlewareConfig struct {
	errorHandler        func(echo.Context, error) error
	contextKey          string
	tokenExtractor      aadtoken.TokenExtractor
	validateOptions     aadtoken.ValidateOptions
	credentialsOptional bool
}

// NewEchoMiddleware returns echo middleware that validates the bearer token
// of every request with v. Accepted reports are stored in the echo context
// under the report key and in the request context.
func NewEchoMiddleware(v aadtoken.TokenValidator, opts ...Option) (echo.MiddlewareFunc, error) {
	if v == nil {
		return nil, aadtoken.ErrValidatorNil
	}
	config := &echoMiddlewareConfig{
		errorHandler:   defaultEchoErrorHandler,
		contextKey:     DefaultReportKey,
		tokenExtractor: aadtoken.AuthHeaderTokenExtractor,
	}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := config.tokenExtractor(c.Request())
			if err != nil {
				return config.errorHandler(c, fmt.Errorf("error extracting token: %w", err))
			}
			if raw == "" && config.credentialsOptional {
				return next(c)
			}

			report, err := aadtoken.Authenticate(c.Request().Context(), v, raw, config.validateOptions)
			if err != nil {
				return config.errorHandler(c, err)
			}

			c.Set(config.contextKey, report)
			c.SetRequest(c.Request().WithContext(core.SetReport(c.Request().Context(), report)))
			return next(c)
		}
	}, nil
}

// defaultEchoErrorHandler answers with the status codes and bodies of
// aadtoken.DefaultErrorHandler.
func defaultEchoErrorHandler(c echo.Context, err error) error {
	status, body := aadtoken.ErrorStatus(err)
	if errors.Is(err, aadtoken.ErrTokenInvalid) {
		c.Response().Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	return c.JSON(status, body)
}

// GetReport extracts the report from the echo context.
func GetReport(c echo.Context, contextKey string) (*aadtoken.Report, bool) {
	report, ok := c.Get(contextKey).(*aadtoken.Report)
	return report, ok
}
