package aadtoken

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/entratools/aad-token-validator/core"
)

// GinErrorHandler is the gin flavour of ErrorHandler. It must abort the
// request.
type GinErrorHandler func(c *gin.Context, err error)

// DefaultGinErrorHandler aborts with the same status codes and bodies as
// DefaultErrorHandler.
func DefaultGinErrorHandler(c *gin.Context, err error) {
	status, body := ErrorStatus(err)
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	c.AbortWithStatusJSON(status, body)
}

// GinMiddleware validates bearer tokens on gin routes.
type GinMiddleware struct {
	m            *Middleware
	errorHandler GinErrorHandler
}

// NewGin builds a GinMiddleware. It accepts the same options as
// NewMiddleware; WithErrorHandler is ignored in favour of errorHandler,
// which may be nil to use DefaultGinErrorHandler.
func NewGin(v TokenValidator, errorHandler GinErrorHandler, opts ...MiddlewareOption) (*GinMiddleware, error) {
	m, err := NewMiddleware(v, opts...)
	if err != nil {
		return nil, err
	}
	if errorHandler == nil {
		errorHandler = DefaultGinErrorHandler
	}
	return &GinMiddleware{m: m, errorHandler: errorHandler}, nil
}

// CheckToken returns the gin handler. Accepted reports are stored in the
// request context and under the gin key "aadtoken.report".
func (g *GinMiddleware) CheckToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		m := g.m
		if m.exclusionURLHandler != nil && m.exclusionURLHandler(c.Request) {
			c.Next()
			return
		}
		// If we don't validate on OPTIONS and this is OPTIONS
		// then continue onto next without validating.
		if !m.validateOnOptions && c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		raw, err := m.tokenExtractor(c.Request)
		if err != nil {
			g.errorHandler(c, fmt.Errorf("error extracting token: %w", err))
			return
		}

		if raw == "" && m.credentialsOptional {
			c.Next()
			return
		}

		report, err := Authenticate(c.Request.Context(), m.validator, raw, m.validateOptions)
		if err != nil {
			if !errors.Is(err, ErrTokenMissing) {
				m.logger.Warnf("token rejected for %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
			}
			g.errorHandler(c, err)
			return
		}

		c.Set(GinReportKey, report)
		c.Request = c.Request.Clone(core.SetReport(c.Request.Context(), report))
		c.Next()
	}
}

// GinReportKey is the gin context key holding the accepted report.
const GinReportKey = "aadtoken.report"
