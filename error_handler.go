package aadtoken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/entratools/aad-token-validator/core"
)

var (
	// ErrTokenMissing is returned when the request carries no token.
	ErrTokenMissing = errors.New("token missing")

	// ErrTokenInvalid is returned when the token is malformed or one of its
	// checks failed.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrKeysUnavailable is returned when the signature could not be checked
	// because the tenant's signing keys could not be fetched.
	ErrKeysUnavailable = errors.New("signing keys unavailable")
)

// TokenValidator validates a raw token. *Engine implements it.
type TokenValidator interface {
	Validate(ctx context.Context, raw string, opts ValidateOptions) (*Report, error)
}

// Authenticate validates raw for a transport adapter and classifies the
// outcome. It returns the report and a nil error only when the report is
// valid. Otherwise the error matches ErrTokenMissing, ErrTokenInvalid or
// ErrKeysUnavailable, and the report, when there is one, is returned too.
func Authenticate(ctx context.Context, v TokenValidator, raw string, opts ValidateOptions) (*Report, error) {
	if raw == "" {
		return nil, ErrTokenMissing
	}

	report, err := v.Validate(ctx, raw, opts)
	if err != nil {
		return nil, &invalidError{details: err}
	}
	if report.Valid() {
		return report, nil
	}
	if report.Signature == SignatureUnknown {
		return report, &unavailableError{details: report.SignatureError}
	}

	var details error = ErrTokenInvalid
	if len(report.Problems) > 0 {
		details = report.Problems[0]
	}
	return report, &invalidError{details: details, report: report}
}

// ErrorHandler is a handler which is called when an error occurs in the
// Middleware. Among some general errors, this handler also determines the
// response of the Middleware when a token is not found or is invalid. The
// err can be checked to be ErrTokenMissing, ErrTokenInvalid or
// ErrKeysUnavailable for specific cases. The default handler will return a
// status code of 400 for ErrTokenMissing, 401 for ErrTokenInvalid, 503 for
// ErrKeysUnavailable and 500 for all other errors.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// ErrorResponse is the JSON body written by the default error handlers.
type ErrorResponse struct {
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
	Details []string `json:"details,omitempty"`
}

// DefaultErrorHandler is the default error handler implementation for the
// Middleware. If an error handler is not provided via the WithErrorHandler
// option this will be used.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	status, body := ErrorStatus(err)
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ErrorStatus maps a middleware error to its HTTP status and response body.
// It is shared by the net/http, gin and echo adapters.
func ErrorStatus(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, ErrTokenMissing):
		return http.StatusBadRequest, ErrorResponse{Message: "Token is missing."}
	case errors.Is(err, ErrKeysUnavailable):
		return http.StatusServiceUnavailable, ErrorResponse{
			Message: "Signing keys could not be fetched.",
			Code:    core.CodeOf(err),
		}
	case errors.Is(err, ErrTokenInvalid):
		resp := ErrorResponse{Message: "Token is invalid.", Code: core.CodeOf(err)}
		var ie *invalidError
		if errors.As(err, &ie) && ie.report != nil {
			for _, p := range ie.report.Problems {
				resp.Details = append(resp.Details, p.Error())
			}
		}
		return http.StatusUnauthorized, resp
	default:
		return http.StatusInternalServerError, ErrorResponse{Message: "Something went wrong while checking the token."}
	}
}

// invalidError handles wrapping a validation error with the concrete error
// ErrTokenInvalid. We do not expose this publicly because the interface
// methods of Is and Unwrap should give the user all they need.
type invalidError struct {
	details error
	report  *Report
}

// Is allows the error to support equality to ErrTokenInvalid.
func (e *invalidError) Is(target error) bool {
	return target == ErrTokenInvalid
}

func (e *invalidError) Error() string {
	return fmt.Sprintf("%s: %s", ErrTokenInvalid, e.details)
}

// Unwrap allows the error to support equality to the underlying error and
// not just ErrTokenInvalid.
func (e *invalidError) Unwrap() error {
	return e.details
}

type unavailableError struct {
	details error
}

func (e *unavailableError) Is(target error) bool {
	return target == ErrKeysUnavailable
}

func (e *unavailableError) Error() string {
	return fmt.Sprintf("%s: %s", ErrKeysUnavailable, e.details)
}

func (e *unavailableError) Unwrap() error {
	return e.details
}
