package core

import "errors"

// Sentinel errors, one per error code. A *ValidationError matches the
// sentinel of its code through errors.Is.
var (
	// ErrMalformedToken is returned when the compact token cannot be decoded.
	// It is the only error that aborts a validation run.
	ErrMalformedToken = errors.New("malformed token")

	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
	ErrUnknownKeyID         = errors.New("unknown key id")

	// ErrJWKSFetch covers network, DNS, TLS, HTTP status and body decoding
	// failures while talking to the discovery or JWKS endpoints.
	ErrJWKSFetch = errors.New("jwks fetch failed")

	// ErrTimeout is returned when a JWKS fetch exceeds its deadline. Timeout
	// errors also match ErrJWKSFetch.
	ErrTimeout = errors.New("timeout")

	ErrKeyConstruction  = errors.New("key construction failed")
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrExpired          = errors.New("token expired")
	ErrNotYetValid      = errors.New("token not yet valid")
	ErrIssuerMismatch   = errors.New("issuer mismatch")
	ErrAudienceMissing  = errors.New("audience missing")
	ErrGraphCallFailed  = errors.New("graph call failed")

	// ErrReportNotFound is returned when no report is stored in a context.
	ErrReportNotFound = errors.New("report not found in context")
)

// ValidationError wraps validation errors with additional context.
// It provides structured error information that can be used for
// logging, metrics, and returning appropriate error responses.
type ValidationError struct {
	// Code is a machine-readable error code (e.g., "token_expired", "invalid_signature")
	Code string

	// Message is a human-readable error message
	Message string

	// Details contains the underlying error
	Details error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Details != nil {
		return e.Message + ": " + e.Details.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ValidationError) Unwrap() error {
	return e.Details
}

// Is reports whether target is the sentinel for this error's code.
func (e *ValidationError) Is(target error) bool {
	if target == nil {
		return false
	}
	if target == sentinels[e.Code] {
		return true
	}
	return e.Code == ErrorCodeTimeout && target == ErrJWKSFetch
}

// Error codes
const (
	ErrorCodeTokenMalformed       = "token_malformed"
	ErrorCodeUnsupportedAlgorithm = "unsupported_algorithm"
	ErrorCodeJWKSKeyNotFound      = "jwks_key_not_found"
	ErrorCodeJWKSFetchFailed      = "jwks_fetch_failed"
	ErrorCodeTimeout              = "timeout"
	ErrorCodeKeyConstruction      = "key_construction_failed"
	ErrorCodeInvalidSignature     = "invalid_signature"
	ErrorCodeTokenExpired         = "token_expired"
	ErrorCodeTokenNotYetValid     = "token_not_yet_valid"
	ErrorCodeInvalidIssuer        = "invalid_issuer"
	ErrorCodeInvalidAudience      = "invalid_audience"
	ErrorCodeGraphCallFailed      = "graph_call_failed"
)

var sentinels = map[string]error{
	ErrorCodeTokenMalformed:       ErrMalformedToken,
	ErrorCodeUnsupportedAlgorithm: ErrUnsupportedAlgorithm,
	ErrorCodeJWKSKeyNotFound:      ErrUnknownKeyID,
	ErrorCodeJWKSFetchFailed:      ErrJWKSFetch,
	ErrorCodeTimeout:              ErrTimeout,
	ErrorCodeKeyConstruction:      ErrKeyConstruction,
	ErrorCodeInvalidSignature:     ErrSignatureInvalid,
	ErrorCodeTokenExpired:         ErrExpired,
	ErrorCodeTokenNotYetValid:     ErrNotYetValid,
	ErrorCodeInvalidIssuer:        ErrIssuerMismatch,
	ErrorCodeInvalidAudience:      ErrAudienceMissing,
	ErrorCodeGraphCallFailed:      ErrGraphCallFailed,
}

// NewValidationError creates a new ValidationError with the given code and message.
func NewValidationError(code, message string, details error) *ValidationError {
	return &ValidationError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// CodeOf returns the code of the first *ValidationError in err's chain,
// or the empty string when there is none.
func CodeOf(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}
