package token

import (
	"errors"
	"strings"
)

var (
	// ErrExcessiveTokenDots is returned when a token has more separators than
	// a compact JWS can carry.
	ErrExcessiveTokenDots = errors.New("token contains excessive dots")
)

const (
	// maxTokenDots is the number of dots in header.payload.signature.
	maxTokenDots = 2

	// maxTokenSize bounds the raw token. Azure AD tokens are a few KB.
	maxTokenSize = 1024 * 1024
)

// validateTokenFormat rejects obviously unusable input before any segment is
// split or decoded.
func validateTokenFormat(tokenString string) error {
	if len(tokenString) == 0 {
		return errors.New("token is empty")
	}

	if len(tokenString) > maxTokenSize {
		return errors.New("token exceeds maximum size (1MB)")
	}

	if strings.Count(tokenString, ".") > maxTokenDots {
		return ErrExcessiveTokenDots
	}

	if strings.ContainsAny(tokenString, " \t\r\n") {
		return errors.New("token contains whitespace")
	}

	return nil
}
