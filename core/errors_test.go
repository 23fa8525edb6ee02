package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	t.Run("it matches the sentinel of its code", func(t *testing.T) {
		err := NewValidationError(ErrorCodeJWKSKeyNotFound, "kid not published", nil)

		assert.ErrorIs(t, err, ErrUnknownKeyID)
		assert.NotErrorIs(t, err, ErrJWKSFetch)
		assert.Equal(t, "kid not published", err.Error())
	})

	t.Run("a timeout also matches the fetch sentinel", func(t *testing.T) {
		err := NewValidationError(ErrorCodeTimeout, "jwks request timed out", errors.New("deadline"))

		assert.ErrorIs(t, err, ErrTimeout)
		assert.ErrorIs(t, err, ErrJWKSFetch)
		assert.Equal(t, "jwks request timed out: deadline", err.Error())
	})

	t.Run("it unwraps to its details", func(t *testing.T) {
		details := errors.New("connection refused")
		err := NewValidationError(ErrorCodeJWKSFetchFailed, "could not fetch JWKS", details)

		assert.ErrorIs(t, err, details)
	})

	t.Run("CodeOf finds the code through wrapping", func(t *testing.T) {
		err := fmt.Errorf("resolve: %w", NewValidationError(ErrorCodeKeyConstruction, "bad modulus", nil))

		assert.Equal(t, ErrorCodeKeyConstruction, CodeOf(err))
		assert.Equal(t, "", CodeOf(errors.New("plain")))
	})
}
