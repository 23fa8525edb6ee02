package aadgrpc

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	aadtoken "github.com/entratools/aad-token-validator"
	"github.com/entratools/aad-token-validator/core"
)

// ErrorHandler converts validation errors to gRPC status errors.
type ErrorHandler func(error) error

// DefaultErrorHandler maps validation errors to gRPC status codes: missing
// and rejected tokens give Unauthenticated, issuer and audience failures
// PermissionDenied, key endpoint outages Unavailable and malformed metadata
// InvalidArgument.
func DefaultErrorHandler(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, aadtoken.ErrTokenMissing):
		return status.Error(codes.Unauthenticated, "missing credentials")
	case errors.Is(err, ErrMultipleAuthHeaders), errors.Is(err, aadtoken.ErrBadAuthorizationHeader):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, aadtoken.ErrKeysUnavailable):
		return status.Error(codes.Unavailable, "unable to verify token")
	}

	switch core.CodeOf(err) {
	case core.ErrorCodeInvalidIssuer:
		return status.Error(codes.PermissionDenied, "invalid issuer")
	case core.ErrorCodeInvalidAudience:
		return status.Error(codes.PermissionDenied, "invalid audience")
	case core.ErrorCodeTokenExpired:
		return status.Error(codes.Unauthenticated, "token expired")
	case core.ErrorCodeTokenNotYetValid:
		return status.Error(codes.Unauthenticated, "token not yet valid")
	case core.ErrorCodeInvalidSignature, core.ErrorCodeUnsupportedAlgorithm,
		core.ErrorCodeJWKSKeyNotFound, core.ErrorCodeKeyConstruction:
		return status.Error(codes.Unauthenticated, "invalid signature")
	case core.ErrorCodeTokenMalformed:
		return status.Error(codes.Unauthenticated, "malformed token")
	default:
		return status.Error(codes.Unauthenticated, "invalid token")
	}
}
