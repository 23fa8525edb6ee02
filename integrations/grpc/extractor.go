package aadgrpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/metadata"

	aadtoken "github.com/entratools/aad-token-validator"
)

// TokenExtractor extracts tokens from gRPC metadata.
type TokenExtractor func(ctx context.Context) (string, error)

// ErrMultipleAuthHeaders indicates multiple authorization metadata entries were provided.
var ErrMultipleAuthHeaders = errors.New("multiple authorization metadata entries are not allowed")

// MetadataTokenExtractor extracts the token from the "authorization"
// metadata key in "Bearer <token>" form.
//
// gRPC normalizes incoming metadata keys to lowercase, so this extractor only
// checks the lowercase "authorization" key.
func MetadataTokenExtractor(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", nil
	}

	authHeaders := md.Get("authorization")
	switch len(authHeaders) {
	case 0:
		return "", nil
	case 1:
		return aadtoken.BearerToken(authHeaders[0])
	default:
		return "", ErrMultipleAuthHeaders
	}
}
