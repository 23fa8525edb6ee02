package aadgrpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"

	aadtoken "github.com/entratools/aad-token-validator"
	"github.com/entratools/aad-token-validator/core"
)

// Interceptor validates bearer tokens on gRPC servers.
type Interceptor struct {
	validator           aadtoken.TokenValidator
	validateOptions     aadtoken.ValidateOptions
	tokenExtractor      TokenExtractor
	errorHandler        ErrorHandler
	excludedMethods     map[string]bool
	credentialsOptional bool
	logger              aadtoken.Logger
}

// New creates an interceptor validating tokens with v.
func New(v aadtoken.TokenValidator, opts ...Option) (*Interceptor, error) {
	if v == nil {
		return nil, aadtoken.ErrValidatorNil
	}
	interceptor := &Interceptor{
		validator:       v,
		tokenExtractor:  MetadataTokenExtractor,
		errorHandler:    DefaultErrorHandler,
		excludedMethods: make(map[string]bool),
	}

	for _, opt := range opts {
		if err := opt(interceptor); err != nil {
			return nil, err
		}
	}

	return interceptor, nil
}

// UnaryServerInterceptor returns a grpc.UnaryServerInterceptor that validates
// tokens and makes the report available in the request context.
func (i *Interceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if i.excludedMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		validatedCtx, err := i.validateRequest(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(validatedCtx, req)
	}
}

// StreamServerInterceptor returns a grpc.StreamServerInterceptor that
// validates tokens and makes the report available in the stream context.
func (i *Interceptor) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if i.excludedMethods[info.FullMethod] {
			return handler(srv, ss)
		}

		validatedCtx, err := i.validateRequest(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: validatedCtx})
	}
}

func (i *Interceptor) validateRequest(ctx context.Context, method string) (context.Context, error) {
	raw, err := i.tokenExtractor(ctx)
	if err != nil {
		i.logf("failed to extract token for %s: %v", method, err)
		return ctx, i.errorHandler(err)
	}
	if raw == "" && i.credentialsOptional {
		return ctx, nil
	}

	report, err := aadtoken.Authenticate(ctx, i.validator, raw, i.validateOptions)
	if err != nil {
		if !errors.Is(err, aadtoken.ErrTokenMissing) {
			i.logf("token rejected for %s: %v", method, err)
		}
		return ctx, i.errorHandler(err)
	}
	return core.SetReport(ctx, report), nil
}

func (i *Interceptor) logf(format string, args ...interface{}) {
	if i.logger != nil {
		i.logger.Warnf(format, args...)
	}
}

// wrappedServerStream wraps grpc.ServerStream with a custom context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context with the report.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}

// GetReport retrieves the report the interceptor stored in ctx.
func GetReport(ctx context.Context) (*aadtoken.Report, error) {
	return core.GetReport[*aadtoken.Report](ctx)
}
