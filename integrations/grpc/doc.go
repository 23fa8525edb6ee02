/*
Package aadgrpc provides gRPC server interceptors that validate Azure AD
bearer tokens with an aadtoken.Engine.

	engine, err := aadtoken.New()
	if err != nil {
	    log.Fatal(err)
	}
	interceptor, err := aadgrpc.New(engine,
	    aadgrpc.WithExcludedMethods("/grpc.health.v1.Health/Check"),
	)
	if err != nil {
	    log.Fatal(err)
	}
	server := grpc.NewServer(
	    grpc.UnaryInterceptor(interceptor.UnaryServerInterceptor()),
	    grpc.StreamInterceptor(interceptor.StreamServerInterceptor()),
	)

Handlers read the report with GetReport:

	report, err := aadgrpc.GetReport(ctx)
*/
package aadgrpc
