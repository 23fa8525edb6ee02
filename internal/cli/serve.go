package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	aadtoken "github.com/entratools/aad-token-validator"
	"github.com/entratools/aad-token-validator/core"
	"github.com/entratools/aad-token-validator/internal/config"
	aadgrpc "github.com/entratools/aad-token-validator/integrations/grpc"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve token validation over HTTP and gRPC",
		Long: `Serve token validation over HTTP, and over gRPC when grpc_listen_addr is set.

HTTP routes:
  POST /v1/validate   validate {"token", "tenant", "skip_expiration"} and return the report
  GET  /v1/me         return the report of the bearer token, rejecting invalid ones
  GET  /healthz       liveness
  GET  /metrics       Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gin.SetMode(gin.ReleaseMode)

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			engine, release, err := a.newEngine(
				aadtoken.WithMetrics(aadtoken.NewPrometheusMetrics(reg)),
				aadtoken.WithTracer(aadtoken.NewOpenTelemetryTracer(otel.Tracer("aadtoken"))),
			)
			if err != nil {
				return err
			}
			defer release()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, engine, reg)
		},
	}

	flags := cmd.Flags()
	flags.String("listen", config.Defaults().ListenAddr, "HTTP listen address")
	flags.String("grpc-listen", "", "gRPC listen address; empty disables gRPC")
	flags.String("redis-addr", "", "Redis address for a shared signing key cache")
	a.bind(flags.Lookup("listen"), "listen_addr")
	a.bind(flags.Lookup("grpc-listen"), "grpc_listen_addr")
	a.bind(flags.Lookup("redis-addr"), "redis_addr")

	return cmd
}

// serve runs the HTTP server, and the gRPC server when configured, until ctx
// is cancelled.
func (a *app) serve(ctx context.Context, engine *aadtoken.Engine, gatherer prometheus.Gatherer) error {
	override := tenantOverride(a.cfg.Tenant)

	router, err := newRouter(engine, gatherer, a.log, override)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var grpcServer *grpc.Server
	var grpcListener net.Listener
	if a.cfg.GRPCListenAddr != "" {
		grpcServer, err = newGRPCServer(engine, a.log, override)
		if err != nil {
			return err
		}
		grpcListener, err = net.Listen("tcp", a.cfg.GRPCListenAddr)
		if err != nil {
			return fmt.Errorf("could not listen for gRPC: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.WithField("addr", srv.Addr).Info("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	if grpcServer != nil {
		g.Go(func() error {
			a.log.WithField("addr", grpcListener.Addr().String()).Info("gRPC server starting")
			if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("gRPC server failed: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		a.log.Info("shutting down servers")

		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// validateRequest is the body of POST /v1/validate.
type validateRequest struct {
	Token          string `json:"token" binding:"required"`
	Tenant         string `json:"tenant"`
	SkipExpiration bool   `json:"skip_expiration"`
}

// newRouter builds the HTTP API.
func newRouter(engine *aadtoken.Engine, gatherer prometheus.Gatherer, log logrus.FieldLogger, override string) (*gin.Engine, error) {
	bearer, err := aadtoken.NewGin(engine, nil,
		aadtoken.WithTenant(override),
		aadtoken.WithMiddlewareLogger(aadtoken.NewLogrusLogger(log)),
	)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/v1")
	v1.POST("/validate", validateHandler(engine, override))
	v1.GET("/me", bearer.CheckToken(), func(c *gin.Context) {
		report, err := aadtoken.GetReport(c.Request.Context())
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, report)
	})

	return router, nil
}

func validateHandler(engine *aadtoken.Engine, override string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, aadtoken.ErrorResponse{Message: "Request body must carry a token."})
			return
		}

		tenant := override
		if req.Tenant != "" {
			tenant = tenantOverride(req.Tenant)
		}

		report, err := engine.Validate(c.Request.Context(), req.Token, aadtoken.ValidateOptions{
			TenantOverride: tenant,
			SkipExpiration: req.SkipExpiration,
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, aadtoken.ErrorResponse{
				Message: "Token could not be decoded.",
				Code:    core.CodeOf(err),
			})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Info("request")
	}
}

// newGRPCServer builds a gRPC server whose calls require a valid bearer
// token. Health checks are exempt.
func newGRPCServer(engine *aadtoken.Engine, log logrus.FieldLogger, override string) (*grpc.Server, error) {
	interceptor, err := aadgrpc.New(engine,
		aadgrpc.WithValidateOptions(aadtoken.ValidateOptions{TenantOverride: override}),
		aadgrpc.WithExcludedMethods(
			healthpb.Health_Check_FullMethodName,
			healthpb.Health_Watch_FullMethodName,
		),
		aadgrpc.WithLogger(aadtoken.NewLogrusLogger(log)),
	)
	if err != nil {
		return nil, err
	}

	server := grpc.NewServer(
		grpc.UnaryInterceptor(interceptor.UnaryServerInterceptor()),
		grpc.StreamInterceptor(interceptor.StreamServerInterceptor()),
	)
	healthpb.RegisterHealthServer(server, health.NewServer())
	return server, nil
}
