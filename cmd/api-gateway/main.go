package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/jcmexdev/storefront-integrity/internal/api-gateway/infra/httpx"
	"github.com/jcmexdev/storefront-integrity/internal/audit"
	sagasqlite "github.com/jcmexdev/storefront-integrity/internal/coordinator/sagalog/sqlite"
	inventoryservice "github.com/jcmexdev/storefront-integrity/internal/inventory-service"
	orderapp "github.com/jcmexdev/storefront-integrity/internal/order-service/app"
	"github.com/jcmexdev/storefront-integrity/internal/payment-service/adapters/gateway"
	paymentapp "github.com/jcmexdev/storefront-integrity/internal/payment-service/app"
	"github.com/jcmexdev/storefront-integrity/internal/payment-service/fraudrules"
	"github.com/jcmexdev/storefront-integrity/internal/payment-service/risk"
	"github.com/jcmexdev/storefront-integrity/internal/pkg/cache"
	"github.com/jcmexdev/storefront-integrity/internal/pkg/config"
	"github.com/jcmexdev/storefront-integrity/internal/pkg/identity"
	"github.com/jcmexdev/storefront-integrity/internal/pkg/interceptors"
	"github.com/jcmexdev/storefront-integrity/internal/pkg/ratelimit"
	"github.com/jcmexdev/storefront-integrity/internal/pkg/telemetry"
	"github.com/jcmexdev/storefront-integrity/internal/storage/sqlite"
)

func main() {
	cfg, err := config.Load(getEnv("STOREFRONT_CONFIG", ""))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	telemetry.InitLogger(os.Stderr, cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracer(ctx, telemetry.TracerConfig{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.Telemetry.Endpoint,
		Environment: cfg.Telemetry.Environment,
	})
	if err != nil {
		slog.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	sagaRepo, err := sagasqlite.New(store.DB())
	if err != nil {
		return err
	}

	var redisCache cache.Cache
	if cfg.Redis.Addr != "" {
		redisCache = cache.NewRedisCache(cfg.Redis.Addr, cfg.ServiceName)
		defer redisCache.Close()
		if err := redisCache.Ping(ctx); err != nil {
			return err
		}
	}

	sinkOpts := []audit.Option{
		audit.WithAlerter(audit.LogAlerter{}),
		audit.WithRepeatedFailures(audit.RepeatedFailures{
			Threshold: cfg.Audit.FailureThreshold,
			Window:    cfg.Audit.FailureWindow,
		}),
	}
	if redisCache != nil && cfg.Audit.AlertChannel != "" {
		sinkOpts = append(sinkOpts, audit.WithAlerter(audit.NewPublishAlerter(redisCache, cfg.Audit.AlertChannel)))
	}
	sink := audit.NewSink(store, sinkOpts...)

	var counter ratelimit.Counter = store
	if cfg.RateLimit.Backend == "redis" {
		counter = ratelimit.NewRedisCounter(redisCache)
	}
	limiter := ratelimit.New(counter, map[ratelimit.IdentifierType]ratelimit.Policy{
		ratelimit.IdentifierIP:       policy(cfg.RateLimit.IP),
		ratelimit.IdentifierCustomer: policy(cfg.RateLimit.Customer),
	})

	gw, err := newGateway(cfg.Gateway)
	if err != nil {
		return err
	}

	gate := paymentapp.NewGate(paymentapp.Deps{
		Orders:   store,
		Attempts: store,
		Limiter:  limiter,
		Risk:     risk.NewEngine(store, limiter, sink),
		Rules:    fraudrules.NewEvaluator(store, store),
		Events:   sink,
		Gateway:  gw,
	}, paymentapp.WithCurrency(cfg.Gateway.Currency))

	updater := orderapp.NewStatusUpdater(store, inventoryservice.NewLedger(store), sagaRepo)

	handler := httpx.NewHandler(gate, updater, sink)
	resolver := identity.NewResolver(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	trusted, err := cfg.HTTP.TrustedPrefixes()
	if err != nil {
		return err
	}
	router := httpx.NewRouter(handler, resolver, trusted)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      otelhttp.NewHandler(router, "storefront-http"),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors.UnaryServerInterceptor(), interceptors.LoggingUnaryInterceptor()),
		grpc.StreamInterceptor(interceptors.StreamServerInterceptor()),
	)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("health gRPC running", "addr", cfg.GRPC.Addr)
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		slog.Info("storefront integrity HTTP running", "addr", cfg.HTTP.Addr, "ratelimit_backend", cfg.RateLimit.Backend, "gateway", cfg.Gateway.Mode)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if err := store.Ping(ctx); err != nil {
		return err
	}
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		healthSrv.Shutdown()
		grpcServer.Stop()
		return err
	}

	healthSrv.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	grpcServer.GracefulStop()
	return nil
}

// newGateway trusts Validate to have refused sandbox outside local and test.
func newGateway(cfg config.GatewayConfig) (paymentapp.Gateway, error) {
	if cfg.Mode == "sandbox" {
		slog.Warn("payment gateway in sandbox mode, sessions are always reported paid")
		return gateway.NewSandbox(cfg.BaseURL), nil
	}
	return gateway.NewHosted(gateway.HostedConfig{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		ReturnURL: cfg.ReturnURL,
		Timeout:   cfg.Timeout,
	})
}

func policy(l config.LimitConfig) ratelimit.Policy {
	return ratelimit.Policy{Max: l.Max, Window: l.Window, BlockFor: l.BlockFor}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
