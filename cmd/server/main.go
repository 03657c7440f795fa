package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/vies/internal"
	"github.com/dukerupert/vies/internal/handler/api"
	"github.com/dukerupert/vies/internal/middleware"
	"github.com/dukerupert/vies/internal/router"
	"github.com/dukerupert/vies/internal/routes"
	"github.com/dukerupert/vies/internal/telemetry"
	"github.com/dukerupert/vies/internal/vat"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds how long in-flight lookups may finish after a signal.
const shutdownTimeout = 10 * time.Second

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Error tracking
	flushSentry, err := telemetry.InitSentry(telemetry.SentryConfig(cfg.Sentry), logger)
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}
	defer flushSentry()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := middleware.NewMetrics("vies", registry)
	viesMetrics := telemetry.NewVIESMetrics("vies", registry)

	// VIES client
	client, err := vat.NewClient(vat.Config{
		Endpoint:     cfg.VIES.Endpoint,
		Timeout:      cfg.VIES.Timeout(),
		MaxRedirects: int(cfg.VIES.MaxRedirects),
		Strict:       cfg.VIES.Strict,
		Logger:       logger,
		Metrics:      viesMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize VIES client: %w", err)
	}
	verifier := vat.NewSharedVerifier(client)
	logger.Info("VIES client initialized",
		"endpoint", cfg.VIES.Endpoint,
		"timeout", cfg.VIES.Timeout(),
		"strict", cfg.VIES.Strict,
	)

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.HTTP.RateLimitRPS,
		BurstSize:         int(cfg.HTTP.RateLimitBurst),
	})
	defer rateLimiter.Stop()

	// ==========================================================================
	// Router
	// ==========================================================================

	global := []router.Middleware{
		router.Recovery(logger),
		middleware.RequestID,
		middleware.WithRequestLogger(logger),
		telemetry.SentryMiddleware(),
		httpMetrics.Middleware,
		middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig()),
		router.Logger(logger),
	}
	if len(cfg.HTTP.AllowedOrigins) > 0 {
		global = append(global, router.CORS(cfg.HTTP.AllowedOrigins))
	}
	r := router.New(global...)

	routes.RegisterAPIRoutes(r, routes.APIDeps{
		VATHandler: api.NewVATHandler(verifier, viesMetrics, logger),
		VATMiddleware: []router.Middleware{
			rateLimiter.Middleware,
			middleware.Timeout(cfg.VIES.Timeout() + 5*time.Second),
		},
	})
	routes.RegisterOpsRoutes(r, routes.OpsDeps{
		MetricsHandler: httpMetrics.Handler(),
	})

	// ==========================================================================
	// Start server
	// ==========================================================================

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting server", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
