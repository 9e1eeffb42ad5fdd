// Package main provides the entrypoint for the DSAR API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/privacyops/dsar/internal/api"
	"github.com/privacyops/dsar/internal/api/middleware"
	"github.com/privacyops/dsar/internal/app"
	"github.com/privacyops/dsar/internal/auth"
	"github.com/privacyops/dsar/internal/config"
	"github.com/privacyops/dsar/internal/queue"
	"github.com/privacyops/dsar/internal/telemetry"
	"github.com/privacyops/dsar/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "dsar-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting DSAR API")

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	httpMetrics, err := middleware.NewMetrics(tp.Meters())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	signingKey := cfg.JWTSigningKey
	if signingKey == "" {
		if cfg.IsProduction() {
			log.Fatal().Msg("JWT_SIGNING_KEY is required in production")
		}
		signingKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	tokens := auth.NewTokenService(auth.TokenConfig{
		SigningKey: signingKey,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
	})

	a, err := app.New(ctx, cfg, app.Options{
		Logger:     log,
		Tracer:     tp.Tracer,
		Registerer: promRegistry,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize services")
	}
	defer a.Close()
	log.Info().
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Str("database", cfg.Database.Database).
		Bool("directory_cache", cfg.RedisURL != "").
		Msg("database connected")

	pub, err := a.Publisher(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Queue.Backend).Msg("failed to open queue")
	}
	log.Info().Str("backend", cfg.Queue.Backend).Msg("queue publisher ready")

	router := api.NewRouter(api.RouterConfig{
		Version:       Version,
		BuildTime:     BuildTime,
		Logger:        log,
		ServiceName:   serviceName,
		RequireTLS:    cfg.RequireTLS,
		Metrics:       httpMetrics,
		Gatherer:      promRegistry,
		Tokens:        tokens,
		DataRequests:  a.DataRequests(pub),
		Registry:      a.Registry,
		Resolver:      a.Resolver,
		Directory:     a.Directory,
		ExpiryRecords: a.ExpiryRecords,
		Deleters:      a.Deleters,
		Collaborators: a.Collaborators,
		Checks:        a.Checks(),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Without a broker the API processes its own jobs.
	if mq, ok := pub.(*queue.MemoryQueue); ok {
		handler := worker.NewJobHandler(a.Processor(), a.Metrics, log)
		consumer := worker.NewMemoryConsumer(mq, handler, time.Second, log)
		g.Go(func() error { return consumer.Start(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		a.Close()
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	log.Info().Msg("server stopped")
}
