// Package main provides the entrypoint for the DSAR worker. It consumes queued
// data request jobs and runs the scheduled expiry deletions.
package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/privacyops/dsar/internal/api/response"
	"github.com/privacyops/dsar/internal/app"
	"github.com/privacyops/dsar/internal/config"
	"github.com/privacyops/dsar/internal/metrics"
	"github.com/privacyops/dsar/internal/queue"
	"github.com/privacyops/dsar/internal/telemetry"
	"github.com/privacyops/dsar/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

type consumer interface {
	Start(ctx context.Context) error
}

func main() {
	const serviceName = "dsar-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting DSAR worker")

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

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.New(ctx, cfg, app.Options{
		Logger:     log,
		Tracer:     tp.Tracer,
		Registerer: promRegistry,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize services")
	}
	defer a.Close()

	jobs := worker.NewJobHandler(a.Processor(), a.Metrics, log)
	jobConsumer, err := newConsumer(ctx, a, cfg.Queue, jobs, log)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Queue.Backend).Msg("failed to start queue consumer")
	}
	if c, ok := jobConsumer.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	deleters := make([]worker.Deleter, 0, len(a.Deleters))
	for _, d := range a.Deleters {
		deleters = append(deleters, d)
	}
	scheduler := worker.NewExpiryScheduler(worker.SchedulerConfig{
		Deleters: deleters,
		ActorID:  cfg.SystemActorID,
		Interval: cfg.ExpiryScanInterval,
		Logger:   log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.WorkerHealthPort,
		Handler:      healthRouter(a, scheduler, promRegistry),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return jobConsumer.Start(gctx) })
	g.Go(func() error { return scheduler.Start(gctx) })
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down worker")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("worker stopped with error")
		a.Close()
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	log.Info().Msg("worker stopped")
}

func newConsumer(ctx context.Context, a *app.App, cfg config.QueueConfig, h *worker.JobHandler, log zerolog.Logger) (consumer, error) {
	switch cfg.Backend {
	case config.QueueBackendPubSub:
		return worker.NewPubSubConsumer(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSubProjectID,
			SubscriptionName: cfg.PubSubSubscription,
			Handler:          h,
			Logger:           log,
		})
	case config.QueueBackendKafka:
		return worker.NewKafkaConsumer(worker.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			Group:   cfg.KafkaGroup,
			Handler: h,
			Logger:  log,
		})
	default:
		// A standalone worker has no producer on the memory backend; it only
		// runs the scheduler.
		pub, err := a.Publisher(ctx)
		if err != nil {
			return nil, err
		}
		log.Warn().Msg("memory queue backend: the worker receives no jobs from the API")
		return worker.NewMemoryConsumer(pub.(*queue.MemoryQueue), h, time.Second, log), nil
	}
}

func healthRouter(a *app.App, scheduler *worker.ExpiryScheduler, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		response.JSON(w, req, http.StatusOK, map[string]any{
			"status":    "OK",
			"version":   Version,
			"buildTime": BuildTime,
			"expiry":    scheduler.StatsSnapshot(),
		})
	})
	r.Get("/ready", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := a.Ping(ctx); err != nil {
			response.JSON(w, req, http.StatusServiceUnavailable, map[string]any{"status": "FAIL", "error": err.Error()})
			return
		}
		response.JSON(w, req, http.StatusOK, map[string]any{"status": "OK"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))

	return r
}

