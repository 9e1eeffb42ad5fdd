// Package app assembles the data request services from configuration. The
// API, the worker and the operator CLI share one wiring.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/privacyops/dsar/internal/api/handler"
	"github.com/privacyops/dsar/internal/config"
	"github.com/privacyops/dsar/internal/database"
	"github.com/privacyops/dsar/internal/datarequest"
	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/expiry"
	"github.com/privacyops/dsar/internal/metrics"
	"github.com/privacyops/dsar/internal/notify"
	"github.com/privacyops/dsar/internal/privacy"
	"github.com/privacyops/dsar/internal/queue"
	"github.com/privacyops/dsar/internal/registry"
	"github.com/privacyops/dsar/internal/resilience"
	"github.com/privacyops/dsar/internal/retention"
	"github.com/privacyops/dsar/internal/settings"
)

// Collaborator names, as reported by the ops status endpoint.
const (
	CollaboratorNotify  = "notify"
	CollaboratorPrivacy = "privacy-manager"
)

// Stores holds the repositories the services run on.
type Stores struct {
	Directory directory.Directory
	Settings  settings.Repository
	Registry  registry.Repository
	Requests  datarequest.Repository
	Expiry    expiry.Repository
}

// MemoryStores returns in-memory repositories over dir.
func MemoryStores(dir directory.Directory) Stores {
	return Stores{
		Directory: dir,
		Settings:  settings.NewInMemoryRepository(),
		Registry:  registry.NewInMemoryRepository(),
		Requests:  datarequest.NewInMemoryRepository(),
		Expiry:    expiry.NewInMemoryRepository(),
	}
}

// Options carries the process-wide instrumentation.
type Options struct {
	Logger zerolog.Logger
	Tracer trace.Tracer
	// Registerer receives the domain metrics. Nil means a private registry.
	Registerer prometheus.Registerer
}

// App is the assembled component graph.
type App struct {
	Config config.Config
	Logger zerolog.Logger
	Tracer trace.Tracer

	Directory     directory.Directory
	Settings      *settings.Service
	Registry      *registry.Service
	Resolver      *retention.Resolver
	Officers      *datarequest.Officers
	Requests      datarequest.Repository
	ExpiryRecords expiry.Repository
	Scanners      []*expiry.Scanner
	Deleters      []*expiry.Deleter

	Gateway       notify.Gateway
	Privacy       privacy.Manager
	Collaborators *resilience.Registry
	Metrics       *metrics.Metrics

	checks  []handler.Check
	closers []func()
}

// New connects to Postgres (and Redis when configured) and assembles the
// services on top of them.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	var dir directory.Directory = directory.NewPostgresDirectory(pool)
	checks := []handler.Check{{Name: "postgres", Ping: pool.Ping}}
	closers := []func(){pool.Close}

	if cfg.RedisURL != "" {
		client, err := newRedis(cfg.RedisURL)
		if err != nil {
			pool.Close()
			return nil, err
		}
		dir = directory.NewCachedDirectory(dir, client, cfg.DirectoryCacheTTL, opts.Logger)
		checks = append(checks, handler.Check{
			Name: "redis",
			Ping: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
		closers = append(closers, func() { _ = client.Close() })
	}

	a := Assemble(cfg, postgresStores(pool, dir), opts)
	a.checks = append(a.checks, checks...)
	a.closers = append(a.closers, closers...)
	return a, nil
}

func postgresStores(pool *pgxpool.Pool, dir directory.Directory) Stores {
	return Stores{
		Directory: dir,
		Settings:  settings.NewPostgresRepository(pool),
		Registry:  registry.NewPostgresRepository(pool),
		Requests:  datarequest.NewPostgresRepository(pool),
		Expiry:    expiry.NewPostgresRepository(pool),
	}
}

func newRedis(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

// Assemble builds the services on the given stores. Collaborators without a
// configured URL fall back to the in-process implementations.
func Assemble(cfg config.Config, stores Stores, opts Options) *App {
	logger := opts.Logger
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	st := settings.NewService(settings.ServiceConfig{
		Repository: stores.Settings,
		Logger:     logger,
	})

	a := &App{
		Config:        cfg,
		Logger:        logger,
		Tracer:        opts.Tracer,
		Directory:     stores.Directory,
		Settings:      st,
		Requests:      stores.Requests,
		ExpiryRecords: stores.Expiry,
		Collaborators: resilience.NewRegistry(),
		Metrics:       metrics.New(reg),
	}

	a.Registry = registry.NewService(registry.ServiceConfig{
		Repository: stores.Registry,
		Directory:  stores.Directory,
		Settings:   st,
		Logger:     logger,
	})
	a.Resolver = retention.NewResolver(retention.Config{
		Directory:  stores.Directory,
		Repository: stores.Registry,
		Settings:   st,
	})
	a.Officers = datarequest.NewOfficers(stores.Directory, st)
	a.Gateway = a.newGateway()
	a.Privacy = a.newPrivacy()

	for _, strategy := range []expiry.Strategy{
		expiry.MembershipStrategy(stores.Directory),
		expiry.InactivityStrategy(stores.Directory),
	} {
		scanner := expiry.NewScanner(expiry.ScannerConfig{
			Strategy: strategy,
			Resolver: a.Resolver,
			Records:  stores.Expiry,
			Logger:   logger,
		})
		a.Scanners = append(a.Scanners, scanner)
		a.Deleters = append(a.Deleters, expiry.NewDeleter(expiry.DeleterConfig{
			Scanner:   scanner,
			Directory: stores.Directory,
			Defaults:  a.Registry,
			Purger:    a.Privacy,
			Records:   stores.Expiry,
			Metrics:   a.Metrics,
			Logger:    logger,
			Tracer:    opts.Tracer,
			Limit:     cfg.ExpiryDeleteLimit,
		}))
	}
	return a
}

func (a *App) newGateway() notify.Gateway {
	if a.Config.NotifyBaseURL == "" {
		a.Logger.Warn().Msg("NOTIFY_BASE_URL not set, notifications are kept in memory")
		return notify.NewRecorder()
	}
	cfg := resilience.DefaultClientConfig(CollaboratorNotify)
	cfg.Registry = a.Collaborators
	return notify.NewHTTPGateway(notify.HTTPGatewayConfig{
		BaseURL: a.Config.NotifyBaseURL,
		APIKey:  a.Config.NotifyAPIKey,
		Client:  resilience.NewClient(cfg),
		Logger:  a.Logger,
	})
}

func (a *App) newPrivacy() privacy.Manager {
	if a.Config.PrivacyManagerURL == "" {
		a.Logger.Warn().Msg("PRIVACY_MANAGER_URL not set, using the no-op privacy manager")
		return &privacy.NoopManager{Logger: a.Logger}
	}
	cfg := resilience.DefaultClientConfig(CollaboratorPrivacy)
	cfg.Registry = a.Collaborators
	return privacy.NewHTTPClient(privacy.HTTPClientConfig{
		BaseURL: a.Config.PrivacyManagerURL,
		APIKey:  a.Config.PrivacyManagerAPIKey,
		Client:  resilience.NewClient(cfg),
		Logger:  a.Logger,
	})
}

// DataRequests returns the request service publishing to pub.
func (a *App) DataRequests(pub queue.Publisher) *datarequest.Service {
	return datarequest.NewService(datarequest.ServiceConfig{
		Repository:      a.Requests,
		Directory:       a.Directory,
		Settings:        a.Settings,
		Officers:        a.Officers,
		Publisher:       pub,
		Gateway:         a.Gateway,
		Metrics:         a.Metrics,
		Logger:          a.Logger,
		SiteName:        a.Config.SiteName,
		DataRequestsURL: a.Config.DataRequestsURL,
	})
}

// Processor returns the request processor used by the queue workers.
func (a *App) Processor() *datarequest.Processor {
	return datarequest.NewProcessor(datarequest.ProcessorConfig{
		Repository:      a.Requests,
		Directory:       a.Directory,
		Settings:        a.Settings,
		Officers:        a.Officers,
		Privacy:         a.Privacy,
		Gateway:         a.Gateway,
		Metrics:         a.Metrics,
		Logger:          a.Logger,
		Tracer:          a.Tracer,
		SiteName:        a.Config.SiteName,
		DataRequestsURL: a.Config.DataRequestsURL,
	})
}

// Publisher opens the configured queue transport. The memory backend returns
// a *queue.MemoryQueue that the caller is expected to drain.
func (a *App) Publisher(ctx context.Context) (queue.Publisher, error) {
	q := a.Config.Queue
	switch q.Backend {
	case config.QueueBackendPubSub:
		p, err := queue.NewPubSubPublisher(ctx, q.PubSubProjectID, q.PubSubTopic)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = p.Close() })
		return p, nil
	case config.QueueBackendKafka:
		p, err := queue.NewKafkaPublisher(q.KafkaBrokers, q.KafkaTopic)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = p.Close() })
		return p, nil
	case config.QueueBackendMemory, "":
		return queue.NewMemoryQueue(), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", q.Backend)
	}
}

// Checks returns the readiness checks of the backing stores.
func (a *App) Checks() []handler.Check {
	return a.checks
}

// Ping runs every readiness check.
func (a *App) Ping(ctx context.Context) error {
	var errs []error
	for _, c := range a.checks {
		if err := c.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
