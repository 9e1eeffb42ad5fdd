// Package api provides the HTTP API of the DSAR service.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/privacyops/dsar/internal/api/handler"
	"github.com/privacyops/dsar/internal/api/middleware"
	"github.com/privacyops/dsar/internal/datarequest"
	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/expiry"
	"github.com/privacyops/dsar/internal/metrics"
	"github.com/privacyops/dsar/internal/registry"
	"github.com/privacyops/dsar/internal/resilience"
	"github.com/privacyops/dsar/internal/retention"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool
	Metrics    *middleware.Metrics
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	Tokens   middleware.TokenValidator

	DataRequests  *datarequest.Service
	Registry      *registry.Service
	Resolver      *retention.Resolver
	Directory     directory.Directory
	ExpiryRecords expiry.Repository
	Deleters      []*expiry.Deleter
	Collaborators *resilience.Registry
	Checks        []handler.Check
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "dsar-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.RequireJSON)

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Collaborators, cfg.Checks...)
	requestHandler := handler.NewDataRequestHandler(cfg.DataRequests, cfg.Logger)
	dpoHandler := handler.NewDPOHandler(cfg.DataRequests, cfg.Logger)
	registryHandler := handler.NewRegistryHandler(handler.RegistryHandlerConfig{
		Registry:  cfg.Registry,
		Resolver:  cfg.Resolver,
		Directory: cfg.Directory,
		Logger:    cfg.Logger,
	})
	expiryHandler := handler.NewExpiryHandler(handler.ExpiryHandlerConfig{
		Deleters:  cfg.Deleters,
		Records:   cfg.ExpiryRecords,
		Directory: cfg.Directory,
		Logger:    cfg.Logger,
	})

	authMiddleware := middleware.Auth(cfg.Tokens)

	// Keyed on the user, so Auth has to run first.
	submitRateLimit := middleware.RateLimitByUser(middleware.SubmitRateLimit)     // 10 req/min
	purgeRateLimit := middleware.RateLimitByUser(middleware.PurgeRateLimit)       // 3 req/min
	standardRateLimit := middleware.RateLimitByUser(middleware.StandardRateLimit) // 100 req/min

	if cfg.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(cfg.Gatherer))
	}

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/data-requests", func(r chi.Router) {
			r.Use(authMiddleware)
			r.With(submitRateLimit).Post("/", requestHandler.Create)

			r.Group(func(r chi.Router) {
				r.Use(standardRateLimit)
				r.Get("/", requestHandler.List)
				r.Get("/all", requestHandler.ListAll)
				r.Get("/ongoing", requestHandler.Ongoing)
				r.Route("/{requestId}", func(r chi.Router) {
					r.Get("/", requestHandler.Get)
					r.Post("/cancel", requestHandler.Cancel)
					r.Post("/approve", requestHandler.Approve)
					r.Post("/deny", requestHandler.Deny)
				})
			})
		})

		r.Route("/dpo", func(r chi.Router) {
			r.Use(authMiddleware)
			r.With(submitRateLimit).Post("/contact", dpoHandler.Contact)
			r.With(standardRateLimit).Get("/users", dpoHandler.Users)
		})

		r.Route("/registry", func(r chi.Router) {
			r.Use(authMiddleware)
			r.With(purgeRateLimit).Post("/expired-scopes:delete", expiryHandler.Delete)

			r.Group(func(r chi.Router) {
				r.Use(standardRateLimit)
				r.Get("/expired-scopes", expiryHandler.List)

				r.Route("/purposes", func(r chi.Router) {
					r.Get("/", registryHandler.ListPurposes)
					r.Post("/", registryHandler.CreatePurpose)
					r.Route("/{purposeId}", func(r chi.Router) {
						r.Get("/", registryHandler.GetPurpose)
						r.Put("/", registryHandler.UpdatePurpose)
						r.Delete("/", registryHandler.DeletePurpose)
					})
				})

				r.Route("/categories", func(r chi.Router) {
					r.Get("/", registryHandler.ListCategories)
					r.Post("/", registryHandler.CreateCategory)
					r.Route("/{categoryId}", func(r chi.Router) {
						r.Get("/", registryHandler.GetCategory)
						r.Put("/", registryHandler.UpdateCategory)
						r.Delete("/", registryHandler.DeleteCategory)
					})
				})

				r.Route("/levels", func(r chi.Router) {
					r.Get("/", registryHandler.ListLevels)
					r.Get("/{level}", registryHandler.GetLevel)
					r.Put("/{level}", registryHandler.SetLevel)
				})

				r.Route("/scopes/{scopeId}", func(r chi.Router) {
					r.Get("/", registryHandler.GetScope)
					r.Put("/", registryHandler.SetScope)
					r.Delete("/", registryHandler.DeleteScope)
					r.Get("/effective", registryHandler.Effective)
					r.Get("/retention-preview", registryHandler.RetentionPreview)
				})

				r.Get("/defaults", registryHandler.GetDefaults)
				r.Put("/defaults", registryHandler.SetDefaults)
			})
		})
	})

	return r
}
