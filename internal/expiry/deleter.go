package expiry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/metrics"
)

// DefaultsChecker reports whether the system purpose and category are set.
type DefaultsChecker interface {
	DefaultsSet(ctx context.Context) (bool, error)
}

// Purger removes the personal data held in a scope.
type Purger interface {
	PurgeScope(ctx context.Context, scope directory.Scope) error
}

// scopeInvalidator is implemented by directories that cache scopes.
type scopeInvalidator interface {
	Invalidate(ctx context.Context, ids ...string) error
}

// Outcome labels for expiry metrics.
const (
	OutcomeCleaned = "cleaned"
	OutcomeFailed  = "failed"
)

// DeleterConfig holds the dependencies of a Deleter.
type DeleterConfig struct {
	Scanner   *Scanner
	Directory directory.Directory
	Defaults  DefaultsChecker
	Purger    Purger
	Records   Repository
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
	Tracer    trace.Tracer
	// Limit caps the scopes processed per run. Zero means DefaultDeleteLimit.
	Limit int
}

// Deleter purges expired scopes found by one scanner.
type Deleter struct {
	scanner  *Scanner
	dir      directory.Directory
	defaults DefaultsChecker
	purger   Purger
	records  Repository
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	tracer   trace.Tracer
	limit    int
}

// NewDeleter creates a new deleter.
func NewDeleter(cfg DeleterConfig) *Deleter {
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultDeleteLimit
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/privacyops/dsar/internal/expiry")
	}
	return &Deleter{
		scanner:  cfg.Scanner,
		dir:      cfg.Directory,
		defaults: cfg.Defaults,
		purger:   cfg.Purger,
		records:  cfg.Records,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With().Str("strategy", cfg.Scanner.Strategy()).Logger(),
		tracer:   tracer,
		limit:    limit,
	}
}

// Failure is a scope that could not be purged.
type Failure struct {
	ScopeID string `json:"scopeId"`
	Error   string `json:"error"`
}

// Result summarizes one deletion run.
type Result struct {
	Strategy string    `json:"strategy"`
	Deleted  int       `json:"deleted"`
	Failures []Failure `json:"failures,omitempty"`
	// Skipped is set when the run did nothing because the defaults are missing.
	Skipped bool `json:"skipped,omitempty"`
}

// Strategy returns the name of the scanner's strategy.
func (d *Deleter) Strategy() string {
	return d.scanner.Strategy()
}

// Processed returns the number of scopes the run attempted.
func (r *Result) Processed() int {
	return r.Deleted + len(r.Failures)
}

// Delete purges up to the configured limit of expired scopes on behalf of
// actorID. A scope that fails to purge is reported in the result and the run
// moves on; an error from the scan itself aborts the run.
func (d *Deleter) Delete(ctx context.Context, actorID string) (*Result, error) {
	if err := directory.RequireCapability(ctx, d.dir, actorID, directory.CapabilityManageDataRegistry); err != nil {
		return nil, err
	}

	result := &Result{Strategy: d.scanner.Strategy()}

	ok, err := d.defaults.DefaultsSet(ctx)
	if err != nil {
		return nil, fmt.Errorf("check registry defaults: %w", err)
	}
	if !ok {
		d.logger.Warn().Msg("data registry defaults not set, skipping expiry run")
		result.Skipped = true
		return result, nil
	}

	ctx, span := d.tracer.Start(ctx, "expiry.Delete",
		trace.WithAttributes(attribute.String("expiry.strategy", result.Strategy)))
	defer span.End()

	start := time.Now()
	defer func() {
		d.metrics.ObserveExpiryRun(result.Strategy, time.Since(start))
		span.SetAttributes(
			attribute.Int("expiry.deleted", result.Deleted),
			attribute.Int("expiry.failed", len(result.Failures)),
		)
	}()

	for rs, err := range d.scanner.Scan(ctx) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "scan failed")
			return result, fmt.Errorf("scan expired scopes: %w", err)
		}

		if err := d.purge(ctx, rs); err != nil {
			d.logger.Error().Err(err).Str("scope_id", rs.Scope.ID).Msg("failed to purge expired scope")
			d.metrics.IncrementExpiredScope(result.Strategy, OutcomeFailed)
			result.Failures = append(result.Failures, Failure{ScopeID: rs.Scope.ID, Error: err.Error()})
		} else {
			d.metrics.IncrementExpiredScope(result.Strategy, OutcomeCleaned)
			result.Deleted++
		}

		if result.Processed() >= d.limit {
			break
		}
	}

	d.logger.Info().
		Int("deleted", result.Deleted).
		Int("failed", len(result.Failures)).
		Msg("expiry run finished")

	return result, nil
}

func (d *Deleter) purge(ctx context.Context, rs ResolvedScope) error {
	if _, err := d.records.MarkExpired(ctx, rs.Scope.ID); err != nil {
		return fmt.Errorf("mark expired: %w", err)
	}
	if err := d.records.SetStatus(ctx, rs.Scope.ID, StatusApprovedForDeletion); err != nil {
		return fmt.Errorf("approve for deletion: %w", err)
	}
	if err := d.purger.PurgeScope(ctx, rs.Scope); err != nil {
		return fmt.Errorf("purge scope: %w", err)
	}
	if err := d.records.SetStatus(ctx, rs.Scope.ID, StatusCleaned); err != nil {
		return fmt.Errorf("mark cleaned: %w", err)
	}

	if inv, ok := d.dir.(scopeInvalidator); ok {
		if err := inv.Invalidate(ctx, rs.Scope.ID); err != nil {
			d.logger.Warn().Err(err).Str("scope_id", rs.Scope.ID).Msg("failed to invalidate cached scope")
		}
	}
	return nil
}
