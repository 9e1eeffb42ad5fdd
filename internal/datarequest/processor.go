package datarequest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/metrics"
	"github.com/privacyops/dsar/internal/notify"
	"github.com/privacyops/dsar/internal/privacy"
	"github.com/privacyops/dsar/internal/settings"
)

// ProcessorConfig holds the dependencies of the Processor.
type ProcessorConfig struct {
	Repository      Repository
	Directory       directory.Directory
	Settings        *settings.Service
	Officers        *Officers
	Privacy         privacy.Manager
	Gateway         notify.Gateway
	Metrics         *metrics.Metrics
	Logger          zerolog.Logger
	Tracer          trace.Tracer
	SiteName        string
	DataRequestsURL string
}

// Processor advances requests on behalf of the queue workers. Every step
// re-reads the request first, so redelivered jobs are harmless.
type Processor struct {
	repo     Repository
	privacy  privacy.Manager
	notifier *notifier
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewProcessor creates a new Processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	officers := cfg.Officers
	if officers == nil {
		officers = NewOfficers(cfg.Directory, cfg.Settings)
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/privacyops/dsar/internal/datarequest")
	}
	logger := cfg.Logger.With().Str("component", "processor").Logger()
	return &Processor{
		repo:    cfg.Repository,
		privacy: cfg.Privacy,
		notifier: &notifier{
			dir:         cfg.Directory,
			officers:    officers,
			gateway:     cfg.Gateway,
			metrics:     cfg.Metrics,
			logger:      logger,
			siteName:    cfg.SiteName,
			requestsURL: cfg.DataRequestsURL,
		},
		metrics: cfg.Metrics,
		logger:  logger,
		tracer:  tracer,
	}
}

// AdvancePreprocessing runs metadata discovery for a new request, moves it to
// AwaitingApproval and notifies the officers. A request that is no longer
// Pending or Preprocessing is skipped.
func (p *Processor) AdvancePreprocessing(ctx context.Context, id string) (*Outcome, error) {
	ctx, span := p.tracer.Start(ctx, "datarequest.AdvancePreprocessing",
		trace.WithAttributes(attribute.String("request.id", id)))
	defer span.End()

	r, skip, err := p.load(ctx, id)
	if skip || err != nil {
		return p.finish(span, skip, err)
	}

	switch r.Status {
	case StatusPending:
		if err := p.transition(ctx, r, StatusPending, StatusPreprocessing, "initiate"); err != nil {
			return p.conflictOrError(span, r, err)
		}
	case StatusPreprocessing:
		// Resumed after a failed discovery.
	default:
		p.logger.Debug().Str("request_id", id).Str("status", r.Status.String()).Msg("request already preprocessed, skipping")
		return p.finish(span, true, nil)
	}

	if err := p.privacy.DiscoverMetadata(ctx, r.SubjectID); err != nil {
		return p.finish(span, false, fmt.Errorf("discover metadata for %s: %w", r.SubjectID, err))
	}
	if err := p.transition(ctx, r, StatusPreprocessing, StatusAwaitingApproval, "initiate"); err != nil {
		return p.conflictOrError(span, r, err)
	}

	out, err := p.notifier.notifyOfficers(ctx, r)
	if err != nil {
		return p.finish(span, false, err)
	}
	span.SetAttributes(attribute.Int("warnings", len(out.Warnings)))
	return out, nil
}

// AdvanceProcessing carries out an approved request and notifies the people
// it concerns. Requests that are not Approved are skipped, except those left
// in Processing by a failed attempt, which are resumed.
func (p *Processor) AdvanceProcessing(ctx context.Context, id string) (*Outcome, error) {
	ctx, span := p.tracer.Start(ctx, "datarequest.AdvanceProcessing",
		trace.WithAttributes(attribute.String("request.id", id)))
	defer span.End()

	r, skip, err := p.load(ctx, id)
	if skip || err != nil {
		return p.finish(span, skip, err)
	}
	s, err := strategyFor(r.Type)
	if err != nil {
		return p.finish(span, false, err)
	}

	switch r.Status {
	case StatusApproved:
		if err := p.transition(ctx, r, StatusApproved, StatusProcessing, "process"); err != nil {
			return p.conflictOrError(span, r, err)
		}
	case StatusProcessing:
		p.logger.Info().Str("request_id", id).Msg("resuming data request processing")
	default:
		p.logger.Debug().Str("request_id", id).Str("status", r.Status.String()).Msg("request not approved, skipping")
		return p.finish(span, true, nil)
	}

	var link string
	if s.Fulfil != nil {
		if link, err = s.Fulfil(ctx, p.privacy, r.SubjectID); err != nil {
			return p.finish(span, false, fmt.Errorf("fulfil %s request %s: %w", r.Type, r.ID, err))
		}
	}
	if err := p.transition(ctx, r, StatusProcessing, StatusComplete, "process"); err != nil {
		return p.conflictOrError(span, r, err)
	}

	out := p.notifier.notifyResult(ctx, r, s, link)
	span.SetAttributes(attribute.Int("warnings", len(out.Warnings)))
	return out, nil
}

// load reads the request; a missing or finished one is skipped.
func (p *Processor) load(ctx context.Context, id string) (*DataRequest, bool, error) {
	r, err := p.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			p.logger.Warn().Str("request_id", id).Msg("data request not found, skipping")
			return nil, true, nil
		}
		return nil, false, err
	}
	if !r.Status.IsActive() {
		p.logger.Debug().Str("request_id", id).Str("status", r.Status.String()).Msg("data request is final, skipping")
		return nil, true, nil
	}
	return r, false, nil
}

func (p *Processor) transition(ctx context.Context, r *DataRequest, from, to Status, trigger string) error {
	if err := p.repo.CompareAndSwapStatus(ctx, r.ID, from, to, nil); err != nil {
		return err
	}
	r.Status = to
	p.metrics.IncrementTransition(to.String(), trigger)
	p.logger.Info().Str("request_id", r.ID).Str("status", to.String()).Msg("data request advanced")
	return nil
}

// conflictOrError skips a request whose status was changed by someone else,
// typically a cancellation.
func (p *Processor) conflictOrError(span trace.Span, r *DataRequest, err error) (*Outcome, error) {
	if errors.Is(err, ErrStatusConflict) || errors.Is(err, ErrRequestNotFound) {
		p.logger.Info().Str("request_id", r.ID).Msg("data request changed concurrently, skipping")
		return p.finish(span, true, nil)
	}
	return p.finish(span, false, err)
}

func (p *Processor) finish(span trace.Span, skipped bool, err error) (*Outcome, error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("skipped", skipped))
	return &Outcome{Skipped: skipped, Result: true}, nil
}
