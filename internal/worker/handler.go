// Package worker consumes queued data request jobs and runs the scheduled
// expiry deletions.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/privacyops/dsar/internal/datarequest"
	"github.com/privacyops/dsar/internal/metrics"
	"github.com/privacyops/dsar/internal/queue"
)

// Job outcome labels.
const (
	OutcomeDone    = "done"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)

// Processor advances data requests.
type Processor interface {
	AdvancePreprocessing(ctx context.Context, id string) (*datarequest.Outcome, error)
	AdvanceProcessing(ctx context.Context, id string) (*datarequest.Outcome, error)
}

// JobHandler decodes a queue message and dispatches it to the Processor.
// A nil error means the message can be acknowledged; any error asks the
// transport for redelivery.
type JobHandler struct {
	processor Processor
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewJobHandler creates a new job handler.
func NewJobHandler(processor Processor, m *metrics.Metrics, logger zerolog.Logger) *JobHandler {
	return &JobHandler{processor: processor, metrics: m, logger: logger}
}

// Handle processes one message.
func (h *JobHandler) Handle(ctx context.Context, data []byte) error {
	startTime := time.Now()

	job, err := queue.Decode(data)
	if err != nil {
		// Redelivering a malformed message cannot help.
		h.logger.Error().Err(err).Bytes("payload", truncate(data, 256)).Msg("dropping malformed job")
		h.metrics.IncrementJob("unknown", OutcomeDropped)
		return nil
	}

	logger := h.logger.With().
		Str("job_type", job.Type).
		Str("request_id", job.RequestID).
		Logger()

	var out *datarequest.Outcome
	switch job.Type {
	case queue.KindInitiate:
		out, err = h.processor.AdvancePreprocessing(ctx, job.RequestID)
	case queue.KindProcess:
		out, err = h.processor.AdvanceProcessing(ctx, job.RequestID)
	default:
		logger.Warn().Msg("unknown job type")
		h.metrics.IncrementJob(job.Type, OutcomeDropped)
		return nil
	}

	if err != nil {
		logger.Error().Err(err).Msg("job failed")
		h.metrics.IncrementJob(job.Type, OutcomeFailed)
		return err
	}

	outcome := OutcomeDone
	if out != nil && out.Skipped {
		outcome = OutcomeSkipped
	}
	h.metrics.IncrementJob(job.Type, outcome)

	event := logger.Info()
	if out != nil && len(out.Warnings) > 0 {
		event = logger.Warn().Int("warnings", len(out.Warnings))
	}
	event.
		Str("outcome", outcome).
		Dur("duration", time.Since(startTime)).
		Msg("job completed")
	return nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
