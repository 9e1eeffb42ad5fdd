package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/privacyops/dsar/internal/queue"
)

// MemoryConsumer drains an in-process queue. It backs single-process
// development setups where the API and the worker share one MemoryQueue.
type MemoryConsumer struct {
	queue    *queue.MemoryQueue
	handler  *JobHandler
	interval time.Duration
	logger   zerolog.Logger
}

// NewMemoryConsumer creates a consumer polling q every interval.
func NewMemoryConsumer(q *queue.MemoryQueue, h *JobHandler, interval time.Duration, logger zerolog.Logger) *MemoryConsumer {
	if interval <= 0 {
		interval = time.Second
	}
	return &MemoryConsumer{queue: q, handler: h, interval: interval, logger: logger}
}

// Start polls until ctx is cancelled.
func (c *MemoryConsumer) Start(ctx context.Context) error {
	c.logger.Info().Dur("interval", c.interval).Msg("starting memory queue consumer")

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Poll(ctx)
		}
	}
}

// Poll handles every queued job once. Failed jobs are put back for the next poll.
func (c *MemoryConsumer) Poll(ctx context.Context) int {
	jobs := c.queue.Drain()
	for _, job := range jobs {
		data, err := job.Encode()
		if err != nil {
			continue
		}
		if err := c.handler.Handle(ctx, data); err != nil {
			if pubErr := c.queue.Publish(ctx, job); pubErr != nil {
				c.logger.Error().Err(pubErr).Str("request_id", job.RequestID).Msg("requeue failed")
			}
		}
	}
	return len(jobs)
}
