package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/privacyops/dsar/internal/expiry"
)

// Deleter is one expiry strategy's deletion run.
type Deleter interface {
	Strategy() string
	Delete(ctx context.Context, actorID string) (*expiry.Result, error)
}

// SchedulerConfig holds configuration for the expiry scheduler.
type SchedulerConfig struct {
	Deleters []Deleter
	// ActorID is the system account the runs act as. It needs the
	// manage-registry capability.
	ActorID  string
	Interval time.Duration
	Logger   zerolog.Logger
}

// RunResult is the outcome of one strategy in one run.
type RunResult struct {
	Strategy  string        `json:"strategy"`
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`
	Deleted   int           `json:"deleted"`
	Failed    int           `json:"failed"`
	Skipped   bool          `json:"skipped,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// SchedulerStats tracks run statistics.
type SchedulerStats struct {
	TotalRuns       int64
	OverlapsSkipped int64
	TotalDeleted    int64
	TotalFailed     int64
	LastRunAt       time.Time
	LastRunDuration time.Duration
	LastResults     []RunResult
}

// ExpiryScheduler runs every deleter at a fixed interval. Runs never overlap:
// a tick that arrives while a run is in progress is dropped.
type ExpiryScheduler struct {
	deleters []Deleter
	actorID  string
	interval time.Duration
	logger   zerolog.Logger

	running atomic.Bool

	mu    sync.RWMutex
	stats SchedulerStats
}

// NewExpiryScheduler creates a new scheduler.
func NewExpiryScheduler(cfg SchedulerConfig) *ExpiryScheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &ExpiryScheduler{
		deleters: cfg.Deleters,
		actorID:  cfg.ActorID,
		interval: interval,
		logger:   cfg.Logger.With().Str("component", "expiry_scheduler").Logger(),
	}
}

// Start runs immediately and then on every tick until ctx is cancelled.
func (s *ExpiryScheduler) Start(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("starting expiry scheduler")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce runs every deleter in turn. It returns nil if a run is already in
// progress.
func (s *ExpiryScheduler) RunOnce(ctx context.Context) []RunResult {
	if !s.running.CompareAndSwap(false, true) {
		s.mu.Lock()
		s.stats.OverlapsSkipped++
		s.mu.Unlock()
		s.logger.Warn().Msg("expiry run still in progress, skipping")
		return nil
	}
	defer s.running.Store(false)

	startTime := time.Now()
	results := make([]RunResult, 0, len(s.deleters))
	for _, d := range s.deleters {
		if ctx.Err() != nil {
			break
		}
		results = append(results, s.run(ctx, d))
	}

	s.updateStats(startTime, results)
	return results
}

func (s *ExpiryScheduler) run(ctx context.Context, d Deleter) RunResult {
	rr := RunResult{Strategy: d.Strategy(), StartTime: time.Now()}

	res, err := d.Delete(ctx, s.actorID)
	rr.Duration = time.Since(rr.StartTime)
	if res != nil {
		rr.Deleted = res.Deleted
		rr.Failed = len(res.Failures)
		rr.Skipped = res.Skipped
	}

	logger := s.logger.With().Str("strategy", rr.Strategy).Logger()
	switch {
	case err != nil:
		rr.Error = err.Error()
		logger.Error().Err(err).Int("deleted", rr.Deleted).Msg("expiry run failed")
	case rr.Skipped:
		logger.Warn().Msg("system defaults not set, nothing deleted")
	default:
		logger.Info().
			Int("deleted", rr.Deleted).
			Int("failed", rr.Failed).
			Dur("duration", rr.Duration).
			Msg("expiry run completed")
	}
	return rr
}

func (s *ExpiryScheduler) updateStats(startTime time.Time, results []RunResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TotalRuns++
	for _, r := range results {
		s.stats.TotalDeleted += int64(r.Deleted)
		s.stats.TotalFailed += int64(r.Failed)
	}
	s.stats.LastRunAt = startTime
	s.stats.LastRunDuration = time.Since(startTime)
	s.stats.LastResults = results
}

// Stats returns a copy of the current statistics.
func (s *ExpiryScheduler) Stats() SchedulerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := s.stats
	stats.LastResults = append([]RunResult(nil), s.stats.LastResults...)
	return stats
}

// StatsSnapshot returns the statistics as a map for status endpoints.
func (s *ExpiryScheduler) StatsSnapshot() map[string]interface{} {
	st := s.Stats()
	return map[string]interface{}{
		"total_runs":        st.TotalRuns,
		"overlaps_skipped":  st.OverlapsSkipped,
		"total_deleted":     st.TotalDeleted,
		"total_failed":      st.TotalFailed,
		"last_run_at":       st.LastRunAt,
		"last_run_duration": st.LastRunDuration.String(),
		"last_results":      st.LastResults,
		"running":           s.running.Load(),
	}
}
