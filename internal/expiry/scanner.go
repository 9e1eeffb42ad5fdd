package expiry

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/rs/zerolog"

	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/retention"
)

// ScannerConfig holds the dependencies of a Scanner.
type ScannerConfig struct {
	Strategy Strategy
	Resolver *retention.Resolver
	Records  Repository
	Logger   zerolog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Scanner finds expired scopes for one strategy.
type Scanner struct {
	strategy Strategy
	resolver *retention.Resolver
	records  Repository
	logger   zerolog.Logger
	now      func() time.Time
}

// NewScanner creates a new scanner.
func NewScanner(cfg ScannerConfig) *Scanner {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Scanner{
		strategy: cfg.Strategy,
		resolver: cfg.Resolver,
		records:  cfg.Records,
		logger:   cfg.Logger.With().Str("strategy", cfg.Strategy.Name).Logger(),
		now:      now,
	}
}

// Strategy returns the name of the scanner's strategy.
func (s *Scanner) Strategy() string {
	return s.strategy.Name
}

// Scan lazily yields the scopes whose retention period has run out. Every
// call starts a new pass with its own resolver cache. Scopes that were
// already cleaned, or that disappeared since the candidate query ran, are
// skipped. Stopping the iteration closes the candidate stream.
func (s *Scanner) Scan(ctx context.Context) iter.Seq2[ResolvedScope, error] {
	return func(yield func(ResolvedScope, error) bool) {
		now := s.now()
		res := s.resolver.ForScan()

		for c, err := range s.strategy.Candidates(ctx, res, now) {
			if err != nil {
				yield(ResolvedScope{}, err)
				return
			}

			rs, ok, err := s.evaluate(ctx, res, c, now)
			if err != nil {
				yield(ResolvedScope{}, err)
				return
			}
			if !ok {
				continue
			}
			if !yield(rs, nil) {
				return
			}
		}
	}
}

func (s *Scanner) evaluate(ctx context.Context, res *retention.Resolver, c directory.Candidate, now time.Time) (ResolvedScope, bool, error) {
	rec, err := s.records.Get(ctx, c.Scope.ID)
	switch {
	case err == nil && rec.Status == StatusCleaned:
		return ResolvedScope{}, false, nil
	case err != nil && !errors.Is(err, ErrRecordNotFound):
		return ResolvedScope{}, false, err
	}

	scope := c.Scope
	eff, err := res.ResolveScope(ctx, &scope, retention.ResolveOptions{OverridePurposeID: c.PurposeID})
	if err != nil {
		if errors.Is(err, directory.ErrScopeNotFound) {
			s.logger.Debug().Str("scope_id", c.Scope.ID).Msg("skipping vanished scope")
			return ResolvedScope{}, false, nil
		}
		return ResolvedScope{}, false, err
	}

	expiresAt := eff.ExpiresAt(c.ComparisonTime)
	if now.Before(expiresAt) {
		return ResolvedScope{}, false, nil
	}

	if s.strategy.Accept != nil {
		ok, err := s.strategy.Accept(ctx, c, now)
		if err != nil || !ok {
			return ResolvedScope{}, false, err
		}
	}

	return ResolvedScope{
		Scope:          scope,
		Strategy:       s.strategy.Name,
		ComparisonTime: c.ComparisonTime,
		ExpiresAt:      expiresAt,
		Effective:      eff,
	}, true, nil
}
