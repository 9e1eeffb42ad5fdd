package expiry

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/retention"
)

// Strategy names.
const (
	StrategyMembership = "membership"
	StrategyInactivity = "inactivity"
)

// Strategy decides which scopes count as finished and from when their
// retention period runs.
type Strategy struct {
	Name string

	// Candidates streams possibly expired scopes, ancestors before descendants.
	Candidates func(ctx context.Context, res *retention.Resolver, now time.Time) iter.Seq2[directory.Candidate, error]

	// Accept is an extra guard applied to candidates whose retention has run
	// out. Nil accepts everything.
	Accept func(ctx context.Context, c directory.Candidate, now time.Time) (bool, error)
}

// MembershipStrategy expires course scopes whose end date has passed,
// together with everything below them.
func MembershipStrategy(dir directory.Directory) Strategy {
	return Strategy{
		Name: StrategyMembership,
		Candidates: func(ctx context.Context, _ *retention.Resolver, now time.Time) iter.Seq2[directory.Candidate, error] {
			return dir.StreamCandidates(ctx, directory.CandidateQuery{Kind: directory.EndedMemberships, Now: now})
		},
	}
}

// InactivityStrategy expires user scopes whose owner has not been seen for
// longer than the user level retention. Users with an ongoing membership, or
// one without an end date, are never expired.
func InactivityStrategy(dir directory.Directory) Strategy {
	return Strategy{
		Name: StrategyInactivity,
		Candidates: func(ctx context.Context, res *retention.Resolver, now time.Time) iter.Seq2[directory.Candidate, error] {
			return func(yield func(directory.Candidate, error) bool) {
				purpose, err := res.LevelPurpose(ctx, directory.LevelUser)
				if err != nil {
					yield(directory.Candidate{}, fmt.Errorf("resolve user level purpose: %w", err))
					return
				}
				q := directory.CandidateQuery{
					Kind:   directory.InactiveUsers,
					Now:    now,
					Before: purpose.Retention.SubtractFrom(now),
				}
				for c, err := range dir.StreamCandidates(ctx, q) {
					if !yield(c, err) || err != nil {
						return
					}
				}
			}
		},
		Accept: func(ctx context.Context, c directory.Candidate, now time.Time) (bool, error) {
			memberships, err := dir.ListMemberships(ctx, c.Scope.InstanceID)
			if err != nil {
				return false, fmt.Errorf("list memberships: %w", err)
			}
			for _, m := range memberships {
				if !m.Finished(now) {
					return false, nil
				}
			}
			return true, nil
		},
	}
}
