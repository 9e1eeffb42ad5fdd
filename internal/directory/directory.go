package directory

import (
	"context"
	"iter"
)

// Directory is the read-only adapter over the host platform.
type Directory interface {
	// ResolveScope returns the scope with its parent chain.
	// Returns ErrScopeNotFound if the scope does not exist.
	ResolveScope(ctx context.Context, scopeID string) (*Scope, error)

	// StreamCandidates lazily yields possibly-expired scopes ordered by path.
	// Iteration stops at the first error.
	StreamCandidates(ctx context.Context, q CandidateQuery) iter.Seq2[Candidate, error]

	// ListMemberships returns the membership-bound scopes the user belongs to.
	ListMemberships(ctx context.Context, userID string) ([]Membership, error)

	// GetUser returns a user by id.
	// Returns ErrUserNotFound if the user does not exist.
	GetUser(ctx context.Context, userID string) (*User, error)

	// SearchUsers returns non-deleted users whose name or email contains query,
	// excluding ids in exclude, up to limit results.
	SearchUsers(ctx context.Context, query string, exclude []string, limit int) ([]User, error)

	// ListSiteAdmins returns the ids of site administrators.
	ListSiteAdmins(ctx context.Context) ([]string, error)

	// ListRoleAssignments returns system-level assignments of the given roles.
	ListRoleAssignments(ctx context.Context, roleIDs []string) ([]RoleAssignment, error)

	// HasCapability reports whether the user holds the capability at system level.
	HasCapability(ctx context.Context, userID, capability string) (bool, error)
}
