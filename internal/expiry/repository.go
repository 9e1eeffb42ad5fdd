package expiry

import "context"

// ListOptions filters record listings.
type ListOptions struct {
	Status *Status
	Limit  int
}

// Repository defines the interface for expired scope record storage.
type Repository interface {
	// Get retrieves the record of a scope.
	// Returns ErrRecordNotFound if the scope was never recorded.
	Get(ctx context.Context, scopeID string) (*Record, error)

	// MarkExpired records a scope as expired unless a record already exists.
	// Returns the stored record either way.
	MarkExpired(ctx context.Context, scopeID string) (*Record, error)

	// SetStatus moves a recorded scope to status.
	// Returns ErrRecordNotFound if the scope was never recorded.
	SetStatus(ctx context.Context, scopeID string, status Status) error

	// List returns records ordered by creation time.
	List(ctx context.Context, opts ListOptions) ([]*Record, error)
}
