package datarequest

import "context"

// Repository defines the interface for data request storage.
type Repository interface {
	// Create stores a new request.
	Create(ctx context.Context, r *DataRequest) error

	// Get retrieves a request by ID.
	// Returns ErrRequestNotFound if the request doesn't exist.
	Get(ctx context.Context, id string) (*DataRequest, error)

	// ListForUser returns the requests where userID is the subject or the
	// requester, ordered by status then creation time.
	ListForUser(ctx context.Context, userID string) ([]*DataRequest, error)

	// ListAll returns every request ordered by status then creation time.
	ListAll(ctx context.Context) ([]*DataRequest, error)

	// HasOngoing reports whether the subject has an active request of type t.
	HasOngoing(ctx context.Context, subjectID string, t Type) (bool, error)

	// CompareAndSwapStatus moves the request from status from to status to,
	// setting the DPO when dpoID is non-nil. Returns ErrRequestNotFound if
	// the request doesn't exist and ErrStatusConflict if its status is not from.
	CompareAndSwapStatus(ctx context.Context, id string, from, to Status, dpoID *string) error

	// ForceStatus moves an active request to status to, whatever its current
	// status. Returns ErrRequestNotFound if the request doesn't exist and
	// ErrInvalidState if it is already terminal.
	ForceStatus(ctx context.Context, id string, to Status) error
}
