package settings

import "context"

// Repository defines the interface for settings storage.
type Repository interface {
	// Get retrieves a single setting by key.
	Get(ctx context.Context, key string) (*Setting, error)

	// GetAll retrieves all stored settings.
	GetAll(ctx context.Context) (map[string]*Setting, error)

	// Set creates or updates settings atomically.
	Set(ctx context.Context, settings ...*Setting) error

	// Delete removes a setting by key.
	Delete(ctx context.Context, key string) error
}
