// Package privacy talks to the privacy manager, the service that locates,
// exports and erases personal data on behalf of this workflow.
package privacy

import (
	"context"

	"github.com/privacyops/dsar/internal/directory"
)

// Manager is the erasure and export capability.
type Manager interface {
	// DiscoverMetadata collects what personal data is held about the user.
	DiscoverMetadata(ctx context.Context, userID string) error

	// ExportUserData builds an export and returns the URL it can be downloaded from.
	ExportUserData(ctx context.Context, userID string) (string, error)

	// DeleteUserData erases every piece of personal data about the user.
	DeleteUserData(ctx context.Context, userID string) error

	// PurgeScope erases all personal data held in a scope.
	PurgeScope(ctx context.Context, scope directory.Scope) error
}
