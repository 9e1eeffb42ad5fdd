package directory

import (
	"context"
	"errors"
	"fmt"
)

// ErrPermissionDenied is returned when the actor lacks a required capability.
var ErrPermissionDenied = errors.New("permission denied")

// RequireCapability returns ErrPermissionDenied unless userID holds capability.
func RequireCapability(ctx context.Context, dir Directory, userID, capability string) error {
	if userID == "" {
		return ErrPermissionDenied
	}
	ok, err := dir.HasCapability(ctx, userID, capability)
	if err != nil {
		return fmt.Errorf("check capability %s: %w", capability, err)
	}
	if !ok {
		return fmt.Errorf("%w: missing %s", ErrPermissionDenied, capability)
	}
	return nil
}
