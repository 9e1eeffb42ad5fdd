package privacy

import (
	"context"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/privacyops/dsar/internal/directory"
)

// NoopManager only logs. It is used when no privacy manager is configured,
// e.g. in local development.
type NoopManager struct {
	// DownloadBaseURL prefixes the fake export links.
	DownloadBaseURL string
	Logger          zerolog.Logger
}

// DiscoverMetadata does nothing.
func (m *NoopManager) DiscoverMetadata(_ context.Context, userID string) error {
	m.Logger.Debug().Str("user_id", userID).Msg("noop: discover metadata")
	return nil
}

// ExportUserData returns a placeholder download link.
func (m *NoopManager) ExportUserData(_ context.Context, userID string) (string, error) {
	m.Logger.Debug().Str("user_id", userID).Msg("noop: export user data")
	return m.DownloadBaseURL + "/exports/" + url.PathEscape(userID), nil
}

// DeleteUserData does nothing.
func (m *NoopManager) DeleteUserData(_ context.Context, userID string) error {
	m.Logger.Debug().Str("user_id", userID).Msg("noop: delete user data")
	return nil
}

// PurgeScope does nothing.
func (m *NoopManager) PurgeScope(_ context.Context, scope directory.Scope) error {
	m.Logger.Debug().Str("scope_id", scope.ID).Str("level", scope.Level.String()).Msg("noop: purge scope")
	return nil
}

var _ Manager = (*NoopManager)(nil)
