package directory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const scopeKeyPrefix = "dsar:scope:"

// CachedDirectory caches scope resolution in Redis. All other calls go
// straight to the wrapped directory.
type CachedDirectory struct {
	Directory
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedDirectory wraps next with a Redis scope cache.
func NewCachedDirectory(next Directory, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *CachedDirectory {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedDirectory{
		Directory: next,
		client:    client,
		ttl:       ttl,
		logger:    logger.With().Str("component", "directory_cache").Logger(),
	}
}

// ResolveScope returns the cached scope or loads and caches it.
// Cache failures are logged and fall through to the wrapped directory.
func (c *CachedDirectory) ResolveScope(ctx context.Context, scopeID string) (*Scope, error) {
	key := scopeKeyPrefix + scopeID

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var s Scope
		if jsonErr := json.Unmarshal(data, &s); jsonErr == nil {
			return &s, nil
		}
		c.logger.Warn().Str("scope_id", scopeID).Msg("discarding undecodable cached scope")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn().Err(err).Str("scope_id", scopeID).Msg("scope cache read failed")
	}

	s, err := c.Directory.ResolveScope(ctx, scopeID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(s); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn().Err(err).Str("scope_id", scopeID).Msg("scope cache write failed")
		}
	}
	return s, nil
}

// Invalidate drops cached scopes, e.g. after they were purged.
func (c *CachedDirectory) Invalidate(ctx context.Context, scopeIDs ...string) error {
	if len(scopeIDs) == 0 {
		return nil
	}
	keys := make([]string, len(scopeIDs))
	for i, id := range scopeIDs {
		keys[i] = scopeKeyPrefix + id
	}
	return c.client.Del(ctx, keys...).Err()
}

// Ensure CachedDirectory implements Directory.
var _ Directory = (*CachedDirectory)(nil)
