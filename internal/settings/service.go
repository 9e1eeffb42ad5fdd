package settings

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the settings service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger
	CacheTTL   time.Duration // How long to cache settings in memory
	Defaults   map[string]*Setting
}

// Service reads settings with caching and falls back to defaults when the
// repository is unavailable.
type Service struct {
	repo     Repository
	logger   zerolog.Logger
	cacheTTL time.Duration
	defaults map[string]*Setting

	mu          sync.RWMutex
	cache       map[string]*Setting
	cacheExpiry time.Time
}

// NewService creates a new settings service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 1 * time.Minute
	}

	defaults := cfg.Defaults
	if defaults == nil {
		defaults = Defaults()
	}

	return &Service{
		repo:     cfg.Repository,
		logger:   cfg.Logger,
		cacheTTL: cacheTTL,
		defaults: defaults,
		cache:    make(map[string]*Setting),
	}
}

// Get retrieves a setting by key. Returns nil when neither the repository nor
// the defaults know the key.
func (s *Service) Get(ctx context.Context, key string) *Setting {
	if setting := s.getCached(key); setting != nil {
		return setting
	}

	setting, err := s.repo.Get(ctx, key)
	if err == nil {
		s.setCached(key, setting)
		return setting
	}

	if !errors.Is(err, ErrSettingNotFound) {
		s.logger.Warn().Err(err).Str("setting", key).Msg("failed to get setting from repository")
	}

	if def, ok := s.defaults[key]; ok {
		return def
	}
	return nil
}

// All returns every setting, stored values merged over defaults.
func (s *Service) All(ctx context.Context) map[string]*Setting {
	result := make(map[string]*Setting, len(s.defaults))
	for k, v := range s.defaults {
		result[k] = v
	}

	stored, err := s.repo.GetAll(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to get settings from repository, using defaults")
		return result
	}
	for k, v := range stored {
		result[k] = v
	}

	s.mu.Lock()
	s.cache = stored
	s.cacheExpiry = time.Now().Add(s.cacheTTL)
	s.mu.Unlock()

	return result
}

// Set stores one or more settings and refreshes the cache.
func (s *Service) Set(ctx context.Context, settings ...*Setting) error {
	now := time.Now()
	for _, setting := range settings {
		setting.UpdatedAt = now
	}

	if err := s.repo.Set(ctx, settings...); err != nil {
		return err
	}

	s.mu.Lock()
	for _, setting := range settings {
		s.cache[setting.Key] = setting
	}
	if s.cacheExpiry.Before(now) {
		s.cacheExpiry = now.Add(s.cacheTTL)
	}
	s.mu.Unlock()
	return nil
}

// InvalidateCache clears the cached settings, forcing a refresh on next access.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*Setting)
	s.cacheExpiry = time.Time{}
}

func (s *Service) getCached(key string) *Setting {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if time.Now().After(s.cacheExpiry) {
		return nil
	}
	return s.cache[key]
}

func (s *Service) setCached(key string, setting *Setting) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache[key] = setting
	if s.cacheExpiry.Before(time.Now()) {
		s.cacheExpiry = time.Now().Add(s.cacheTTL)
	}
}

// Convenience accessors for well-known settings.

// ContactDPOEnabled reports whether users may contact the privacy officer.
func (s *Service) ContactDPOEnabled(ctx context.Context) bool {
	return s.Get(ctx, KeyContactDPOEnabled).BoolValue(true)
}

// DPORoleIDs returns the roles whose holders are privacy officers.
func (s *Service) DPORoleIDs(ctx context.Context) []string {
	return s.Get(ctx, KeyDPORoleIDs).StringsValue()
}

// SystemDefaults returns the configured system-wide purpose and category.
func (s *Service) SystemDefaults(ctx context.Context) SystemDefaults {
	return SystemDefaults{
		PurposeID:  s.Get(ctx, KeyDefaultPurposeID).StringValue(""),
		CategoryID: s.Get(ctx, KeyDefaultCategoryID).StringValue(""),
	}
}

// SetSystemDefaults stores the system-wide purpose and category together.
func (s *Service) SetSystemDefaults(ctx context.Context, d SystemDefaults) error {
	return s.Set(ctx,
		&Setting{Key: KeyDefaultPurposeID, Value: d.PurposeID},
		&Setting{Key: KeyDefaultCategoryID, Value: d.CategoryID},
	)
}
