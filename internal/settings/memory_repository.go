package settings

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository for testing.
type InMemoryRepository struct {
	mu       sync.RWMutex
	settings map[string]*Setting
	err      error
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		settings: make(map[string]*Setting),
	}
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (r *InMemoryRepository) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Get retrieves a single setting by key.
func (r *InMemoryRepository) Get(_ context.Context, key string) (*Setting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.err != nil {
		return nil, r.err
	}
	s, ok := r.settings[key]
	if !ok {
		return nil, ErrSettingNotFound
	}
	sc := *s
	return &sc, nil
}

// GetAll retrieves all stored settings.
func (r *InMemoryRepository) GetAll(_ context.Context) (map[string]*Setting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.err != nil {
		return nil, r.err
	}
	result := make(map[string]*Setting, len(r.settings))
	for k, v := range r.settings {
		sc := *v
		result[k] = &sc
	}
	return result, nil
}

// Set creates or updates settings.
func (r *InMemoryRepository) Set(_ context.Context, settings ...*Setting) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	now := time.Now()
	for _, s := range settings {
		sc := *s
		sc.UpdatedAt = now
		r.settings[s.Key] = &sc
	}
	return nil
}

// Delete removes a setting by key.
func (r *InMemoryRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	delete(r.settings, key)
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
