package expiry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository for testing.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{records: make(map[string]*Record)}
}

// Get retrieves the record of a scope.
func (r *InMemoryRepository) Get(_ context.Context, scopeID string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[scopeID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	rc := *rec
	return &rc, nil
}

// MarkExpired records a scope as expired unless a record already exists.
func (r *InMemoryRepository) MarkExpired(_ context.Context, scopeID string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[scopeID]
	if !ok {
		now := time.Now()
		rec = &Record{ScopeID: scopeID, Status: StatusExpired, CreatedAt: now, UpdatedAt: now}
		r.records[scopeID] = rec
	}
	rc := *rec
	return &rc, nil
}

// SetStatus moves a recorded scope to status.
func (r *InMemoryRepository) SetStatus(_ context.Context, scopeID string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[scopeID]
	if !ok {
		return ErrRecordNotFound
	}
	rec.Status = status
	rec.UpdatedAt = time.Now()
	return nil
}

// List returns records ordered by creation time.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Record
	for _, rec := range r.records {
		if opts.Status != nil && rec.Status != *opts.Status {
			continue
		}
		rc := *rec
		out = append(out, &rc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ScopeID < out[j].ScopeID
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
