package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/privacyops/dsar/internal/directory"
)

// InMemoryRepository is an in-memory implementation of Repository for testing.
type InMemoryRepository struct {
	mu            sync.RWMutex
	purposes      map[string]*Purpose
	categories    map[string]*Category
	levelBindings map[directory.Level]*LevelBinding
	scopeBindings map[string]*ScopeBinding
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		purposes:      make(map[string]*Purpose),
		categories:    make(map[string]*Category),
		levelBindings: make(map[directory.Level]*LevelBinding),
		scopeBindings: make(map[string]*ScopeBinding),
	}
}

// CreatePurpose stores a new purpose.
func (r *InMemoryRepository) CreatePurpose(_ context.Context, p *Purpose) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pc := *p
	r.purposes[p.ID] = &pc
	return nil
}

// UpdatePurpose replaces an existing purpose.
func (r *InMemoryRepository) UpdatePurpose(_ context.Context, p *Purpose) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.purposes[p.ID]; !ok {
		return ErrPurposeNotFound
	}
	pc := *p
	r.purposes[p.ID] = &pc
	return nil
}

// GetPurpose retrieves a purpose by id.
func (r *InMemoryRepository) GetPurpose(_ context.Context, id string) (*Purpose, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.purposes[id]
	if !ok {
		return nil, ErrPurposeNotFound
	}
	pc := *p
	return &pc, nil
}

// ListPurposes returns every purpose ordered by name.
func (r *InMemoryRepository) ListPurposes(_ context.Context) ([]*Purpose, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Purpose, 0, len(r.purposes))
	for _, p := range r.purposes {
		pc := *p
		out = append(out, &pc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeletePurpose removes a purpose and clears binding references to it.
func (r *InMemoryRepository) DeletePurpose(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.purposes[id]; !ok {
		return ErrPurposeNotFound
	}
	delete(r.purposes, id)
	for _, b := range r.levelBindings {
		if b.PurposeID != nil && *b.PurposeID == id {
			b.PurposeID = nil
		}
	}
	for _, b := range r.scopeBindings {
		if b.PurposeID != nil && *b.PurposeID == id {
			b.PurposeID = nil
		}
	}
	return nil
}

// PurposeReferenced reports whether any binding references the purpose.
func (r *InMemoryRepository) PurposeReferenced(_ context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.levelBindings {
		if b.PurposeID != nil && *b.PurposeID == id {
			return true, nil
		}
	}
	for _, b := range r.scopeBindings {
		if b.PurposeID != nil && *b.PurposeID == id {
			return true, nil
		}
	}
	return false, nil
}

// CreateCategory stores a new category.
func (r *InMemoryRepository) CreateCategory(_ context.Context, c *Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cc := *c
	r.categories[c.ID] = &cc
	return nil
}

// UpdateCategory replaces an existing category.
func (r *InMemoryRepository) UpdateCategory(_ context.Context, c *Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.categories[c.ID]; !ok {
		return ErrCategoryNotFound
	}
	cc := *c
	r.categories[c.ID] = &cc
	return nil
}

// GetCategory retrieves a category by id.
func (r *InMemoryRepository) GetCategory(_ context.Context, id string) (*Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.categories[id]
	if !ok {
		return nil, ErrCategoryNotFound
	}
	cc := *c
	return &cc, nil
}

// ListCategories returns every category ordered by name.
func (r *InMemoryRepository) ListCategories(_ context.Context) ([]*Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Category, 0, len(r.categories))
	for _, c := range r.categories {
		cc := *c
		out = append(out, &cc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteCategory removes a category and clears binding references to it.
func (r *InMemoryRepository) DeleteCategory(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.categories[id]; !ok {
		return ErrCategoryNotFound
	}
	delete(r.categories, id)
	for _, b := range r.levelBindings {
		if b.CategoryID != nil && *b.CategoryID == id {
			b.CategoryID = nil
		}
	}
	for _, b := range r.scopeBindings {
		if b.CategoryID != nil && *b.CategoryID == id {
			b.CategoryID = nil
		}
	}
	return nil
}

// UpsertLevelBinding creates or replaces the binding of a level.
func (r *InMemoryRepository) UpsertLevelBinding(_ context.Context, b *LevelBinding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levelBindings[b.Level] = copyLevelBinding(b)
	return nil
}

// GetLevelBinding retrieves the binding of a level.
func (r *InMemoryRepository) GetLevelBinding(_ context.Context, level directory.Level) (*LevelBinding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.levelBindings[level]
	if !ok {
		return nil, ErrBindingNotFound
	}
	return copyLevelBinding(b), nil
}

// ListLevelBindings returns every stored level binding ordered by level.
func (r *InMemoryRepository) ListLevelBindings(_ context.Context) ([]*LevelBinding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*LevelBinding, 0, len(r.levelBindings))
	for _, b := range r.levelBindings {
		out = append(out, copyLevelBinding(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

// UpsertScopeBinding creates or replaces the binding of a scope.
func (r *InMemoryRepository) UpsertScopeBinding(_ context.Context, b *ScopeBinding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scopeBindings[b.ScopeID] = copyScopeBinding(b)
	return nil
}

// GetScopeBinding retrieves the binding of a scope.
func (r *InMemoryRepository) GetScopeBinding(_ context.Context, scopeID string) (*ScopeBinding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.scopeBindings[scopeID]
	if !ok {
		return nil, ErrBindingNotFound
	}
	return copyScopeBinding(b), nil
}

// GetScopeBindings returns the bindings of the given scopes.
func (r *InMemoryRepository) GetScopeBindings(_ context.Context, scopeIDs []string) (map[string]*ScopeBinding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*ScopeBinding, len(scopeIDs))
	for _, id := range scopeIDs {
		if b, ok := r.scopeBindings[id]; ok {
			out[id] = copyScopeBinding(b)
		}
	}
	return out, nil
}

// DeleteScopeBinding removes the binding of a scope.
func (r *InMemoryRepository) DeleteScopeBinding(_ context.Context, scopeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scopeBindings[scopeID]; !ok {
		return ErrBindingNotFound
	}
	delete(r.scopeBindings, scopeID)
	return nil
}

func copyLevelBinding(b *LevelBinding) *LevelBinding {
	bc := *b
	bc.PurposeID = clonePtr(b.PurposeID)
	bc.CategoryID = clonePtr(b.CategoryID)
	return &bc
}

func copyScopeBinding(b *ScopeBinding) *ScopeBinding {
	bc := *b
	bc.PurposeID = clonePtr(b.PurposeID)
	bc.CategoryID = clonePtr(b.CategoryID)
	return &bc
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
