package registry

import (
	"context"

	"github.com/privacyops/dsar/internal/directory"
)

// Repository defines the interface for registry storage.
type Repository interface {
	// CreatePurpose stores a new purpose.
	CreatePurpose(ctx context.Context, p *Purpose) error

	// UpdatePurpose replaces an existing purpose.
	// Returns ErrPurposeNotFound if the purpose does not exist.
	UpdatePurpose(ctx context.Context, p *Purpose) error

	// GetPurpose retrieves a purpose by id.
	// Returns ErrPurposeNotFound if the purpose does not exist.
	GetPurpose(ctx context.Context, id string) (*Purpose, error)

	// ListPurposes returns every purpose ordered by name.
	ListPurposes(ctx context.Context) ([]*Purpose, error)

	// DeletePurpose removes a purpose and clears binding references to it.
	// Returns ErrPurposeNotFound if the purpose does not exist.
	DeletePurpose(ctx context.Context, id string) error

	// PurposeReferenced reports whether any binding references the purpose.
	PurposeReferenced(ctx context.Context, id string) (bool, error)

	// CreateCategory stores a new category.
	CreateCategory(ctx context.Context, c *Category) error

	// UpdateCategory replaces an existing category.
	// Returns ErrCategoryNotFound if the category does not exist.
	UpdateCategory(ctx context.Context, c *Category) error

	// GetCategory retrieves a category by id.
	// Returns ErrCategoryNotFound if the category does not exist.
	GetCategory(ctx context.Context, id string) (*Category, error)

	// ListCategories returns every category ordered by name.
	ListCategories(ctx context.Context) ([]*Category, error)

	// DeleteCategory removes a category and clears binding references to it.
	// Returns ErrCategoryNotFound if the category does not exist.
	DeleteCategory(ctx context.Context, id string) error

	// UpsertLevelBinding creates or replaces the binding of a level.
	UpsertLevelBinding(ctx context.Context, b *LevelBinding) error

	// GetLevelBinding retrieves the binding of a level.
	// Returns ErrBindingNotFound if the level has no binding.
	GetLevelBinding(ctx context.Context, level directory.Level) (*LevelBinding, error)

	// ListLevelBindings returns every stored level binding.
	ListLevelBindings(ctx context.Context) ([]*LevelBinding, error)

	// UpsertScopeBinding creates or replaces the binding of a scope.
	UpsertScopeBinding(ctx context.Context, b *ScopeBinding) error

	// GetScopeBinding retrieves the binding of a scope.
	// Returns ErrBindingNotFound if the scope has no binding.
	GetScopeBinding(ctx context.Context, scopeID string) (*ScopeBinding, error)

	// GetScopeBindings returns the bindings of the given scopes, keyed by scope id.
	// Scopes without a binding are absent from the map.
	GetScopeBindings(ctx context.Context, scopeIDs []string) (map[string]*ScopeBinding, error)

	// DeleteScopeBinding removes the binding of a scope.
	// Returns ErrBindingNotFound if the scope has no binding.
	DeleteScopeBinding(ctx context.Context, scopeID string) error
}
