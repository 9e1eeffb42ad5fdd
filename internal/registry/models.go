// Package registry stores the data registry: purposes, categories and the
// bindings that attach them to levels and individual scopes.
package registry

import (
	"errors"
	"time"

	"github.com/privacyops/dsar/internal/directory"
)

// Repository errors.
var (
	ErrPurposeNotFound  = errors.New("purpose not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrBindingNotFound  = errors.New("binding not found")
)

// ErrPurposeInUse is returned when deleting a protected purpose that is still referenced.
var ErrPurposeInUse = errors.New("protected purpose is in use")

// MaxNameLength is the maximum length of purpose and category names.
const MaxNameLength = 100

// Purpose is a lawful processing purpose with a retention period.
type Purpose struct {
	ID          string
	Name        string
	Description string
	Retention   Retention
	// Protected purposes cannot be deleted while anything references them.
	Protected  bool
	ModifiedBy string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Category classifies the kind of personal data held.
type Category struct {
	ID          string
	Name        string
	Description string
	ModifiedBy  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LevelBinding is the default purpose and category for every scope at a level.
type LevelBinding struct {
	Level      directory.Level
	PurposeID  *string
	CategoryID *string
	// ApplyToAllInstances makes the level default win over per-scope bindings.
	ApplyToAllInstances bool
	ModifiedBy          string
	UpdatedAt           time.Time
}

// ScopeBinding attaches a purpose and category to one scope.
type ScopeBinding struct {
	ScopeID    string
	PurposeID  *string
	CategoryID *string
	ModifiedBy string
	UpdatedAt  time.Time
}

// PurposeInput holds the writable fields of a purpose.
type PurposeInput struct {
	Name        string
	Description string
	Retention   string
	Protected   bool
}

// CategoryInput holds the writable fields of a category.
type CategoryInput struct {
	Name        string
	Description string
}

// LevelBindingInput holds the writable fields of a level binding.
type LevelBindingInput struct {
	PurposeID           *string
	CategoryID          *string
	ApplyToAllInstances bool
}

// ScopeBindingInput holds the writable fields of a scope binding.
type ScopeBindingInput struct {
	PurposeID  *string
	CategoryID *string
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
