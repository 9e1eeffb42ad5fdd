package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/privacyops/dsar/internal/api/models"
	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/settings"
)

// ServiceConfig holds the dependencies of the registry service.
type ServiceConfig struct {
	Repository Repository
	Directory  directory.Directory
	Settings   *settings.Service
	Logger     zerolog.Logger
}

// Service manages the data registry. Every operation requires the
// manage-registry capability.
type Service struct {
	repo     Repository
	dir      directory.Directory
	settings *settings.Service
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a new registry service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:     cfg.Repository,
		dir:      cfg.Directory,
		settings: cfg.Settings,
		logger:   cfg.Logger.With().Str("component", "registry").Logger(),
		now:      time.Now,
	}
}

func (s *Service) authorize(ctx context.Context, actorID string) error {
	return directory.RequireCapability(ctx, s.dir, actorID, directory.CapabilityManageDataRegistry)
}

// CreatePurpose creates a new purpose.
func (s *Service) CreatePurpose(ctx context.Context, actorID string, in PurposeInput) (*Purpose, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	retention, fieldErrors := validatePurposeInput(in)
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	now := s.now()
	p := &Purpose{
		ID:          "pur_" + uuid.New().String()[:22],
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Retention:   retention,
		Protected:   in.Protected,
		ModifiedBy:  actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreatePurpose(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info().Str("purpose_id", p.ID).Str("actor", actorID).Msg("purpose created")
	return p, nil
}

// UpdatePurpose replaces the writable fields of a purpose.
func (s *Service) UpdatePurpose(ctx context.Context, actorID, id string, in PurposeInput) (*Purpose, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	retention, fieldErrors := validatePurposeInput(in)
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	p, err := s.repo.GetPurpose(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.Retention = retention
	p.Protected = in.Protected
	p.ModifiedBy = actorID
	p.UpdatedAt = s.now()

	if err := s.repo.UpdatePurpose(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPurpose returns a purpose.
func (s *Service) GetPurpose(ctx context.Context, actorID, id string) (*Purpose, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	return s.repo.GetPurpose(ctx, id)
}

// ListPurposes returns every purpose.
func (s *Service) ListPurposes(ctx context.Context, actorID string) ([]*Purpose, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	return s.repo.ListPurposes(ctx)
}

// DeletePurpose deletes a purpose. A protected purpose that is referenced by a
// binding or by the system defaults cannot be deleted. Deleting any other
// purpose clears the references to it.
func (s *Service) DeletePurpose(ctx context.Context, actorID, id string) error {
	if err := s.authorize(ctx, actorID); err != nil {
		return err
	}

	p, err := s.repo.GetPurpose(ctx, id)
	if err != nil {
		return err
	}

	defaults := s.settings.SystemDefaults(ctx)
	isDefault := defaults.PurposeID == id

	if p.Protected {
		referenced, err := s.repo.PurposeReferenced(ctx, id)
		if err != nil {
			return err
		}
		if referenced || isDefault {
			return ErrPurposeInUse
		}
	}

	if err := s.repo.DeletePurpose(ctx, id); err != nil {
		return err
	}
	if isDefault {
		defaults.PurposeID = ""
		if err := s.settings.SetSystemDefaults(ctx, defaults); err != nil {
			return fmt.Errorf("clear default purpose: %w", err)
		}
	}

	s.logger.Info().Str("purpose_id", id).Str("actor", actorID).Msg("purpose deleted")
	return nil
}

// CreateCategory creates a new category.
func (s *Service) CreateCategory(ctx context.Context, actorID string, in CategoryInput) (*Category, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	if fieldErrors := validateName(in.Name); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	now := s.now()
	c := &Category{
		ID:          "cat_" + uuid.New().String()[:22],
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		ModifiedBy:  actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateCategory replaces the writable fields of a category.
func (s *Service) UpdateCategory(ctx context.Context, actorID, id string, in CategoryInput) (*Category, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	if fieldErrors := validateName(in.Name); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	c, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Name = strings.TrimSpace(in.Name)
	c.Description = in.Description
	c.ModifiedBy = actorID
	c.UpdatedAt = s.now()

	if err := s.repo.UpdateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetCategory returns a category.
func (s *Service) GetCategory(ctx context.Context, actorID, id string) (*Category, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	return s.repo.GetCategory(ctx, id)
}

// ListCategories returns every category.
func (s *Service) ListCategories(ctx context.Context, actorID string) ([]*Category, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	return s.repo.ListCategories(ctx)
}

// DeleteCategory deletes a category and clears the references to it.
func (s *Service) DeleteCategory(ctx context.Context, actorID, id string) error {
	if err := s.authorize(ctx, actorID); err != nil {
		return err
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}

	defaults := s.settings.SystemDefaults(ctx)
	if defaults.CategoryID == id {
		defaults.CategoryID = ""
		if err := s.settings.SetSystemDefaults(ctx, defaults); err != nil {
			return fmt.Errorf("clear default category: %w", err)
		}
	}
	return nil
}

// SetLevelBinding sets the default purpose and category of a level.
func (s *Service) SetLevelBinding(ctx context.Context, actorID string, level directory.Level, in LevelBindingInput) (*LevelBinding, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return nil, err
	}

	var fieldErrors []models.FieldError
	if !level.Valid() || level == directory.LevelSystem {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "level", Message: "must be a non-system scope level"})
	}
	refErrors, err := s.validateReferences(ctx, in.PurposeID, in.CategoryID)
	if err != nil {
		return nil, err
	}
	fieldErrors = append(fieldErrors, refErrors...)
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	b := &LevelBinding{
		Level:               level,
		PurposeID:           clonePtr(in.PurposeID),
		CategoryID:          clonePtr(in.CategoryID),
		ApplyToAllInstances: in.ApplyToAllInstances,
		ModifiedBy:          actorID,
		UpdatedAt:           s.now(),
	}
	if err := s.repo.UpsertLevelBinding(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// GetLevelBinding returns the binding of a level.
func (s *Service) GetLevelBinding(ctx context.Context, actorID string, level directory.Level) (*LevelBinding, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	return s.repo.GetLevelBinding(ctx, level)
}

// ListLevelBindings returns every stored level binding.
func (s *Service) ListLevelBindings(ctx context.Context, actorID string) ([]*LevelBinding, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	return s.repo.ListLevelBindings(ctx)
}

// SetScopeBinding sets the purpose and category of one scope.
func (s *Service) SetScopeBinding(ctx context.Context, actorID, scopeID string, in ScopeBindingInput) (*ScopeBinding, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	if _, err := s.dir.ResolveScope(ctx, scopeID); err != nil {
		return nil, err
	}

	fieldErrors, err := s.validateReferences(ctx, in.PurposeID, in.CategoryID)
	if err != nil {
		return nil, err
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	b := &ScopeBinding{
		ScopeID:    scopeID,
		PurposeID:  clonePtr(in.PurposeID),
		CategoryID: clonePtr(in.CategoryID),
		ModifiedBy: actorID,
		UpdatedAt:  s.now(),
	}
	if err := s.repo.UpsertScopeBinding(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// GetScopeBinding returns the binding of one scope.
func (s *Service) GetScopeBinding(ctx context.Context, actorID, scopeID string) (*ScopeBinding, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	return s.repo.GetScopeBinding(ctx, scopeID)
}

// DeleteScopeBinding removes the binding of one scope so it inherits again.
func (s *Service) DeleteScopeBinding(ctx context.Context, actorID, scopeID string) error {
	if err := s.authorize(ctx, actorID); err != nil {
		return err
	}
	return s.repo.DeleteScopeBinding(ctx, scopeID)
}

// SetSystemDefaults sets the system-wide purpose and category.
func (s *Service) SetSystemDefaults(ctx context.Context, actorID, purposeID, categoryID string) error {
	if err := s.authorize(ctx, actorID); err != nil {
		return err
	}
	if purposeID == "" || categoryID == "" {
		return &ValidationError{Errors: []models.FieldError{
			{Field: "purposeId", Message: "system defaults need both a purpose and a category"},
		}}
	}
	fieldErrors, err := s.validateReferences(ctx, &purposeID, &categoryID)
	if err != nil {
		return err
	}
	if len(fieldErrors) > 0 {
		return &ValidationError{Errors: fieldErrors}
	}
	return s.settings.SetSystemDefaults(ctx, settings.SystemDefaults{PurposeID: purposeID, CategoryID: categoryID})
}

// SystemDefaults returns the system-wide purpose and category.
func (s *Service) SystemDefaults(ctx context.Context, actorID string) (settings.SystemDefaults, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return settings.SystemDefaults{}, err
	}
	return s.settings.SystemDefaults(ctx), nil
}

// DefaultsSet reports whether the system defaults are configured and point at
// existing records. Expired-scope deletion refuses to run otherwise.
func (s *Service) DefaultsSet(ctx context.Context) (bool, error) {
	defaults := s.settings.SystemDefaults(ctx)
	if !defaults.Complete() {
		return false, nil
	}
	if _, err := s.repo.GetPurpose(ctx, defaults.PurposeID); err != nil {
		if errors.Is(err, ErrPurposeNotFound) {
			return false, nil
		}
		return false, err
	}
	if _, err := s.repo.GetCategory(ctx, defaults.CategoryID); err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Service) validateReferences(ctx context.Context, purposeID, categoryID *string) ([]models.FieldError, error) {
	var fieldErrors []models.FieldError
	if purposeID != nil {
		if _, err := s.repo.GetPurpose(ctx, *purposeID); err != nil {
			if !errors.Is(err, ErrPurposeNotFound) {
				return nil, err
			}
			fieldErrors = append(fieldErrors, models.FieldError{Field: "purposeId", Message: "unknown purpose"})
		}
	}
	if categoryID != nil {
		if _, err := s.repo.GetCategory(ctx, *categoryID); err != nil {
			if !errors.Is(err, ErrCategoryNotFound) {
				return nil, err
			}
			fieldErrors = append(fieldErrors, models.FieldError{Field: "categoryId", Message: "unknown category"})
		}
	}
	return fieldErrors, nil
}

func validatePurposeInput(in PurposeInput) (Retention, []models.FieldError) {
	fieldErrors := validateName(in.Name)
	retention, err := ParseRetention(in.Retention)
	if err != nil {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field:   "retention",
			Message: "must be an ISO-8601 duration of years, months, weeks or days",
		})
	}
	return retention, fieldErrors
}

func validateName(name string) []models.FieldError {
	name = strings.TrimSpace(name)
	if name == "" {
		return []models.FieldError{{Field: "name", Message: "is required"}}
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return []models.FieldError{{Field: "name", Message: fmt.Sprintf("must be at most %d characters", MaxNameLength)}}
	}
	return nil
}

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}
