package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/privacyops/dsar/internal/directory"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
// Binding references are cleared by ON DELETE SET NULL foreign keys.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL registry repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// CreatePurpose stores a new purpose.
func (r *PostgresRepository) CreatePurpose(ctx context.Context, p *Purpose) error {
	query := `
		INSERT INTO dsar_purposes (id, name, description, retention, protected, modified_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.Name, p.Description, p.Retention.String(), p.Protected, p.ModifiedBy, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create purpose: %w", err)
	}
	return nil
}

// UpdatePurpose replaces an existing purpose.
func (r *PostgresRepository) UpdatePurpose(ctx context.Context, p *Purpose) error {
	query := `
		UPDATE dsar_purposes
		SET name = $2, description = $3, retention = $4, protected = $5, modified_by = $6, updated_at = $7
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		p.ID, p.Name, p.Description, p.Retention.String(), p.Protected, p.ModifiedBy, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update purpose: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrPurposeNotFound
	}
	return nil
}

const purposeColumns = `id, name, description, retention, protected, modified_by, created_at, updated_at`

// GetPurpose retrieves a purpose by id.
func (r *PostgresRepository) GetPurpose(ctx context.Context, id string) (*Purpose, error) {
	query := `SELECT ` + purposeColumns + ` FROM dsar_purposes WHERE id = $1`

	p, err := scanPurpose(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPurposeNotFound
		}
		return nil, fmt.Errorf("failed to get purpose: %w", err)
	}
	return p, nil
}

// ListPurposes returns every purpose ordered by name.
func (r *PostgresRepository) ListPurposes(ctx context.Context) ([]*Purpose, error) {
	query := `SELECT ` + purposeColumns + ` FROM dsar_purposes ORDER BY name, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list purposes: %w", err)
	}
	defer rows.Close()

	var purposes []*Purpose
	for rows.Next() {
		p, err := scanPurpose(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purpose: %w", err)
		}
		purposes = append(purposes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purposes: %w", err)
	}
	return purposes, nil
}

// DeletePurpose removes a purpose.
func (r *PostgresRepository) DeletePurpose(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM dsar_purposes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete purpose: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrPurposeNotFound
	}
	return nil
}

// PurposeReferenced reports whether any binding references the purpose.
func (r *PostgresRepository) PurposeReferenced(ctx context.Context, id string) (bool, error) {
	query := `
		SELECT EXISTS (SELECT 1 FROM dsar_level_bindings WHERE purpose_id = $1)
		    OR EXISTS (SELECT 1 FROM dsar_scope_bindings WHERE purpose_id = $1)
	`

	var referenced bool
	if err := r.pool.QueryRow(ctx, query, id).Scan(&referenced); err != nil {
		return false, fmt.Errorf("failed to check purpose references: %w", err)
	}
	return referenced, nil
}

// CreateCategory stores a new category.
func (r *PostgresRepository) CreateCategory(ctx context.Context, c *Category) error {
	query := `
		INSERT INTO dsar_categories (id, name, description, modified_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if _, err := r.pool.Exec(ctx, query, c.ID, c.Name, c.Description, c.ModifiedBy, c.CreatedAt, c.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

// UpdateCategory replaces an existing category.
func (r *PostgresRepository) UpdateCategory(ctx context.Context, c *Category) error {
	query := `
		UPDATE dsar_categories
		SET name = $2, description = $3, modified_by = $4, updated_at = $5
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, c.ID, c.Name, c.Description, c.ModifiedBy, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

const categoryColumns = `id, name, description, modified_by, created_at, updated_at`

// GetCategory retrieves a category by id.
func (r *PostgresRepository) GetCategory(ctx context.Context, id string) (*Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM dsar_categories WHERE id = $1`

	c, err := scanCategory(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return c, nil
}

// ListCategories returns every category ordered by name.
func (r *PostgresRepository) ListCategories(ctx context.Context) ([]*Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM dsar_categories ORDER BY name, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []*Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}
	return categories, nil
}

// DeleteCategory removes a category.
func (r *PostgresRepository) DeleteCategory(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM dsar_categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

// UpsertLevelBinding creates or replaces the binding of a level.
func (r *PostgresRepository) UpsertLevelBinding(ctx context.Context, b *LevelBinding) error {
	query := `
		INSERT INTO dsar_level_bindings (level, purpose_id, category_id, apply_to_all_instances, modified_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (level) DO UPDATE SET
			purpose_id = EXCLUDED.purpose_id,
			category_id = EXCLUDED.category_id,
			apply_to_all_instances = EXCLUDED.apply_to_all_instances,
			modified_by = EXCLUDED.modified_by,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query,
		b.Level, b.PurposeID, b.CategoryID, b.ApplyToAllInstances, b.ModifiedBy, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store level binding: %w", err)
	}
	return nil
}

const levelBindingColumns = `level, purpose_id, category_id, apply_to_all_instances, modified_by, updated_at`

// GetLevelBinding retrieves the binding of a level.
func (r *PostgresRepository) GetLevelBinding(ctx context.Context, level directory.Level) (*LevelBinding, error) {
	query := `SELECT ` + levelBindingColumns + ` FROM dsar_level_bindings WHERE level = $1`

	b, err := scanLevelBinding(r.pool.QueryRow(ctx, query, level))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBindingNotFound
		}
		return nil, fmt.Errorf("failed to get level binding: %w", err)
	}
	return b, nil
}

// ListLevelBindings returns every stored level binding ordered by level.
func (r *PostgresRepository) ListLevelBindings(ctx context.Context) ([]*LevelBinding, error) {
	query := `SELECT ` + levelBindingColumns + ` FROM dsar_level_bindings ORDER BY level`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list level bindings: %w", err)
	}
	defer rows.Close()

	var bindings []*LevelBinding
	for rows.Next() {
		b, err := scanLevelBinding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan level binding: %w", err)
		}
		bindings = append(bindings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating level bindings: %w", err)
	}
	return bindings, nil
}

// UpsertScopeBinding creates or replaces the binding of a scope.
func (r *PostgresRepository) UpsertScopeBinding(ctx context.Context, b *ScopeBinding) error {
	query := `
		INSERT INTO dsar_scope_bindings (scope_id, purpose_id, category_id, modified_by, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scope_id) DO UPDATE SET
			purpose_id = EXCLUDED.purpose_id,
			category_id = EXCLUDED.category_id,
			modified_by = EXCLUDED.modified_by,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := r.pool.Exec(ctx, query, b.ScopeID, b.PurposeID, b.CategoryID, b.ModifiedBy, b.UpdatedAt); err != nil {
		return fmt.Errorf("failed to store scope binding: %w", err)
	}
	return nil
}

const scopeBindingColumns = `scope_id, purpose_id, category_id, modified_by, updated_at`

// GetScopeBinding retrieves the binding of a scope.
func (r *PostgresRepository) GetScopeBinding(ctx context.Context, scopeID string) (*ScopeBinding, error) {
	query := `SELECT ` + scopeBindingColumns + ` FROM dsar_scope_bindings WHERE scope_id = $1`

	b, err := scanScopeBinding(r.pool.QueryRow(ctx, query, scopeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBindingNotFound
		}
		return nil, fmt.Errorf("failed to get scope binding: %w", err)
	}
	return b, nil
}

// GetScopeBindings returns the bindings of the given scopes.
func (r *PostgresRepository) GetScopeBindings(ctx context.Context, scopeIDs []string) (map[string]*ScopeBinding, error) {
	bindings := make(map[string]*ScopeBinding, len(scopeIDs))
	if len(scopeIDs) == 0 {
		return bindings, nil
	}

	query := `SELECT ` + scopeBindingColumns + ` FROM dsar_scope_bindings WHERE scope_id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, scopeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get scope bindings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		b, err := scanScopeBinding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scope binding: %w", err)
		}
		bindings[b.ScopeID] = b
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scope bindings: %w", err)
	}
	return bindings, nil
}

// DeleteScopeBinding removes the binding of a scope.
func (r *PostgresRepository) DeleteScopeBinding(ctx context.Context, scopeID string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM dsar_scope_bindings WHERE scope_id = $1`, scopeID)
	if err != nil {
		return fmt.Errorf("failed to delete scope binding: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrBindingNotFound
	}
	return nil
}

func scanPurpose(row pgx.Row) (*Purpose, error) {
	var (
		p         Purpose
		retention string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &retention, &p.Protected, &p.ModifiedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.Retention, err = ParseRetention(retention); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanCategory(row pgx.Row) (*Category, error) {
	var c Category
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.ModifiedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanLevelBinding(row pgx.Row) (*LevelBinding, error) {
	var b LevelBinding
	err := row.Scan(&b.Level, &b.PurposeID, &b.CategoryID, &b.ApplyToAllInstances, &b.ModifiedBy, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanScopeBinding(row pgx.Row) (*ScopeBinding, error) {
	var b ScopeBinding
	if err := row.Scan(&b.ScopeID, &b.PurposeID, &b.CategoryID, &b.ModifiedBy, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
