package expiry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL expired scope repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get retrieves the record of a scope.
func (r *PostgresRepository) Get(ctx context.Context, scopeID string) (*Record, error) {
	query := `
		SELECT scope_id, status, created_at, updated_at
		FROM dsar_expired_scopes
		WHERE scope_id = $1
	`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, scopeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get expired scope: %w", err)
	}
	return rec, nil
}

// MarkExpired records a scope as expired unless a record already exists.
func (r *PostgresRepository) MarkExpired(ctx context.Context, scopeID string) (*Record, error) {
	query := `
		INSERT INTO dsar_expired_scopes (scope_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (scope_id) DO UPDATE SET scope_id = EXCLUDED.scope_id
		RETURNING scope_id, status, created_at, updated_at
	`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, scopeID, StatusExpired, time.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to mark scope expired: %w", err)
	}
	return rec, nil
}

// SetStatus moves a recorded scope to status.
func (r *PostgresRepository) SetStatus(ctx context.Context, scopeID string, status Status) error {
	query := `
		UPDATE dsar_expired_scopes
		SET status = $2, updated_at = $3
		WHERE scope_id = $1
	`

	result, err := r.pool.Exec(ctx, query, scopeID, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update expired scope: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// List returns records ordered by creation time.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) ([]*Record, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT scope_id, status, created_at, updated_at
		FROM dsar_expired_scopes
		WHERE ($1::smallint IS NULL OR status = $1)
		ORDER BY created_at, scope_id
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, opts.Status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired scopes: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expired scope: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expired scopes: %w", err)
	}
	return records, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	if err := row.Scan(&rec.ScopeID, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
