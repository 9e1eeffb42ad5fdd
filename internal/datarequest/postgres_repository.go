package datarequest

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const requestColumns = `id, subject_user_id, requested_by, type, status, comments, dpo_user_id, created_at, updated_at`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL data request repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create stores a new request.
func (r *PostgresRepository) Create(ctx context.Context, req *DataRequest) error {
	query := `
		INSERT INTO dsar_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		req.ID, req.SubjectID, req.RequestedBy, int(req.Type), int(req.Status),
		req.Comments, req.DPOID, req.CreatedAt, req.UpdatedAt,
	)
	return err
}

// Get retrieves a request by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*DataRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM dsar_requests WHERE id = $1`

	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	req, err := pgx.CollectExactlyOneRow(rows, scanRequest)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

// ListForUser returns the requests where userID is the subject or the requester.
func (r *PostgresRepository) ListForUser(ctx context.Context, userID string) ([]*DataRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM dsar_requests
		WHERE subject_user_id = $1 OR requested_by = $1
		ORDER BY status, created_at, id
	`
	return r.query(ctx, query, userID)
}

// ListAll returns every request.
func (r *PostgresRepository) ListAll(ctx context.Context) ([]*DataRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM dsar_requests ORDER BY status, created_at, id`
	return r.query(ctx, query)
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*DataRequest, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanRequest)
}

// HasOngoing reports whether the subject has an active request of type t.
func (r *PostgresRepository) HasOngoing(ctx context.Context, subjectID string, t Type) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM dsar_requests
			WHERE subject_user_id = $1 AND type = $2 AND status NOT IN ($3, $4, $5)
		)
	`
	var exists bool
	err := r.pool.QueryRow(ctx, query, subjectID, int(t),
		int(StatusComplete), int(StatusCancelled), int(StatusRejected),
	).Scan(&exists)
	return exists, err
}

// CompareAndSwapStatus moves the request from one status to another in a
// single conditional update.
func (r *PostgresRepository) CompareAndSwapStatus(ctx context.Context, id string, from, to Status, dpoID *string) error {
	query := `
		UPDATE dsar_requests
		SET status = $3, dpo_user_id = COALESCE($4, dpo_user_id), updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	tag, err := r.pool.Exec(ctx, query, id, int(from), int(to), dpoID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, id, ErrStatusConflict)
	}
	return nil
}

// ForceStatus moves an active request to status to.
func (r *PostgresRepository) ForceStatus(ctx context.Context, id string, to Status) error {
	query := `
		UPDATE dsar_requests
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($3, $4, $5)
	`
	tag, err := r.pool.Exec(ctx, query, id, int(to),
		int(StatusComplete), int(StatusCancelled), int(StatusRejected),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, id, ErrInvalidState)
	}
	return nil
}

// missOrConflict tells a missing row apart from one whose status did not match.
func (r *PostgresRepository) missOrConflict(ctx context.Context, id string, conflict error) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM dsar_requests WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check request existence: %w", err)
	}
	if !exists {
		return ErrRequestNotFound
	}
	return conflict
}

func scanRequest(row pgx.CollectableRow) (*DataRequest, error) {
	var (
		req         DataRequest
		typ, status int
	)
	if err := row.Scan(
		&req.ID,
		&req.SubjectID,
		&req.RequestedBy,
		&typ,
		&status,
		&req.Comments,
		&req.DPOID,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	req.Type = Type(typ)
	req.Status = Status(status)
	return &req, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
