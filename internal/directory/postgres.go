package directory

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSchema creates stand-in tables with the shape of the host platform's
// directory views. Production deployments expose the views themselves.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS dir_scopes (
    id          TEXT PRIMARY KEY,
    level       SMALLINT NOT NULL,
    path        TEXT NOT NULL,
    instance_id TEXT NOT NULL DEFAULT '',
    end_date    TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS dir_users (
    id          TEXT PRIMARY KEY,
    full_name   TEXT NOT NULL,
    email       TEXT NOT NULL,
    deleted     BOOLEAN NOT NULL DEFAULT FALSE,
    site_admin  BOOLEAN NOT NULL DEFAULT FALSE,
    last_access TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS dir_memberships (
    user_id  TEXT NOT NULL,
    scope_id TEXT NOT NULL,
    PRIMARY KEY (user_id, scope_id)
);
CREATE TABLE IF NOT EXISTS dir_role_assignments (
    user_id TEXT NOT NULL,
    role_id TEXT NOT NULL,
    PRIMARY KEY (user_id, role_id)
);
CREATE TABLE IF NOT EXISTS dir_capabilities (
    user_id    TEXT NOT NULL,
    capability TEXT NOT NULL,
    PRIMARY KEY (user_id, capability)
);
`

// PostgresDirectory reads the host platform's directory views.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory creates a new PostgreSQL directory.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

// ResolveScope returns the scope with its parent chain.
func (d *PostgresDirectory) ResolveScope(ctx context.Context, scopeID string) (*Scope, error) {
	query := `
		SELECT id, level, path, instance_id, end_date
		FROM dir_scopes
		WHERE id = $1
	`

	var s Scope
	err := d.pool.QueryRow(ctx, query, scopeID).Scan(&s.ID, &s.Level, &s.Path, &s.InstanceID, &s.EndDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScopeNotFound
		}
		return nil, fmt.Errorf("failed to resolve scope: %w", err)
	}
	s.ParentIDs = ParentIDsFromPath(s.Path)
	return &s, nil
}

const endedMembershipsQuery = `
	SELECT s.id, s.level, s.path, s.instance_id, s.end_date, c.end_date, b.purpose_id
	FROM dir_scopes c
	JOIN dir_scopes s ON s.path = c.path OR s.path LIKE c.path || '/%'
	LEFT JOIN dsar_scope_bindings b ON b.scope_id = s.id
	WHERE c.level = $1 AND c.end_date IS NOT NULL AND c.end_date < $2
	ORDER BY s.path, s.level
`

const inactiveUsersQuery = `
	SELECT s.id, s.level, s.path, s.instance_id, s.end_date, u.last_access, b.purpose_id
	FROM dir_scopes s
	JOIN dir_users u ON u.id = s.instance_id
	LEFT JOIN dsar_scope_bindings b ON b.scope_id = s.id
	WHERE s.level = $1 AND u.last_access IS NOT NULL AND u.last_access <= $2
	ORDER BY s.path, s.level
`

// StreamCandidates lazily yields candidates straight from the result cursor.
func (d *PostgresDirectory) StreamCandidates(ctx context.Context, q CandidateQuery) iter.Seq2[Candidate, error] {
	return func(yield func(Candidate, error) bool) {
		var (
			query string
			args  []any
		)
		switch q.Kind {
		case EndedMemberships:
			query, args = endedMembershipsQuery, []any{LevelCourse, q.Now}
		case InactiveUsers:
			query, args = inactiveUsersQuery, []any{LevelUser, q.Before}
		default:
			yield(Candidate{}, fmt.Errorf("unknown candidate kind %d", q.Kind))
			return
		}

		rows, err := d.pool.Query(ctx, query, args...)
		if err != nil {
			yield(Candidate{}, fmt.Errorf("failed to query candidates: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			c, err := scanCandidate(rows)
			if err != nil {
				yield(Candidate{}, fmt.Errorf("failed to scan candidate: %w", err))
				return
			}
			if !yield(c, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Candidate{}, fmt.Errorf("error iterating candidates: %w", err))
		}
	}
}

func scanCandidate(rows pgx.Rows) (Candidate, error) {
	var (
		c          Candidate
		comparison time.Time
	)
	err := rows.Scan(
		&c.Scope.ID,
		&c.Scope.Level,
		&c.Scope.Path,
		&c.Scope.InstanceID,
		&c.Scope.EndDate,
		&comparison,
		&c.PurposeID,
	)
	if err != nil {
		return Candidate{}, err
	}
	c.Scope.ParentIDs = ParentIDsFromPath(c.Scope.Path)
	c.ComparisonTime = comparison
	return c, nil
}

// ListMemberships returns the membership-bound scopes the user belongs to.
func (d *PostgresDirectory) ListMemberships(ctx context.Context, userID string) ([]Membership, error) {
	query := `
		SELECT m.user_id, m.scope_id, s.end_date
		FROM dir_memberships m
		JOIN dir_scopes s ON s.id = m.scope_id
		WHERE m.user_id = $1
		ORDER BY s.path
	`

	rows, err := d.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.UserID, &m.ScopeID, &m.EndDate); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}
	return memberships, nil
}

// GetUser returns a user by id.
func (d *PostgresDirectory) GetUser(ctx context.Context, userID string) (*User, error) {
	query := `
		SELECT id, full_name, email, deleted, site_admin, last_access
		FROM dir_users
		WHERE id = $1
	`

	u, err := scanUser(d.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// SearchUsers returns matching non-deleted users ordered by name.
func (d *PostgresDirectory) SearchUsers(ctx context.Context, query string, exclude []string, limit int) ([]User, error) {
	sql := `
		SELECT id, full_name, email, deleted, site_admin, last_access
		FROM dir_users
		WHERE NOT deleted
		  AND ($1 = '' OR full_name ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%')
		  AND NOT (id = ANY($2))
		ORDER BY full_name, id
		LIMIT $3
	`
	if exclude == nil {
		exclude = []string{}
	}
	if limit <= 0 {
		limit = 30
	}

	rows, err := d.pool.Query(ctx, sql, query, exclude, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// ListSiteAdmins returns the ids of site administrators.
func (d *PostgresDirectory) ListSiteAdmins(ctx context.Context) ([]string, error) {
	rows, err := d.pool.Query(ctx, `SELECT id FROM dir_users WHERE site_admin AND NOT deleted ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list site admins: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan site admins: %w", err)
	}
	return ids, nil
}

// ListRoleAssignments returns system-level assignments of the given roles.
func (d *PostgresDirectory) ListRoleAssignments(ctx context.Context, roleIDs []string) ([]RoleAssignment, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	rows, err := d.pool.Query(ctx,
		`SELECT user_id, role_id FROM dir_role_assignments WHERE role_id = ANY($1) ORDER BY user_id`,
		roleIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list role assignments: %w", err)
	}
	assignments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (RoleAssignment, error) {
		var ra RoleAssignment
		err := row.Scan(&ra.UserID, &ra.RoleID)
		return ra, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan role assignments: %w", err)
	}
	return assignments, nil
}

// HasCapability reports whether the user holds the capability.
// Site administrators hold every capability.
func (d *PostgresDirectory) HasCapability(ctx context.Context, userID, capability string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM dir_users WHERE id = $1 AND site_admin AND NOT deleted
		) OR EXISTS (
			SELECT 1 FROM dir_capabilities WHERE user_id = $1 AND capability = $2
		)
	`

	var ok bool
	if err := d.pool.QueryRow(ctx, query, userID, capability).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check capability: %w", err)
	}
	return ok, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.Deleted, &u.SiteAdmin, &u.LastAccess)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Ensure PostgresDirectory implements Directory.
var _ Directory = (*PostgresDirectory)(nil)
