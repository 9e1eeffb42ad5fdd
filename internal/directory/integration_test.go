//go:build integration

package directory_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/testutil"
)

func TestPostgresDirectory(t *testing.T) {
	pool := testutil.NewPostgresPool(t, directory.PostgresSchema)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	_, err := pool.Exec(ctx, `
		INSERT INTO dir_scopes (id, level, path, instance_id, end_date) VALUES
			('sys',  10, '/sys', '', NULL),
			('crs1', 50, '/sys/crs1', 'c1', $1),
			('mod1', 70, '/sys/crs1/mod1', 'm1', NULL),
			('crs2', 50, '/sys/crs2', 'c2', NULL),
			('usr1', 30, '/sys/usr1', 'alice', NULL)
	`, now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		INSERT INTO dir_users (id, full_name, email, site_admin, last_access) VALUES
			('alice', 'Alice Adams', 'alice@example.com', FALSE, $1),
			('root', 'Admin User', 'admin@example.com', TRUE, NULL)
	`, now.AddDate(-3, 0, 0))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO dir_role_assignments (user_id, role_id) VALUES ('alice', 'dpo')`)
	require.NoError(t, err)

	dir := directory.NewPostgresDirectory(pool)

	t.Run("resolve scope", func(t *testing.T) {
		s, err := dir.ResolveScope(ctx, "mod1")
		require.NoError(t, err)
		assert.Equal(t, directory.LevelModule, s.Level)
		assert.Equal(t, []string{"sys", "crs1"}, s.ParentIDs)

		_, err = dir.ResolveScope(ctx, "nope")
		assert.ErrorIs(t, err, directory.ErrScopeNotFound)
	})

	t.Run("ended memberships", func(t *testing.T) {
		var ids []string
		for c, err := range dir.StreamCandidates(ctx, directory.CandidateQuery{Kind: directory.EndedMemberships, Now: now}) {
			require.NoError(t, err)
			assert.True(t, c.ComparisonTime.Equal(now.Add(-time.Hour)))
			ids = append(ids, c.Scope.ID)
		}
		assert.Equal(t, []string{"crs1", "mod1"}, ids)
	})

	t.Run("inactive users", func(t *testing.T) {
		var ids []string
		q := directory.CandidateQuery{Kind: directory.InactiveUsers, Now: now, Before: now.AddDate(-1, 0, 0)}
		for c, err := range dir.StreamCandidates(ctx, q) {
			require.NoError(t, err)
			ids = append(ids, c.Scope.ID)
		}
		assert.Equal(t, []string{"usr1"}, ids)
	})

	t.Run("users and roles", func(t *testing.T) {
		admins, err := dir.ListSiteAdmins(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"root"}, admins)

		assignments, err := dir.ListRoleAssignments(ctx, []string{"dpo"})
		require.NoError(t, err)
		assert.Equal(t, []directory.RoleAssignment{{UserID: "alice", RoleID: "dpo"}}, assignments)

		users, err := dir.SearchUsers(ctx, "adams", []string{"root"}, 30)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, "alice", users[0].ID)

		ok, err := dir.HasCapability(ctx, "root", directory.CapabilityManageDataRegistry)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestCachedDirectory(t *testing.T) {
	client := testutil.NewRedisClient(t)
	ctx := context.Background()

	inner := directory.NewInMemoryDirectory()
	inner.AddScope("sys", directory.LevelSystem, "", "")
	inner.AddScope("crs1", directory.LevelCourse, "sys", "c1")

	cached := directory.NewCachedDirectory(inner, client, time.Minute, zerolog.Nop())

	s, err := cached.ResolveScope(ctx, "crs1")
	require.NoError(t, err)
	assert.Equal(t, "/sys/crs1", s.Path)

	exists, err := client.Exists(ctx, "dsar:scope:crs1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	// Served from cache even though the backing directory changed.
	inner.AddScope("crs1", directory.LevelCourse, "", "c1")
	s, err = cached.ResolveScope(ctx, "crs1")
	require.NoError(t, err)
	assert.Equal(t, "/sys/crs1", s.Path)

	require.NoError(t, cached.Invalidate(ctx, "crs1"))
	s, err = cached.ResolveScope(ctx, "crs1")
	require.NoError(t, err)
	assert.Equal(t, "/crs1", s.Path)

	_, err = cached.ResolveScope(ctx, "missing")
	assert.ErrorIs(t, err, directory.ErrScopeNotFound)
}
