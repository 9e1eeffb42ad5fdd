package expiry_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/expiry"
	"github.com/privacyops/dsar/internal/metrics"
	"github.com/privacyops/dsar/internal/registry"
	"github.com/privacyops/dsar/internal/retention"
	"github.com/privacyops/dsar/internal/settings"
)

const admin = "usr_registry_admin"

var now = time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

type fixture struct {
	dir      *directory.InMemoryDirectory
	repo     *registry.InMemoryRepository
	settings *settings.Service
	records  *expiry.InMemoryRepository
	resolver *retention.Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	dir := directory.NewInMemoryDirectory()
	dir.AddScope("sys", directory.LevelSystem, "", "")
	dir.AddScope("cat1", directory.LevelCourseCategory, "sys", "cat1")
	dir.AddUser(directory.User{ID: admin, FullName: "Registry Admin"})
	dir.Grant(admin, directory.CapabilityManageDataRegistry)

	repo := registry.NewInMemoryRepository()
	for _, p := range []*registry.Purpose{
		{ID: "P1Y", Name: "One year", Retention: registry.MustParseRetention("P1Y"), CreatedAt: now},
		{ID: "P5Y", Name: "Five years", Retention: registry.MustParseRetention("P5Y"), CreatedAt: now},
	} {
		require.NoError(t, repo.CreatePurpose(ctx, p))
	}
	require.NoError(t, repo.CreateCategory(ctx, &registry.Category{ID: "C1", Name: "General"}))

	st := settings.NewService(settings.ServiceConfig{
		Repository: settings.NewInMemoryRepository(),
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, st.SetSystemDefaults(ctx, settings.SystemDefaults{PurposeID: "P1Y", CategoryID: "C1"}))

	return &fixture{
		dir:      dir,
		repo:     repo,
		settings: st,
		records:  expiry.NewInMemoryRepository(),
		resolver: retention.NewResolver(retention.Config{Directory: dir, Repository: repo, Settings: st}),
	}
}

func (f *fixture) addCourse(id string, end time.Time) {
	f.dir.AddScope(id, directory.LevelCourse, "cat1", id)
	f.dir.SetEndDate(id, &end)
}

func (f *fixture) scanner(dir directory.Directory, strategy expiry.Strategy) *expiry.Scanner {
	return expiry.NewScanner(expiry.ScannerConfig{
		Strategy: strategy,
		Resolver: retention.NewResolver(retention.Config{Directory: dir, Repository: f.repo, Settings: f.settings}),
		Records:  f.records,
		Logger:   zerolog.Nop(),
		Now:      clock,
	})
}

func scanIDs(t *testing.T, s *expiry.Scanner) []string {
	t.Helper()
	var ids []string
	for rs, err := range s.Scan(context.Background()) {
		require.NoError(t, err)
		ids = append(ids, rs.Scope.ID)
	}
	return ids
}

type stubDefaults bool

func (d stubDefaults) DefaultsSet(context.Context) (bool, error) { return bool(d), nil }

type recordingPurger struct {
	mu     sync.Mutex
	purged []string
	fail   map[string]bool
}

func (p *recordingPurger) PurgeScope(_ context.Context, scope directory.Scope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[scope.ID] {
		return errors.New("storage unavailable")
	}
	p.purged = append(p.purged, scope.ID)
	return nil
}

func TestScanner_MembershipStrategy(t *testing.T) {
	f := newFixture(t)
	f.addCourse("old", now.AddDate(-2, 0, 0))
	f.dir.AddScope("old-quiz", directory.LevelModule, "old", "q1")
	f.addCourse("recent", now.AddDate(0, -6, 0))
	f.addCourse("running", now.AddDate(1, 0, 0))

	ids := scanIDs(t, f.scanner(f.dir, expiry.MembershipStrategy(f.dir)))
	assert.Equal(t, []string{"old", "old-quiz"}, ids)
}

func TestScanner_BoundaryIsInclusive(t *testing.T) {
	f := newFixture(t)
	f.addCourse("exact", now.AddDate(-1, 0, 0))
	f.addCourse("almost", now.AddDate(-1, 0, 0).Add(time.Second))

	ids := scanIDs(t, f.scanner(f.dir, expiry.MembershipStrategy(f.dir)))
	assert.Equal(t, []string{"exact"}, ids)
}

func TestScanner_UsesScopeRetention(t *testing.T) {
	f := newFixture(t)
	f.addCourse("kept", now.AddDate(-2, 0, 0))
	require.NoError(t, f.repo.UpsertScopeBinding(context.Background(), &registry.ScopeBinding{
		ScopeID:   "kept",
		PurposeID: ptr("P5Y"),
	}))

	ids := scanIDs(t, f.scanner(f.dir, expiry.MembershipStrategy(f.dir)))
	assert.Empty(t, ids)
}

func TestScanner_SkipsCleanedScopes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addCourse("done", now.AddDate(-3, 0, 0))
	f.addCourse("todo", now.AddDate(-3, 0, 0))

	_, err := f.records.MarkExpired(ctx, "done")
	require.NoError(t, err)
	require.NoError(t, f.records.SetStatus(ctx, "done", expiry.StatusCleaned))

	_, err = f.records.MarkExpired(ctx, "todo")
	require.NoError(t, err)

	ids := scanIDs(t, f.scanner(f.dir, expiry.MembershipStrategy(f.dir)))
	assert.Equal(t, []string{"todo"}, ids, "scopes stuck before cleaning are retried")
}

type vanishingDirectory struct {
	directory.Directory
	gone string
}

func (d *vanishingDirectory) ResolveScope(ctx context.Context, id string) (*directory.Scope, error) {
	if id == d.gone {
		return nil, directory.ErrScopeNotFound
	}
	return d.Directory.ResolveScope(ctx, id)
}

func TestScanner_SkipsScopesDeletedMidScan(t *testing.T) {
	f := newFixture(t)
	f.dir.AddScope("cat2", directory.LevelCourseCategory, "sys", "cat2")
	f.dir.AddScope("crs2", directory.LevelCourse, "cat2", "crs2")
	f.dir.SetEndDate("crs2", ptrTime(now.AddDate(-3, 0, 0)))
	f.addCourse("crs1", now.AddDate(-3, 0, 0))

	dir := &vanishingDirectory{Directory: f.dir, gone: "cat2"}
	ids := scanIDs(t, f.scanner(dir, expiry.MembershipStrategy(dir)))
	assert.Equal(t, []string{"crs1"}, ids)
}

func TestScanner_InactivityStrategy(t *testing.T) {
	f := newFixture(t)
	longAgo := now.AddDate(-3, 0, 0)
	lastWeek := now.AddDate(0, 0, -7)

	f.dir.AddUser(directory.User{ID: "gone", LastAccess: &longAgo})
	f.dir.AddScope("u-gone", directory.LevelUser, "sys", "gone")

	f.dir.AddUser(directory.User{ID: "active", LastAccess: &lastWeek})
	f.dir.AddScope("u-active", directory.LevelUser, "sys", "active")

	// Enrolled in a course without end date.
	f.dir.AddUser(directory.User{ID: "enrolled", LastAccess: &longAgo})
	f.dir.AddScope("u-enrolled", directory.LevelUser, "sys", "enrolled")
	f.dir.AddScope("open", directory.LevelCourse, "cat1", "open")
	f.dir.Enrol("enrolled", "open")

	// Only enrolled in a course that has ended.
	f.dir.AddUser(directory.User{ID: "alumni", LastAccess: &longAgo})
	f.dir.AddScope("u-alumni", directory.LevelUser, "sys", "alumni")
	f.addCourse("closed", now.AddDate(-2, 0, 0))
	f.dir.Enrol("alumni", "closed")

	ids := scanIDs(t, f.scanner(f.dir, expiry.InactivityStrategy(f.dir)))
	assert.ElementsMatch(t, []string{"u-gone", "u-alumni"}, ids)
}

func TestScanner_InactivityUsesUserLevelRetention(t *testing.T) {
	f := newFixture(t)
	twoYears := now.AddDate(-2, 0, 0)
	f.dir.AddUser(directory.User{ID: "gone", LastAccess: &twoYears})
	f.dir.AddScope("u-gone", directory.LevelUser, "sys", "gone")

	require.NoError(t, f.repo.UpsertLevelBinding(context.Background(), &registry.LevelBinding{
		Level:     directory.LevelUser,
		PurposeID: ptr("P5Y"),
	}))

	ids := scanIDs(t, f.scanner(f.dir, expiry.InactivityStrategy(f.dir)))
	assert.Empty(t, ids)
}

func (f *fixture) deleter(purger expiry.Purger, defaults expiry.DefaultsChecker, m *metrics.Metrics) *expiry.Deleter {
	return expiry.NewDeleter(expiry.DeleterConfig{
		Scanner:   f.scanner(f.dir, expiry.MembershipStrategy(f.dir)),
		Directory: f.dir,
		Defaults:  defaults,
		Purger:    purger,
		Records:   f.records,
		Metrics:   m,
		Logger:    zerolog.Nop(),
	})
}

// countingDirectory records how far each candidate stream was consumed.
type countingDirectory struct {
	directory.Directory
	pulled  int
	stopped bool
}

func (d *countingDirectory) StreamCandidates(ctx context.Context, q directory.CandidateQuery) iter.Seq2[directory.Candidate, error] {
	d.pulled, d.stopped = 0, false
	inner := d.Directory.StreamCandidates(ctx, q)
	return func(yield func(directory.Candidate, error) bool) {
		for c, err := range inner {
			d.pulled++
			if !yield(c, err) {
				d.stopped = true
				return
			}
		}
	}
}

func TestDeleter_StopsAtLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addCourse("crs", now.AddDate(-3, 0, 0))
	for i := range 249 {
		f.dir.AddScope(fmt.Sprintf("mod%03d", i), directory.LevelModule, "crs", "")
	}

	dir := &countingDirectory{Directory: f.dir}
	purger := &recordingPurger{}
	d := expiry.NewDeleter(expiry.DeleterConfig{
		Scanner:   f.scanner(dir, expiry.MembershipStrategy(dir)),
		Directory: f.dir,
		Defaults:  stubDefaults(true),
		Purger:    purger,
		Records:   f.records,
		Logger:    zerolog.Nop(),
	})

	res, err := d.Delete(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, expiry.DefaultDeleteLimit, res.Deleted)
	assert.Len(t, purger.purged, expiry.DefaultDeleteLimit)
	assert.True(t, dir.stopped, "the candidate stream is closed once the limit is hit")
	assert.LessOrEqual(t, dir.pulled, expiry.DefaultDeleteLimit+1)

	res, err = d.Delete(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 50, res.Deleted)
	assert.False(t, dir.stopped, "a run below the limit drains the stream")

	cleaned := expiry.StatusCleaned
	records, err := f.records.List(ctx, expiry.ListOptions{Status: &cleaned})
	require.NoError(t, err)
	assert.Len(t, records, 250)
}

func TestDeleter_ContinuesAfterPurgeFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addCourse("a", now.AddDate(-3, 0, 0))
	f.addCourse("b", now.AddDate(-3, 0, 0))
	f.addCourse("c", now.AddDate(-3, 0, 0))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	purger := &recordingPurger{fail: map[string]bool{"b": true}}

	res, err := f.deleter(purger, stubDefaults(true), m).Delete(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "b", res.Failures[0].ScopeID)
	assert.Equal(t, []string{"a", "c"}, purger.purged)

	rec, err := f.records.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, expiry.StatusApprovedForDeletion, rec.Status)
}

func TestDeleter_Gates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addCourse("a", now.AddDate(-3, 0, 0))

	purger := &recordingPurger{}

	_, err := f.deleter(purger, stubDefaults(true), nil).Delete(ctx, "usr_nobody")
	assert.ErrorIs(t, err, directory.ErrPermissionDenied)

	res, err := f.deleter(purger, stubDefaults(false), nil).Delete(ctx, admin)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, res.Processed())
	assert.Empty(t, purger.purged)
}

func TestInMemoryRepository_MarkExpiredKeepsExistingRecord(t *testing.T) {
	repo := expiry.NewInMemoryRepository()
	ctx := context.Background()

	_, err := repo.MarkExpired(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, repo.SetStatus(ctx, "s1", expiry.StatusCleaned))

	rec, err := repo.MarkExpired(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, expiry.StatusCleaned, rec.Status)

	assert.ErrorIs(t, repo.SetStatus(ctx, "nope", expiry.StatusCleaned), expiry.ErrRecordNotFound)
}

func ptr(s string) *string { return &s }

func ptrTime(t time.Time) *time.Time { return &t }
