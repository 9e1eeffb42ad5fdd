package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privacyops/dsar/internal/app"
	"github.com/privacyops/dsar/internal/auth"
	"github.com/privacyops/dsar/internal/config"
	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/expiry"
	"github.com/privacyops/dsar/internal/registry"
)

const (
	officer    = "usr_dpo"
	subject    = "42"
	signingKey = "test-secret-key-for-testing-only"
)

type harness struct {
	app *app.App
	cfg config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	dir := directory.NewInMemoryDirectory()
	dir.AddUser(directory.User{ID: officer, FullName: "Dana Officer"})
	dir.AddUser(directory.User{ID: subject, FullName: "Alice Subject"})
	dir.Grant(officer, directory.CapabilityManageDataRegistry)
	dir.AddScope("sys", directory.LevelSystem, "", "")
	dir.AddScope("cat1", directory.LevelCourseCategory, "sys", "cat1")
	dir.AddScope("crs1", directory.LevelCourse, "cat1", "crs1")
	ended := time.Now().AddDate(-3, 0, 0)
	dir.SetEndDate("crs1", &ended)

	cfg := config.Config{
		SystemActorID: officer,
		JWTSigningKey: signingKey,
		JWTIssuer:     "dsar",
		JWTAudience:   "dsar-api",
		Queue:         config.QueueConfig{Backend: config.QueueBackendMemory},
	}
	a := app.Assemble(cfg, app.MemoryStores(dir), app.Options{Logger: zerolog.Nop()})

	p, err := a.Registry.CreatePurpose(ctx, officer, registry.PurposeInput{Name: "Teaching", Retention: "P1Y"})
	require.NoError(t, err)
	c, err := a.Registry.CreateCategory(ctx, officer, registry.CategoryInput{Name: "Coursework"})
	require.NoError(t, err)
	require.NoError(t, a.Registry.SetSystemDefaults(ctx, officer, p.ID, c.ID))

	return &harness{app: a, cfg: cfg}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rt := &session{
		v: viper.New(),
		open: func(context.Context, config.Config, zerolog.Logger) (*app.App, error) {
			return h.app, nil
		},
		config: func(...string) config.Config { return h.cfg },
	}
	cmd := newRootCommand(rt)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Operate the data subject request service")
	for _, sub := range []string{"scan", "purge", "resolve", "requeue", "token", "version"} {
		assert.Contains(t, out, sub)
	}

	_, err = h.run(t, "invalid-command")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: dev")

	out, err = h.run(t, "version", "-o", "json")
	require.NoError(t, err)
	var info VersionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)

	_, err = h.run(t, "version", "-o", "yaml")
	assert.ErrorIs(t, err, ErrUsage)
}

func TestScan(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "scan")
	require.NoError(t, err)
	assert.Contains(t, out, "crs1")
	assert.Contains(t, out, "1 expired scope(s)")

	out, err = h.run(t, "scan", "-o", "json", "--strategy", expiry.StrategyMembership)
	require.NoError(t, err)
	var rows []scanRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "crs1", rows[0].ScopeID)
	assert.Equal(t, expiry.StrategyMembership, rows[0].Strategy)
	assert.Equal(t, "Teaching", rows[0].Purpose)
	assert.Equal(t, "P1Y", rows[0].Retention)
	assert.Equal(t, "system", rows[0].Source)

	out, err = h.run(t, "scan", "-o", "json", "--strategy", expiry.StrategyInactivity)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)

	_, err = h.run(t, "scan", "--strategy", "moon-phase")
	assert.ErrorIs(t, err, ErrUsage)
}

func TestScan_IsReadOnly(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "scan")
	require.NoError(t, err)

	_, err = h.app.ExpiryRecords.Get(context.Background(), "crs1")
	assert.ErrorIs(t, err, expiry.ErrRecordNotFound)
}

func TestPurge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.run(t, "purge")
	require.ErrorIs(t, err, ErrUsage)

	out, err := h.run(t, "purge", "--confirm", "-o", "json")
	require.NoError(t, err)
	var results []expiry.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Deleted)
	assert.Equal(t, 0, results[1].Deleted)

	rec, err := h.app.ExpiryRecords.Get(ctx, "crs1")
	require.NoError(t, err)
	assert.Equal(t, expiry.StatusCleaned, rec.Status)

	out, err = h.run(t, "scan")
	require.NoError(t, err)
	assert.Contains(t, out, "0 expired scope(s)")
}

func TestPurge_RequiresCapability(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "purge", "--confirm", "--actor", subject)
	require.ErrorIs(t, err, ErrRuntime)
	assert.ErrorContains(t, err, directory.ErrPermissionDenied.Error())
}

func TestResolve(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "resolve", "crs1", "-o", "json")
	require.NoError(t, err)
	var v policyView
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "crs1", v.ScopeID)
	assert.Equal(t, "Teaching", v.Purpose)
	assert.Equal(t, "P1Y", v.Retention)
	assert.Equal(t, "system", v.PurposeSource)
	assert.Equal(t, "Coursework", v.Category)

	out, err = h.run(t, "resolve", "crs1", "--preview", "-o", "json")
	require.NoError(t, err)
	var views []policyView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "inherit", views[0].Option)

	out, err = h.run(t, "resolve", "crs1")
	require.NoError(t, err)
	assert.Contains(t, out, "Teaching")

	_, err = h.run(t, "resolve", "nowhere")
	assert.ErrorIs(t, err, ErrRuntime)

	_, err = h.run(t, "resolve")
	assert.Error(t, err)

	_, err = h.run(t, "resolve", "crs1", "--preview", "--purpose", "x")
	assert.Error(t, err)
}

func TestRequeue_RejectsMemoryQueue(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "requeue", "dr_1")
	assert.ErrorIs(t, err, ErrConfig)
}

func TestToken(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "token", subject, "-o", "json", "--ttl", "5m")
	require.NoError(t, err)
	var tv tokenView
	require.NoError(t, json.Unmarshal([]byte(out), &tv))
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), tv.ExpiresAt, time.Minute)

	tokens := auth.NewTokenService(auth.TokenConfig{SigningKey: signingKey, Issuer: "dsar", Audience: "dsar-api"})
	userID, err := tokens.Validate(tv.Token)
	require.NoError(t, err)
	assert.Equal(t, subject, userID)

	h.cfg.JWTSigningKey = ""
	_, err = h.run(t, "token", subject)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{ErrUsage, 2},
		{ErrConfig, 3},
		{ErrRuntime, 1},
		{errors.New("unknown command"), 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(tt.err))
	}
}
