package settings_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privacyops/dsar/internal/settings"
)

func newService(repo settings.Repository) *settings.Service {
	return settings.NewService(settings.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
		CacheTTL:   time.Minute,
	})
}

func TestService_Defaults(t *testing.T) {
	svc := newService(settings.NewInMemoryRepository())
	ctx := context.Background()

	assert.True(t, svc.ContactDPOEnabled(ctx))
	assert.Empty(t, svc.DPORoleIDs(ctx))
	assert.False(t, svc.SystemDefaults(ctx).Complete())
	assert.Nil(t, svc.Get(ctx, "unknown"))
}

func TestService_SetAndGet(t *testing.T) {
	repo := settings.NewInMemoryRepository()
	svc := newService(repo)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx,
		&settings.Setting{Key: settings.KeyContactDPOEnabled, Value: false},
		&settings.Setting{Key: settings.KeyDPORoleIDs, Value: []any{"manager", "dpo"}},
	))

	assert.False(t, svc.ContactDPOEnabled(ctx))
	assert.Equal(t, []string{"manager", "dpo"}, svc.DPORoleIDs(ctx))

	stored, err := repo.Get(ctx, settings.KeyContactDPOEnabled)
	require.NoError(t, err)
	assert.False(t, stored.BoolValue(true))
}

func TestService_SystemDefaults(t *testing.T) {
	svc := newService(settings.NewInMemoryRepository())
	ctx := context.Background()

	require.NoError(t, svc.SetSystemDefaults(ctx, settings.SystemDefaults{PurposeID: "pur_1", CategoryID: "cat_1"}))

	d := svc.SystemDefaults(ctx)
	assert.True(t, d.Complete())
	assert.Equal(t, "pur_1", d.PurposeID)
	assert.Equal(t, "cat_1", d.CategoryID)
}

func TestService_FallsBackWhenRepositoryFails(t *testing.T) {
	repo := settings.NewInMemoryRepository()
	svc := newService(repo)
	ctx := context.Background()

	repo.FailWith(errors.New("connection refused"))

	assert.True(t, svc.ContactDPOEnabled(ctx), "default applies when storage is down")

	all := svc.All(ctx)
	assert.Contains(t, all, settings.KeyContactDPOEnabled)
	assert.Contains(t, all, settings.KeyDPORoleIDs)
}

func TestService_CacheServesWithinTTL(t *testing.T) {
	repo := settings.NewInMemoryRepository()
	svc := newService(repo)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, &settings.Setting{Key: settings.KeyDefaultPurposeID, Value: "pur_1"}))

	// Write behind the service's back; the cached value wins until invalidated.
	require.NoError(t, repo.Set(ctx, &settings.Setting{Key: settings.KeyDefaultPurposeID, Value: "pur_2"}))
	assert.Equal(t, "pur_1", svc.SystemDefaults(ctx).PurposeID)

	svc.InvalidateCache()
	assert.Equal(t, "pur_2", svc.SystemDefaults(ctx).PurposeID)
}

func TestSetting_Values(t *testing.T) {
	tests := []struct {
		name    string
		setting *settings.Setting
		wantB   bool
		wantS   string
		wantSS  []string
	}{
		{name: "nil setting", setting: nil, wantB: true, wantS: "fallback"},
		{name: "bool", setting: &settings.Setting{Value: false}, wantB: false, wantS: "fallback"},
		{name: "json number", setting: &settings.Setting{Value: float64(1)}, wantB: true, wantS: "fallback"},
		{name: "string", setting: &settings.Setting{Value: "pur_1"}, wantB: true, wantS: "pur_1"},
		{name: "json array", setting: &settings.Setting{Value: []any{"a", 2.0, "b"}}, wantB: true, wantS: "fallback", wantSS: []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantB, tt.setting.BoolValue(true))
			assert.Equal(t, tt.wantS, tt.setting.StringValue("fallback"))
			assert.Equal(t, tt.wantSS, tt.setting.StringsValue())
		})
	}
}
