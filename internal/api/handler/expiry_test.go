package handler_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privacyops/dsar/internal/api/models"
)

func TestExpiryHandler_DeleteSkipsWithoutDefaults(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/registry/expired-scopes:delete", officer, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[models.ExpiryRunResult](t, rec)
	require.Len(t, result.Runs, 1)
	assert.True(t, result.Runs[0].Skipped)
	assert.Zero(t, result.Runs[0].Deleted)
	assert.Empty(t, env.purger.purged)
}

func TestExpiryHandler_DeleteAndList(t *testing.T) {
	env := newTestEnv(t)
	env.setDefaults(t)

	rec := env.do(t, http.MethodPost, "/v1/registry/expired-scopes:delete", officer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[models.ExpiryRunResult](t, rec)
	require.Len(t, result.Runs, 1)
	assert.False(t, result.Runs[0].Skipped)
	assert.Equal(t, 1, result.Runs[0].Deleted)
	assert.NotNil(t, result.Runs[0].Failures)
	assert.Equal(t, []string{"crs1"}, env.purger.purged)

	rec = env.do(t, http.MethodGet, "/v1/registry/expired-scopes?status=cleaned", officer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decode[models.List[models.ExpiredScope]](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "crs1", list.Items[0].ScopeID)
	assert.Equal(t, "cleaned", list.Items[0].Status)

	rec = env.do(t, http.MethodGet, "/v1/registry/expired-scopes?status=expired", officer, nil)
	assert.Empty(t, decode[models.List[models.ExpiredScope]](t, rec).Items)
}

func TestExpiryHandler_Errors(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, "/v1/registry/expired-scopes:delete", subject, nil).Code)

	for _, query := range []string{"status=gone", "limit=0", "limit=5000", "limit=ten"} {
		t.Run(query, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/v1/registry/expired-scopes?"+query, officer, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
