package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privacyops/dsar/internal/api/handler"
	"github.com/privacyops/dsar/internal/api/models"
	"github.com/privacyops/dsar/internal/resilience"
)

func okCheck(name string) handler.Check {
	return handler.Check{Name: name, Ping: func(context.Context) error { return nil }}
}

func failingCheck(name string) handler.Check {
	return handler.Check{Name: name, Ping: func(context.Context) error { return errors.New("connection refused") }}
}

func serveOps(h http.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody))
	return rec
}

func TestOpsHandler_HealthCheck(t *testing.T) {
	h := handler.NewOpsHandler("1.2.3", "2026-10-01T00:00:00Z", nil)

	rec := serveOps(h.HealthCheck)

	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[models.Health](t, rec)
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "1.2.3", health.Details["version"])
}

func TestOpsHandler_ReadinessCheck(t *testing.T) {
	h := handler.NewOpsHandler("dev", "", nil, okCheck("postgres"), okCheck("redis"))
	assert.Equal(t, http.StatusOK, serveOps(h.ReadinessCheck).Code)

	h = handler.NewOpsHandler("dev", "", nil, okCheck("postgres"), failingCheck("redis"))
	rec := serveOps(h.ReadinessCheck)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	health := decode[models.Health](t, rec)
	assert.Equal(t, models.HealthStatusFail, health.Status)
	assert.Equal(t, "connection refused", health.Details["redis"])
}

func TestOpsHandler_SystemStatus(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("notify")
	cfg.Registry = registry
	resilience.NewClient(cfg)
	registry.RecordFailure("notify", errors.New("HTTP 502"))

	h := handler.NewOpsHandler("dev", "", registry, okCheck("postgres"))
	rec := serveOps(h.SystemStatus)

	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[models.SystemStatus](t, rec)
	assert.Equal(t, models.HealthStatusOK, status.Status)
	require.Len(t, status.Subsystems, 1)
	require.Len(t, status.Collaborators, 1)

	c := status.Collaborators[0]
	assert.Equal(t, "notify", c.Name)
	assert.Equal(t, "closed", c.BreakerState)
	require.NotNil(t, c.LastFailureAt)
	assert.WithinDuration(t, time.Now(), c.LastFailureAt.Time(), 5*time.Second)
	require.NotNil(t, c.Message)
	assert.Equal(t, "HTTP 502", *c.Message)
}

func TestOpsHandler_SystemStatusFailsOnSubsystem(t *testing.T) {
	h := handler.NewOpsHandler("dev", "", nil, failingCheck("postgres"))

	status := decode[models.SystemStatus](t, serveOps(h.SystemStatus))

	assert.Equal(t, models.HealthStatusFail, status.Status)
	assert.Empty(t, status.Collaborators)
	require.NotNil(t, status.Subsystems[0].Detail)
}
