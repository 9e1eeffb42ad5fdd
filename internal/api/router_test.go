package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privacyops/dsar/internal/api"
	"github.com/privacyops/dsar/internal/api/models"
	"github.com/privacyops/dsar/internal/auth"
	"github.com/privacyops/dsar/internal/datarequest"
	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/expiry"
	"github.com/privacyops/dsar/internal/metrics"
	"github.com/privacyops/dsar/internal/notify"
	"github.com/privacyops/dsar/internal/queue"
	"github.com/privacyops/dsar/internal/registry"
	"github.com/privacyops/dsar/internal/retention"
	"github.com/privacyops/dsar/internal/settings"
)

const testUserID = "42"

// testTokenService creates a token service for generating test tokens.
func testTokenService() *auth.TokenService {
	return auth.NewTokenService(auth.TokenConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "https://lms.example.org",
		Audience:   "dsar-api",
	})
}

type routerOptions struct {
	requireTLS bool
	gatherer   prometheus.Gatherer
}

func newTestRouter(opts ...func(*routerOptions)) http.Handler {
	var o routerOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger := zerolog.New(io.Discard)
	dir := directory.NewInMemoryDirectory()
	dir.AddUser(directory.User{ID: testUserID, FullName: "Alice Subject", Email: "alice@example.org"})

	st := settings.NewService(settings.ServiceConfig{
		Repository: settings.NewInMemoryRepository(),
		Logger:     logger,
	})
	registryRepo := registry.NewInMemoryRepository()

	return api.NewRouter(api.RouterConfig{
		Version:    "test",
		BuildTime:  "2026-01-01T00:00:00Z",
		Logger:     logger,
		RequireTLS: o.requireTLS,
		Gatherer:   o.gatherer,
		Tokens:     testTokenService(),
		DataRequests: datarequest.NewService(datarequest.ServiceConfig{
			Repository: datarequest.NewInMemoryRepository(),
			Directory:  dir,
			Settings:   st,
			Publisher:  queue.NewMemoryQueue(),
			Gateway:    notify.NewRecorder(),
			Logger:     logger,
		}),
		Registry: registry.NewService(registry.ServiceConfig{
			Repository: registryRepo,
			Directory:  dir,
			Settings:   st,
			Logger:     logger,
		}),
		Resolver:      retention.NewResolver(retention.Config{Directory: dir, Repository: registryRepo, Settings: st}),
		Directory:     dir,
		ExpiryRecords: expiry.NewInMemoryRepository(),
	})
}

// addAuthHeader adds a valid Bearer token to the request.
func addAuthHeader(t *testing.T, req *http.Request) {
	t.Helper()
	token, _, err := testTokenService().Issue(testUserID, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
}

func TestRouter_HealthCheck(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	var health models.Health
	err := json.Unmarshal(w.Body.Bytes(), &health)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_SystemStatusRequiresAuth(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
	addAuthHeader(t, req)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusOK, status.Status)
	assert.NotNil(t, status.Collaborators)
}

func TestRouter_ProtectedEndpointsRequireAuth(t *testing.T) {
	router := newTestRouter()

	endpoints := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/v1/data-requests"},
		{http.MethodPost, "/v1/data-requests"},
		{http.MethodGet, "/v1/data-requests/all"},
		{http.MethodGet, "/v1/data-requests/dr_1"},
		{http.MethodPost, "/v1/data-requests/dr_1/cancel"},
		{http.MethodPost, "/v1/data-requests/dr_1/approve"},
		{http.MethodPost, "/v1/dpo/contact"},
		{http.MethodGet, "/v1/dpo/users"},
		{http.MethodGet, "/v1/registry/purposes"},
		{http.MethodPost, "/v1/registry/expired-scopes:delete"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, http.NoBody)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
		})
	}
}

func TestRouter_CreateAndListDataRequests(t *testing.T) {
	router := newTestRouter()

	body, _ := json.Marshal(models.CreateDataRequestInput{Type: "export"})
	req := httptest.NewRequest(http.MethodPost, "/v1/data-requests", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(t, req)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.DataRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "/v1/data-requests/"+created.ID, w.Header().Get("Location"))
	assert.Equal(t, testUserID, created.SubjectID)

	req = httptest.NewRequest(http.MethodGet, "/v1/data-requests/"+created.ID, http.NoBody)
	addAuthHeader(t, req)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/data-requests", http.NoBody)
	addAuthHeader(t, req)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var list models.List[models.DataRequest]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, created.ID, list.Items[0].ID)
}

func TestRouter_CancelUnknownRequestWarns(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/v1/data-requests/dr_missing/cancel", http.NoBody)
	addAuthHeader(t, req)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out models.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.False(t, out.Result)
	require.Len(t, out.Warnings, 1)
	assert.Equal(t, "errorrequestnotfound", out.Warnings[0].WarningCode)
}

func TestRouter_RejectsNonJSONBodies(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/v1/data-requests", strings.NewReader("type=export"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	addAuthHeader(t, req)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestRouter_ValidationError(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/v1/data-requests", strings.NewReader(`{"type":"rectify"}`))
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(t, req)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	var problem models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.Equal(t, models.ProblemTypeValidation, problem.Type)
	assert.NotEmpty(t, problem.TraceID)
	assert.Equal(t, "/v1/data-requests", problem.Instance)
}

func TestRouter_ContactRateLimited(t *testing.T) {
	router := newTestRouter()

	var last int
	for i := 0; i < 11; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/dpo/contact", strings.NewReader(`{"message":"hello"}`))
		req.Header.Set("Content-Type", "application/json")
		addAuthHeader(t, req)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		last = w.Code
		if i < 10 {
			assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		}
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestRouter_RequireTLS(t *testing.T) {
	router := newTestRouter(func(o *routerOptions) { o.requireTLS = true })

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("X-Forwarded-Proto", "http")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.IncrementTransition("pending", "create")
	router := newTestRouter(func(o *routerOptions) { o.gatherer = reg })

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dsar_")

	w = httptest.NewRecorder()
	newTestRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/nonexistent", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
