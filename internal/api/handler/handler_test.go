package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/privacyops/dsar/internal/api/handler"
	"github.com/privacyops/dsar/internal/api/middleware"
	"github.com/privacyops/dsar/internal/datarequest"
	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/expiry"
	"github.com/privacyops/dsar/internal/notify"
	"github.com/privacyops/dsar/internal/queue"
	"github.com/privacyops/dsar/internal/registry"
	"github.com/privacyops/dsar/internal/retention"
	"github.com/privacyops/dsar/internal/settings"
)

const (
	subject = "42"
	other   = "99"
	officer = "usr_dpo"
	admin   = "usr_admin"
)

type recordingPurger struct {
	mu     sync.Mutex
	purged []string
}

func (p *recordingPurger) PurgeScope(_ context.Context, scope directory.Scope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purged = append(p.purged, scope.ID)
	return nil
}

type testEnv struct {
	dir      *directory.InMemoryDirectory
	settings *settings.Service
	requests *datarequest.InMemoryRepository
	queue    *queue.MemoryQueue
	gateway  *notify.Recorder
	registry *registry.Service
	records  *expiry.InMemoryRepository
	purger   *recordingPurger
	router   chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	dir := directory.NewInMemoryDirectory()
	dir.AddUser(directory.User{ID: subject, FullName: "Alice Subject", Email: "alice@example.org"})
	dir.AddUser(directory.User{ID: other, FullName: "Bob Other", Email: "bob@example.org"})
	dir.AddUser(directory.User{ID: officer, FullName: "Dana Officer", Email: "dana@example.org"})
	dir.AddUser(directory.User{ID: admin, FullName: "Site Admin", SiteAdmin: true})
	dir.AssignRole(officer, "dpo")
	dir.Grant(officer,
		directory.CapabilityManageDataRequests,
		directory.CapabilityRequestForOthers,
		directory.CapabilityManageDataRegistry,
	)

	dir.AddScope("sys", directory.LevelSystem, "", "")
	dir.AddScope("cat1", directory.LevelCourseCategory, "sys", "cat1")
	dir.AddScope("crs1", directory.LevelCourse, "cat1", "crs1")
	ended := time.Now().AddDate(-3, 0, 0)
	dir.SetEndDate("crs1", &ended)

	st := settings.NewService(settings.ServiceConfig{
		Repository: settings.NewInMemoryRepository(),
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, st.Set(ctx, &settings.Setting{
		Key: settings.KeyDPORoleIDs, Value: []string{"dpo"}, UpdatedAt: time.Now(),
	}))

	env := &testEnv{
		dir:      dir,
		settings: st,
		requests: datarequest.NewInMemoryRepository(),
		queue:    queue.NewMemoryQueue(),
		gateway:  notify.NewRecorder(),
		records:  expiry.NewInMemoryRepository(),
		purger:   &recordingPurger{},
	}

	requests := datarequest.NewService(datarequest.ServiceConfig{
		Repository: env.requests,
		Directory:  dir,
		Settings:   st,
		Publisher:  env.queue,
		Gateway:    env.gateway,
		Logger:     zerolog.Nop(),
		SiteName:   "Example Campus",
	})

	registryRepo := registry.NewInMemoryRepository()
	env.registry = registry.NewService(registry.ServiceConfig{
		Repository: registryRepo,
		Directory:  dir,
		Settings:   st,
		Logger:     zerolog.Nop(),
	})
	resolver := retention.NewResolver(retention.Config{Directory: dir, Repository: registryRepo, Settings: st})

	deleter := expiry.NewDeleter(expiry.DeleterConfig{
		Scanner: expiry.NewScanner(expiry.ScannerConfig{
			Strategy: expiry.MembershipStrategy(dir),
			Resolver: resolver,
			Records:  env.records,
			Logger:   zerolog.Nop(),
		}),
		Directory: dir,
		Defaults:  env.registry,
		Purger:    env.purger,
		Records:   env.records,
		Logger:    zerolog.Nop(),
	})

	dr := handler.NewDataRequestHandler(requests, zerolog.Nop())
	dpo := handler.NewDPOHandler(requests, zerolog.Nop())
	reg := handler.NewRegistryHandler(handler.RegistryHandlerConfig{
		Registry:  env.registry,
		Resolver:  resolver,
		Directory: dir,
		Logger:    zerolog.Nop(),
	})
	exp := handler.NewExpiryHandler(handler.ExpiryHandlerConfig{
		Deleters:  []*expiry.Deleter{deleter},
		Records:   env.records,
		Directory: dir,
		Logger:    zerolog.Nop(),
	})

	r := chi.NewRouter()
	r.Route("/v1/data-requests", func(r chi.Router) {
		r.Get("/", dr.List)
		r.Post("/", dr.Create)
		r.Get("/all", dr.ListAll)
		r.Get("/ongoing", dr.Ongoing)
		r.Get("/{requestId}", dr.Get)
		r.Post("/{requestId}/cancel", dr.Cancel)
		r.Post("/{requestId}/approve", dr.Approve)
		r.Post("/{requestId}/deny", dr.Deny)
	})
	r.Post("/v1/dpo/contact", dpo.Contact)
	r.Get("/v1/dpo/users", dpo.Users)
	r.Route("/v1/registry", func(r chi.Router) {
		r.Get("/purposes", reg.ListPurposes)
		r.Post("/purposes", reg.CreatePurpose)
		r.Get("/purposes/{purposeId}", reg.GetPurpose)
		r.Put("/purposes/{purposeId}", reg.UpdatePurpose)
		r.Delete("/purposes/{purposeId}", reg.DeletePurpose)
		r.Get("/categories", reg.ListCategories)
		r.Post("/categories", reg.CreateCategory)
		r.Get("/categories/{categoryId}", reg.GetCategory)
		r.Put("/categories/{categoryId}", reg.UpdateCategory)
		r.Delete("/categories/{categoryId}", reg.DeleteCategory)
		r.Get("/levels", reg.ListLevels)
		r.Get("/levels/{level}", reg.GetLevel)
		r.Put("/levels/{level}", reg.SetLevel)
		r.Get("/scopes/{scopeId}", reg.GetScope)
		r.Put("/scopes/{scopeId}", reg.SetScope)
		r.Delete("/scopes/{scopeId}", reg.DeleteScope)
		r.Get("/scopes/{scopeId}/effective", reg.Effective)
		r.Get("/scopes/{scopeId}/retention-preview", reg.RetentionPreview)
		r.Get("/defaults", reg.GetDefaults)
		r.Put("/defaults", reg.SetDefaults)
		r.Get("/expired-scopes", exp.List)
		r.Post("/expired-scopes:delete", exp.Delete)
	})
	env.router = r
	return env
}

// do sends a request as userID and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		if s, ok := body.(string); ok {
			reader = bytes.NewBufferString(s)
		} else {
			b, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(b)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// seed stores a request directly at the given status.
func (e *testEnv) seed(t *testing.T, id string, status datarequest.Status) {
	t.Helper()
	now := time.Now()
	require.NoError(t, e.requests.Create(context.Background(), &datarequest.DataRequest{
		ID:          id,
		SubjectID:   subject,
		RequestedBy: subject,
		Type:        datarequest.TypeExport,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
