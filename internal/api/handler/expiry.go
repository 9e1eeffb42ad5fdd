package handler

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/privacyops/dsar/internal/api/models"
	"github.com/privacyops/dsar/internal/api/response"
	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/expiry"
)

const (
	defaultExpiredListLimit = 100
	maxExpiredListLimit     = 1000
)

// ExpiryHandlerConfig holds the dependencies of ExpiryHandler.
type ExpiryHandlerConfig struct {
	// Deleters run in order on every manual run.
	Deleters  []*expiry.Deleter
	Records   expiry.Repository
	Directory directory.Directory
	Logger    zerolog.Logger
}

// ExpiryHandler handles expired scope endpoints.
type ExpiryHandler struct {
	deleters []*expiry.Deleter
	records  expiry.Repository
	dir      directory.Directory
	logger   zerolog.Logger
}

// NewExpiryHandler creates a new ExpiryHandler.
func NewExpiryHandler(cfg ExpiryHandlerConfig) *ExpiryHandler {
	return &ExpiryHandler{
		deleters: cfg.Deleters,
		records:  cfg.Records,
		dir:      cfg.Directory,
		logger:   cfg.Logger,
	}
}

// Delete handles POST /v1/registry/expired-scopes:delete - runs every
// deletion strategy once. A failing scope is reported in its run; an error
// from a strategy aborts the remaining ones.
func (h *ExpiryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor := GetUserID(r.Context())
	result := models.ExpiryRunResult{Runs: make([]models.ExpiryRun, 0, len(h.deleters))}
	for _, d := range h.deleters {
		res, err := d.Delete(r.Context(), actor)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		result.Runs = append(result.Runs, toExpiryRun(res))
	}
	response.JSON(w, r, http.StatusOK, result)
}

// List handles GET /v1/registry/expired-scopes?status=&limit=.
func (h *ExpiryHandler) List(w http.ResponseWriter, r *http.Request) {
	if err := directory.RequireCapability(r.Context(), h.dir, GetUserID(r.Context()), directory.CapabilityManageDataRegistry); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	q := r.URL.Query()
	opts := expiry.ListOptions{Limit: defaultExpiredListLimit}

	if raw := q.Get("status"); raw != "" {
		status, err := expiry.ParseStatus(raw)
		if err != nil {
			response.BadRequest(w, r, err.Error(), []models.FieldError{
				{Field: "status", Message: "must be one of: expired approved cleaned", Code: "oneof"},
			})
			return
		}
		opts.Status = &status
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxExpiredListLimit {
			response.BadRequest(w, r, "limit must be between 1 and 1000", []models.FieldError{
				{Field: "limit", Message: "must be between 1 and 1000", Code: "range"},
			})
			return
		}
		opts.Limit = limit
	}

	records, err := h.records.List(r.Context(), opts)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]models.ExpiredScope, 0, len(records))
	for _, rec := range records {
		items = append(items, toExpiredScope(rec))
	}
	response.JSON(w, r, http.StatusOK, models.NewList(items, opts.Limit))
}
