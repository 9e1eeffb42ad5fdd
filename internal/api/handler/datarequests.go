package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/privacyops/dsar/internal/api/models"
	"github.com/privacyops/dsar/internal/api/response"
	"github.com/privacyops/dsar/internal/datarequest"
)

// DataRequestHandler handles data request endpoints.
type DataRequestHandler struct {
	service *datarequest.Service
	logger  zerolog.Logger
}

// NewDataRequestHandler creates a new DataRequestHandler.
func NewDataRequestHandler(service *datarequest.Service, logger zerolog.Logger) *DataRequestHandler {
	return &DataRequestHandler{service: service, logger: logger}
}

// Create handles POST /v1/data-requests.
func (h *DataRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input models.CreateDataRequestInput
	if !decodeJSON(w, r, &input) {
		return
	}
	t, err := datarequest.ParseType(input.Type)
	if err != nil {
		response.BadRequest(w, r, "request validation failed", []models.FieldError{
			{Field: "type", Message: err.Error(), Code: "oneof"},
		})
		return
	}

	dr, err := h.service.Create(r.Context(), GetUserID(r.Context()), datarequest.CreateInput{
		SubjectID: input.SubjectID,
		Type:      t,
		Comments:  input.Comments,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.Created(w, r, "/v1/data-requests/"+dr.ID, toDataRequest(dr))
}

// List handles GET /v1/data-requests - requests about or filed by the caller.
func (h *DataRequestHandler) List(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.ListForUser(r.Context(), GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewList(toDataRequests(requests), 0))
}

// ListAll handles GET /v1/data-requests/all. Callers who are not officers get
// an empty list.
func (h *DataRequestHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.ListAll(r.Context(), GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewList(toDataRequests(requests), 0))
}

// Get handles GET /v1/data-requests/{requestId}.
func (h *DataRequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	dr, err := h.service.Get(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "requestId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toDataRequest(dr))
}

// Ongoing handles GET /v1/data-requests/ongoing?type=.
func (h *DataRequestHandler) Ongoing(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("type")
	if raw == "" {
		response.BadRequest(w, r, "type is required", []models.FieldError{
			{Field: "type", Message: "is required", Code: "required"},
		})
		return
	}
	t, err := datarequest.ParseType(raw)
	if err != nil {
		response.BadRequest(w, r, err.Error(), []models.FieldError{
			{Field: "type", Message: "must be one of: export delete others", Code: "oneof"},
		})
		return
	}

	userID := GetUserID(r.Context())
	ongoing, err := h.service.HasOngoingRequest(r.Context(), userID, t)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.OngoingRequest{UserID: userID, Type: t.String(), Ongoing: ongoing})
}

// Cancel handles POST /v1/data-requests/{requestId}/cancel. A request that
// does not exist or was filed by someone else is reported as a warning.
func (h *DataRequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "requestId")
	ok, err := h.service.Cancel(r.Context(), GetUserID(r.Context()), id)
	if err != nil && !errors.Is(err, datarequest.ErrRequestNotFound) {
		writeError(w, r, h.logger, err)
		return
	}
	if !ok {
		response.JSON(w, r, http.StatusOK, notFoundOutcome(id))
		return
	}
	response.JSON(w, r, http.StatusOK, toOutcome(true, nil))
}

// Approve handles POST /v1/data-requests/{requestId}/approve.
func (h *DataRequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "requestId")
	err := h.service.Approve(r.Context(), GetUserID(r.Context()), id)
	switch {
	case err == nil:
		response.JSON(w, r, http.StatusOK, toOutcome(true, nil))
	case errors.Is(err, datarequest.ErrRequestNotFound):
		response.JSON(w, r, http.StatusOK, notFoundOutcome(id))
	case errors.Is(err, datarequest.ErrNotQueued):
		// The approval stands; processing has to be requeued.
		h.logger.Error().Err(err).Str("request_id", id).Msg("approved request not queued")
		response.JSON(w, r, http.StatusOK, toOutcome(true, []datarequest.Warning{
			datarequest.NewWarning("request", id, datarequest.WarningNotQueued, id),
		}))
	default:
		writeError(w, r, h.logger, err)
	}
}

// Deny handles POST /v1/data-requests/{requestId}/deny.
func (h *DataRequestHandler) Deny(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "requestId")
	err := h.service.Deny(r.Context(), GetUserID(r.Context()), id)
	switch {
	case err == nil:
		response.JSON(w, r, http.StatusOK, toOutcome(true, nil))
	case errors.Is(err, datarequest.ErrRequestNotFound):
		response.JSON(w, r, http.StatusOK, notFoundOutcome(id))
	default:
		writeError(w, r, h.logger, err)
	}
}

func notFoundOutcome(id string) models.Outcome {
	return toOutcome(false, []datarequest.Warning{
		datarequest.NewWarning(id, "", datarequest.WarningRequestNotFound),
	})
}
