package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/privacyops/dsar/internal/api/models"
	"github.com/privacyops/dsar/internal/api/response"
	"github.com/privacyops/dsar/internal/datarequest"
)

// DPOHandler handles endpoints around the data protection officers.
type DPOHandler struct {
	service *datarequest.Service
	logger  zerolog.Logger
}

// NewDPOHandler creates a new DPOHandler.
func NewDPOHandler(service *datarequest.Service, logger zerolog.Logger) *DPOHandler {
	return &DPOHandler{service: service, logger: logger}
}

// Contact handles POST /v1/dpo/contact. Officers that could not be reached
// are reported as warnings next to the result.
func (h *DPOHandler) Contact(w http.ResponseWriter, r *http.Request) {
	var input models.ContactDPOInput
	if !decodeJSON(w, r, &input) {
		return
	}

	outcome, err := h.service.ContactDPO(r.Context(), GetUserID(r.Context()), input.Message)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toOutcome(outcome.Result, outcome.Warnings))
}

// Users handles GET /v1/dpo/users?q= - users an officer can file for.
func (h *DPOHandler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.SearchUsers(r.Context(), GetUserID(r.Context()), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewList(toUserSummaries(users), datarequest.SearchLimit))
}
