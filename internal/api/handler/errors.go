package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/privacyops/dsar/internal/api/middleware"
	"github.com/privacyops/dsar/internal/api/response"
	"github.com/privacyops/dsar/internal/datarequest"
	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/expiry"
	"github.com/privacyops/dsar/internal/registry"
)

// writeError maps a domain error to a Problem response. Unexpected errors are
// logged and reported as 500 without their message.
func writeError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	var reqValidation *datarequest.ValidationError
	var regValidation *registry.ValidationError

	switch {
	case errors.As(err, &reqValidation):
		response.BadRequest(w, r, "request validation failed", reqValidation.Errors)
	case errors.As(err, &regValidation):
		response.BadRequest(w, r, "request validation failed", regValidation.Errors)

	case errors.Is(err, directory.ErrPermissionDenied):
		response.Forbidden(w, r, "you do not have permission to perform this action")
	case errors.Is(err, datarequest.ErrContactDisabled):
		response.Forbidden(w, r, err.Error())

	case errors.Is(err, datarequest.ErrRequestNotFound),
		errors.Is(err, registry.ErrPurposeNotFound),
		errors.Is(err, registry.ErrCategoryNotFound),
		errors.Is(err, registry.ErrBindingNotFound),
		errors.Is(err, directory.ErrScopeNotFound),
		errors.Is(err, directory.ErrUserNotFound),
		errors.Is(err, expiry.ErrRecordNotFound):
		response.NotFound(w, r, err.Error())

	case errors.Is(err, datarequest.ErrInvalidState),
		errors.Is(err, datarequest.ErrStatusConflict),
		errors.Is(err, registry.ErrPurposeInUse):
		response.Conflict(w, r, err.Error())

	case errors.Is(err, datarequest.ErrNotQueued):
		log.Error().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("queue publish failed")
		response.ServiceUnavailable(w, r, err.Error())

	default:
		log.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
