// Package handler provides HTTP handlers for the DSAR API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/privacyops/dsar/internal/api/models"
	"github.com/privacyops/dsar/internal/api/response"
	"github.com/privacyops/dsar/internal/resilience"
)

const checkTimeout = 2 * time.Second

// Check is a named dependency probe such as a database ping.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version       string
	buildTime     string
	checks        []Check
	collaborators *resilience.Registry
	now           func() time.Time
}

// NewOpsHandler creates a new OpsHandler. collaborators may be nil.
func NewOpsHandler(version, buildTime string, collaborators *resilience.Registry, checks ...Check) *OpsHandler {
	return &OpsHandler{
		version:       version,
		buildTime:     buildTime,
		checks:        checks,
		collaborators: collaborators,
		now:           time.Now,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. It fails when any dependency
// check fails.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.runChecks(r.Context())

	health := models.Health{Status: models.HealthStatusOK, Time: models.Timestamp(h.now())}
	status := http.StatusOK
	for _, s := range subsystems {
		if s.Status != models.HealthStatusOK {
			if health.Details == nil {
				health.Details = map[string]interface{}{}
			}
			health.Details[s.Name] = *s.Detail
			health.Status = models.HealthStatusFail
			status = http.StatusServiceUnavailable
		}
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem and collaborator status.
// Open circuit breakers degrade the overall status; failing subsystems fail it.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:        models.HealthStatusOK,
		Time:          models.Timestamp(h.now()),
		Subsystems:    h.runChecks(r.Context()),
		Collaborators: []models.CollaboratorStatus{},
	}

	for _, c := range h.collaborators.All() {
		cs := models.CollaboratorStatus{
			Name:                c.Name,
			Status:              models.HealthStatusOK,
			BreakerState:        c.State.String(),
			ConsecutiveFailures: c.Counts.ConsecutiveFailures,
			LastSuccessAt:       models.TimestampPtr(c.LastSuccessAt),
			LastFailureAt:       models.TimestampPtr(c.LastFailureAt),
		}
		if c.LastError != "" {
			msg := c.LastError
			cs.Message = &msg
		}
		if !c.Healthy() {
			cs.Status = models.HealthStatusDegraded
			status.Status = models.HealthStatusDegraded
		}
		status.Collaborators = append(status.Collaborators, cs)
	}

	for _, s := range status.Subsystems {
		if s.Status == models.HealthStatusFail {
			status.Status = models.HealthStatusFail
		}
	}
	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) runChecks(ctx context.Context) []models.SubsystemStatus {
	out := make([]models.SubsystemStatus, 0, len(h.checks))
	for _, c := range h.checks {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Ping(checkCtx)
		cancel()

		s := models.SubsystemStatus{Name: c.Name, Status: models.HealthStatusOK}
		if err != nil {
			detail := err.Error()
			s.Status = models.HealthStatusFail
			s.Detail = &detail
		}
		out = append(out, s)
	}
	return out
}
