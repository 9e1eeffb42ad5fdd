package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/privacyops/dsar/internal/api/models"
	"github.com/privacyops/dsar/internal/api/response"
	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/registry"
	"github.com/privacyops/dsar/internal/retention"
)

// RegistryHandlerConfig holds the dependencies of RegistryHandler.
type RegistryHandlerConfig struct {
	Registry  *registry.Service
	Resolver  *retention.Resolver
	Directory directory.Directory
	Logger    zerolog.Logger
}

// RegistryHandler handles data registry endpoints.
type RegistryHandler struct {
	registry *registry.Service
	resolver *retention.Resolver
	dir      directory.Directory
	logger   zerolog.Logger
}

// NewRegistryHandler creates a new RegistryHandler.
func NewRegistryHandler(cfg RegistryHandlerConfig) *RegistryHandler {
	return &RegistryHandler{
		registry: cfg.Registry,
		resolver: cfg.Resolver,
		dir:      cfg.Directory,
		logger:   cfg.Logger,
	}
}

// ListPurposes handles GET /v1/registry/purposes.
func (h *RegistryHandler) ListPurposes(w http.ResponseWriter, r *http.Request) {
	purposes, err := h.registry.ListPurposes(r.Context(), GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]models.Purpose, 0, len(purposes))
	for _, p := range purposes {
		items = append(items, *toPurpose(p))
	}
	response.JSON(w, r, http.StatusOK, models.NewList(items, 0))
}

// CreatePurpose handles POST /v1/registry/purposes.
func (h *RegistryHandler) CreatePurpose(w http.ResponseWriter, r *http.Request) {
	var input models.PurposeInput
	if !decodeJSON(w, r, &input) {
		return
	}
	p, err := h.registry.CreatePurpose(r.Context(), GetUserID(r.Context()), purposeInput(input))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.Created(w, r, "/v1/registry/purposes/"+p.ID, toPurpose(p))
}

// GetPurpose handles GET /v1/registry/purposes/{purposeId}.
func (h *RegistryHandler) GetPurpose(w http.ResponseWriter, r *http.Request) {
	p, err := h.registry.GetPurpose(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "purposeId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toPurpose(p))
}

// UpdatePurpose handles PUT /v1/registry/purposes/{purposeId}.
func (h *RegistryHandler) UpdatePurpose(w http.ResponseWriter, r *http.Request) {
	var input models.PurposeInput
	if !decodeJSON(w, r, &input) {
		return
	}
	p, err := h.registry.UpdatePurpose(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "purposeId"), purposeInput(input))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toPurpose(p))
}

// DeletePurpose handles DELETE /v1/registry/purposes/{purposeId}.
func (h *RegistryHandler) DeletePurpose(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.DeletePurpose(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "purposeId")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.NoContent(w, r)
}

// ListCategories handles GET /v1/registry/categories.
func (h *RegistryHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.registry.ListCategories(r.Context(), GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]models.Category, 0, len(categories))
	for _, c := range categories {
		items = append(items, *toCategory(c))
	}
	response.JSON(w, r, http.StatusOK, models.NewList(items, 0))
}

// CreateCategory handles POST /v1/registry/categories.
func (h *RegistryHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var input models.CategoryInput
	if !decodeJSON(w, r, &input) {
		return
	}
	c, err := h.registry.CreateCategory(r.Context(), GetUserID(r.Context()), registry.CategoryInput{
		Name:        input.Name,
		Description: input.Description,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.Created(w, r, "/v1/registry/categories/"+c.ID, toCategory(c))
}

// GetCategory handles GET /v1/registry/categories/{categoryId}.
func (h *RegistryHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.registry.GetCategory(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "categoryId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toCategory(c))
}

// UpdateCategory handles PUT /v1/registry/categories/{categoryId}.
func (h *RegistryHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var input models.CategoryInput
	if !decodeJSON(w, r, &input) {
		return
	}
	c, err := h.registry.UpdateCategory(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "categoryId"), registry.CategoryInput{
		Name:        input.Name,
		Description: input.Description,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toCategory(c))
}

// DeleteCategory handles DELETE /v1/registry/categories/{categoryId}.
func (h *RegistryHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.DeleteCategory(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "categoryId")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.NoContent(w, r)
}

// ListLevels handles GET /v1/registry/levels.
func (h *RegistryHandler) ListLevels(w http.ResponseWriter, r *http.Request) {
	bindings, err := h.registry.ListLevelBindings(r.Context(), GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]models.LevelBinding, 0, len(bindings))
	for _, b := range bindings {
		items = append(items, toLevelBinding(b))
	}
	response.JSON(w, r, http.StatusOK, models.NewList(items, 0))
}

// GetLevel handles GET /v1/registry/levels/{level}.
func (h *RegistryHandler) GetLevel(w http.ResponseWriter, r *http.Request) {
	level, ok := h.levelParam(w, r)
	if !ok {
		return
	}
	b, err := h.registry.GetLevelBinding(r.Context(), GetUserID(r.Context()), level)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toLevelBinding(b))
}

// SetLevel handles PUT /v1/registry/levels/{level}.
func (h *RegistryHandler) SetLevel(w http.ResponseWriter, r *http.Request) {
	level, ok := h.levelParam(w, r)
	if !ok {
		return
	}
	var input models.LevelBindingInput
	if !decodeJSON(w, r, &input) {
		return
	}
	b, err := h.registry.SetLevelBinding(r.Context(), GetUserID(r.Context()), level, registry.LevelBindingInput{
		PurposeID:           input.PurposeID,
		CategoryID:          input.CategoryID,
		ApplyToAllInstances: input.ApplyToAllInstances,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toLevelBinding(b))
}

func (h *RegistryHandler) levelParam(w http.ResponseWriter, r *http.Request) (directory.Level, bool) {
	level, err := directory.ParseLevel(chi.URLParam(r, "level"))
	if err != nil {
		response.BadRequest(w, r, err.Error(), []models.FieldError{
			{Field: "level", Message: "must be a scope level name such as course or module", Code: "oneof"},
		})
		return 0, false
	}
	return level, true
}

// GetScope handles GET /v1/registry/scopes/{scopeId}.
func (h *RegistryHandler) GetScope(w http.ResponseWriter, r *http.Request) {
	b, err := h.registry.GetScopeBinding(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "scopeId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toScopeBinding(b))
}

// SetScope handles PUT /v1/registry/scopes/{scopeId}.
func (h *RegistryHandler) SetScope(w http.ResponseWriter, r *http.Request) {
	var input models.ScopeBindingInput
	if !decodeJSON(w, r, &input) {
		return
	}
	b, err := h.registry.SetScopeBinding(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "scopeId"), registry.ScopeBindingInput{
		PurposeID:  input.PurposeID,
		CategoryID: input.CategoryID,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toScopeBinding(b))
}

// DeleteScope handles DELETE /v1/registry/scopes/{scopeId}.
func (h *RegistryHandler) DeleteScope(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.DeleteScopeBinding(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "scopeId")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.NoContent(w, r)
}

// Effective handles GET /v1/registry/scopes/{scopeId}/effective. The
// purposeId query parameter previews the policy with that purpose bound to
// the scope; an empty value previews inheriting.
func (h *RegistryHandler) Effective(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := directory.RequireCapability(ctx, h.dir, GetUserID(ctx), directory.CapabilityManageDataRegistry); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var opts retention.ResolveOptions
	if q := r.URL.Query(); q.Has("purposeId") {
		override := q.Get("purposeId")
		opts.OverridePurposeID = &override
	}
	eff, err := h.resolver.Resolve(ctx, chi.URLParam(r, "scopeId"), opts)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toEffectivePolicy(eff))
}

// RetentionPreview handles GET /v1/registry/scopes/{scopeId}/retention-preview.
func (h *RegistryHandler) RetentionPreview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := directory.RequireCapability(ctx, h.dir, GetUserID(ctx), directory.CapabilityManageDataRegistry); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	previews, err := h.resolver.PreviewRetentions(ctx, chi.URLParam(r, "scopeId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]models.RetentionPreview, 0, len(previews))
	for _, p := range previews {
		items = append(items, toRetentionPreview(p))
	}
	response.JSON(w, r, http.StatusOK, models.NewList(items, 0))
}

// GetDefaults handles GET /v1/registry/defaults.
func (h *RegistryHandler) GetDefaults(w http.ResponseWriter, r *http.Request) {
	d, err := h.registry.SystemDefaults(r.Context(), GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.SystemDefaults{PurposeID: d.PurposeID, CategoryID: d.CategoryID})
}

// SetDefaults handles PUT /v1/registry/defaults.
func (h *RegistryHandler) SetDefaults(w http.ResponseWriter, r *http.Request) {
	var input models.SystemDefaults
	if !decodeJSON(w, r, &input) {
		return
	}
	if err := h.registry.SetSystemDefaults(r.Context(), GetUserID(r.Context()), input.PurposeID, input.CategoryID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, input)
}

func purposeInput(in models.PurposeInput) registry.PurposeInput {
	return registry.PurposeInput{
		Name:        in.Name,
		Description: in.Description,
		Retention:   in.Retention,
		Protected:   in.Protected,
	}
}
