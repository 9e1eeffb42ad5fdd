package handler

import (
	"github.com/privacyops/dsar/internal/api/models"
	"github.com/privacyops/dsar/internal/datarequest"
	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/expiry"
	"github.com/privacyops/dsar/internal/registry"
	"github.com/privacyops/dsar/internal/retention"
)

func toDataRequest(r *datarequest.DataRequest) models.DataRequest {
	return models.DataRequest{
		ID:          r.ID,
		SubjectID:   r.SubjectID,
		RequestedBy: r.RequestedBy,
		Type:        r.Type.String(),
		Status:      r.Status.String(),
		Comments:    r.Comments,
		DPOID:       r.DPOID,
		OnBehalf:    r.OnBehalf(),
		CreatedAt:   models.Timestamp(r.CreatedAt),
		UpdatedAt:   models.Timestamp(r.UpdatedAt),
	}
}

func toDataRequests(rs []*datarequest.DataRequest) []models.DataRequest {
	out := make([]models.DataRequest, 0, len(rs))
	for _, r := range rs {
		out = append(out, toDataRequest(r))
	}
	return out
}

func toOutcome(result bool, warnings []datarequest.Warning) models.Outcome {
	out := models.Outcome{Result: result, Warnings: make([]models.Warning, 0, len(warnings))}
	for _, w := range warnings {
		out.Warnings = append(out.Warnings, models.Warning{
			Item:        w.Item,
			ItemID:      w.ItemID,
			WarningCode: w.WarningCode,
			Message:     w.Message,
		})
	}
	return out
}

func toUserSummaries(users []directory.User) []models.UserSummary {
	out := make([]models.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, models.UserSummary{ID: u.ID, FullName: u.FullName, Email: u.Email})
	}
	return out
}

func toPurpose(p *registry.Purpose) *models.Purpose {
	if p == nil {
		return nil
	}
	return &models.Purpose{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Retention:   p.Retention.String(),
		Protected:   p.Protected,
		CreatedAt:   models.Timestamp(p.CreatedAt),
		UpdatedAt:   models.Timestamp(p.UpdatedAt),
	}
}

func toCategory(c *registry.Category) *models.Category {
	if c == nil {
		return nil
	}
	return &models.Category{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		CreatedAt:   models.Timestamp(c.CreatedAt),
		UpdatedAt:   models.Timestamp(c.UpdatedAt),
	}
}

func toLevelBinding(b *registry.LevelBinding) models.LevelBinding {
	return models.LevelBinding{
		Level:               b.Level.String(),
		PurposeID:           b.PurposeID,
		CategoryID:          b.CategoryID,
		ApplyToAllInstances: b.ApplyToAllInstances,
		UpdatedAt:           models.Timestamp(b.UpdatedAt),
	}
}

func toScopeBinding(b *registry.ScopeBinding) models.ScopeBinding {
	return models.ScopeBinding{
		ScopeID:    b.ScopeID,
		PurposeID:  b.PurposeID,
		CategoryID: b.CategoryID,
		UpdatedAt:  models.Timestamp(b.UpdatedAt),
	}
}

func toEffectivePolicy(e *retention.Effective) models.EffectivePolicy {
	out := models.EffectivePolicy{
		Purpose:        toPurpose(e.Purpose),
		Category:       toCategory(e.Category),
		PurposeSource:  e.PurposeSource.String(),
		CategorySource: e.CategorySource.String(),
		SourceScopeID:  e.SourceScopeID,
		Retention:      e.Retention().String(),
	}
	if e.Scope != nil {
		out.ScopeID = e.Scope.ID
		out.Level = e.Scope.Level.String()
	}
	return out
}

func toRetentionPreview(p retention.Preview) models.RetentionPreview {
	out := models.RetentionPreview{
		PurposeID:     p.OptionPurposeID,
		Retention:     p.Effective.Retention().String(),
		PurposeSource: p.Effective.PurposeSource.String(),
	}
	if p.Effective.Purpose != nil {
		out.PurposeName = p.Effective.Purpose.Name
	}
	return out
}

func toExpiredScope(r *expiry.Record) models.ExpiredScope {
	return models.ExpiredScope{
		ScopeID:   r.ScopeID,
		Status:    r.Status.String(),
		CreatedAt: models.Timestamp(r.CreatedAt),
		UpdatedAt: models.Timestamp(r.UpdatedAt),
	}
}

func toExpiryRun(r *expiry.Result) models.ExpiryRun {
	run := models.ExpiryRun{
		Strategy: r.Strategy,
		Deleted:  r.Deleted,
		Failures: make([]models.ExpiryFailure, 0, len(r.Failures)),
		Skipped:  r.Skipped,
	}
	for _, f := range r.Failures {
		run.Failures = append(run.Failures, models.ExpiryFailure{ScopeID: f.ScopeID, Error: f.Error})
	}
	return run
}
