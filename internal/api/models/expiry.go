package models

// ExpiredScope is a scope recorded as past its retention period.
type ExpiredScope struct {
	ScopeID   string    `json:"scopeId"`
	Status    string    `json:"status"`
	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// ExpiryFailure is a scope that could not be purged.
type ExpiryFailure struct {
	ScopeID string `json:"scopeId"`
	Error   string `json:"error"`
}

// ExpiryRun is the outcome of one deletion strategy.
type ExpiryRun struct {
	Strategy string          `json:"strategy"`
	Deleted  int             `json:"deleted"`
	Failures []ExpiryFailure `json:"failures"`
	Skipped  bool            `json:"skipped"`
}

// ExpiryRunResult answers POST /v1/registry/expired-scopes:delete.
type ExpiryRunResult struct {
	Runs []ExpiryRun `json:"runs"`
}
