package models

// PurposeInput is the body for creating or updating a purpose.
type PurposeInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description,omitempty" validate:"max=2000"`
	// Retention is an ISO 8601 period such as P1Y6M.
	Retention string `json:"retention" validate:"required,retention"`
	Protected bool   `json:"protected"`
}

// Purpose is a processing purpose.
type Purpose struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Retention   string    `json:"retention"`
	Protected   bool      `json:"protected"`
	CreatedAt   Timestamp `json:"createdAt"`
	UpdatedAt   Timestamp `json:"updatedAt"`
}

// CategoryInput is the body for creating or updating a category.
type CategoryInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description,omitempty" validate:"max=2000"`
}

// Category is a personal data category.
type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   Timestamp `json:"createdAt"`
	UpdatedAt   Timestamp `json:"updatedAt"`
}

// LevelBindingInput is the body of PUT /v1/registry/levels/{level}.
type LevelBindingInput struct {
	PurposeID           *string `json:"purposeId"`
	CategoryID          *string `json:"categoryId"`
	ApplyToAllInstances bool    `json:"applyToAllInstances"`
}

// LevelBinding is the default purpose and category of a level.
type LevelBinding struct {
	Level               string    `json:"level"`
	PurposeID           *string   `json:"purposeId"`
	CategoryID          *string   `json:"categoryId"`
	ApplyToAllInstances bool      `json:"applyToAllInstances"`
	UpdatedAt           Timestamp `json:"updatedAt"`
}

// ScopeBindingInput is the body of PUT /v1/registry/scopes/{scopeId}.
type ScopeBindingInput struct {
	PurposeID  *string `json:"purposeId"`
	CategoryID *string `json:"categoryId"`
}

// ScopeBinding attaches a purpose and category to a scope.
type ScopeBinding struct {
	ScopeID    string    `json:"scopeId"`
	PurposeID  *string   `json:"purposeId"`
	CategoryID *string   `json:"categoryId"`
	UpdatedAt  Timestamp `json:"updatedAt"`
}

// SystemDefaults are the site wide purpose and category.
type SystemDefaults struct {
	PurposeID  string `json:"purposeId" validate:"required"`
	CategoryID string `json:"categoryId" validate:"required"`
}

// EffectivePolicy is the resolved policy of a scope.
type EffectivePolicy struct {
	ScopeID        string    `json:"scopeId"`
	Level          string    `json:"level"`
	Purpose        *Purpose  `json:"purpose"`
	Category       *Category `json:"category"`
	PurposeSource  string    `json:"purposeSource"`
	CategorySource string    `json:"categorySource"`
	SourceScopeID  string    `json:"sourceScopeId,omitempty"`
	Retention      string    `json:"retention"`
}

// RetentionPreview is the effective retention for one purpose option.
type RetentionPreview struct {
	// PurposeID is the option; empty means inherit.
	PurposeID     string `json:"purposeId"`
	PurposeName   string `json:"purposeName"`
	Retention     string `json:"retention"`
	PurposeSource string `json:"purposeSource"`
}
