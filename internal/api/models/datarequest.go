package models

// CreateDataRequestInput is the body of POST /v1/data-requests.
type CreateDataRequestInput struct {
	// SubjectID is the user the request is about; empty means the caller.
	SubjectID string `json:"subjectId,omitempty" validate:"omitempty,max=64"`
	Type      string `json:"type" validate:"required,oneof=export delete others"`
	Comments  string `json:"comments,omitempty" validate:"max=2000"`
}

// DataRequest is a data subject request.
type DataRequest struct {
	ID          string    `json:"id"`
	SubjectID   string    `json:"subjectId"`
	RequestedBy string    `json:"requestedBy"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Comments    string    `json:"comments,omitempty"`
	DPOID       *string   `json:"dpoId,omitempty"`
	OnBehalf    bool      `json:"onBehalf"`
	CreatedAt   Timestamp `json:"createdAt"`
	UpdatedAt   Timestamp `json:"updatedAt"`
}

// ContactDPOInput is the body of POST /v1/dpo/contact.
type ContactDPOInput struct {
	Message string `json:"message" validate:"required,max=5000"`
}

// Warning is a non-fatal problem reported next to a result.
type Warning struct {
	Item        string `json:"item"`
	ItemID      string `json:"itemId,omitempty"`
	WarningCode string `json:"warningcode"`
	Message     string `json:"message"`
}

// Outcome is the response of operations that report partial failure.
type Outcome struct {
	Result   bool      `json:"result"`
	Warnings []Warning `json:"warnings"`
}

// OngoingRequest answers GET /v1/data-requests/ongoing.
type OngoingRequest struct {
	UserID  string `json:"userId"`
	Type    string `json:"type"`
	Ongoing bool   `json:"ongoing"`
}

// UserSummary is a user an officer can file a request for.
type UserSummary struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email,omitempty"`
}
