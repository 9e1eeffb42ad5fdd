// Package datarequest manages data subject requests: their lifecycle, the
// data protection officers who approve them and the notifications they send.
package datarequest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/privacyops/dsar/internal/api/models"
)

// Errors returned by the request lifecycle.
var (
	ErrRequestNotFound = errors.New("data request not found")
	ErrInvalidState    = errors.New("data request is not in the required state")
	// ErrStatusConflict is returned when the status changed between the read
	// and the write of a transition.
	ErrStatusConflict = errors.New("data request status changed concurrently")
	// ErrContactDisabled is returned by ContactDPO when the site disabled it.
	ErrContactDisabled = errors.New("contacting the data protection officer is disabled")
	// ErrNotQueued is returned when a request was saved but its next step
	// could not be queued. The request keeps its new status.
	ErrNotQueued = errors.New("data request saved but not queued")
)

// Status is the lifecycle state of a request.
type Status int

// Request statuses. The numeric values are persisted.
const (
	StatusPending Status = iota
	StatusPreprocessing
	StatusAwaitingApproval
	StatusApproved
	StatusProcessing
	StatusComplete
	StatusCancelled
	StatusRejected
)

var statusNames = [...]string{
	StatusPending:          "pending",
	StatusPreprocessing:    "preprocessing",
	StatusAwaitingApproval: "awaiting_approval",
	StatusApproved:         "approved",
	StatusProcessing:       "processing",
	StatusComplete:         "complete",
	StatusCancelled:        "cancelled",
	StatusRejected:         "rejected",
}

// Statuses returns every status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusPending, StatusPreprocessing, StatusAwaitingApproval, StatusApproved,
		StatusProcessing, StatusComplete, StatusCancelled, StatusRejected,
	}
}

func (s Status) String() string {
	if s.Valid() {
		return statusNames[s]
	}
	return "unknown"
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s >= StatusPending && s <= StatusRejected
}

// IsActive reports whether the request still needs processing. It is false
// exactly for the terminal statuses.
func (s Status) IsActive() bool {
	switch s {
	case StatusComplete, StatusCancelled, StatusRejected:
		return false
	default:
		return true
	}
}

var transitions = map[Status][]Status{
	StatusPending:          {StatusPreprocessing, StatusCancelled},
	StatusPreprocessing:    {StatusAwaitingApproval, StatusCancelled},
	StatusAwaitingApproval: {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:         {StatusProcessing, StatusCancelled},
	StatusProcessing:       {StatusComplete, StatusCancelled},
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Type is the kind of request.
type Type int

// Request types. The numeric values are persisted.
const (
	TypeExport Type = 1
	TypeDelete Type = 2
	TypeOthers Type = 3
)

func (t Type) String() string {
	switch t {
	case TypeExport:
		return "export"
	case TypeDelete:
		return "delete"
	case TypeOthers:
		return "others"
	default:
		return "unknown"
	}
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	return t >= TypeExport && t <= TypeOthers
}

// ParseType parses a type name or its numeric value.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range []Type{TypeExport, TypeDelete, TypeOthers} {
		if s == t.String() {
			return t, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && Type(n).Valid() {
		return Type(n), nil
	}
	return 0, fmt.Errorf("unknown request type %q", s)
}

// DataRequest is a request about the personal data of SubjectID, filed by
// RequestedBy. Requests are never deleted.
type DataRequest struct {
	ID          string
	SubjectID   string
	RequestedBy string
	Type        Type
	Status      Status
	Comments    string
	// DPOID is the officer who approved or denied the request.
	DPOID     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OnBehalf reports whether the request was filed by someone other than the subject.
func (r *DataRequest) OnBehalf() bool {
	return r.RequestedBy != "" && r.RequestedBy != r.SubjectID
}

// Warning codes reported next to a boolean result.
const (
	WarningRequestNotFound = "errorrequestnotfound"
	WarningSendingToDPO    = "errorsendingtodpo"
	WarningNotifyingUser   = "errornotifyinguser"
	WarningNotQueued       = "errornotqueued"
)

var warningMessages = map[string]string{
	WarningRequestNotFound: "Request not found",
	WarningSendingToDPO:    "An error was encountered while trying to send a message to %s.",
	WarningNotifyingUser:   "An error was encountered while trying to notify %s of the request results.",
	WarningNotQueued:       "The request %s was saved but could not be queued for processing.",
}

// Warning is a non-fatal problem reported alongside an operation result.
type Warning struct {
	Item        string `json:"item"`
	ItemID      string `json:"itemId,omitempty"`
	WarningCode string `json:"warningcode"`
	Message     string `json:"message"`
}

// NewWarning builds a warning with the standard message for code, filled in
// with args.
func NewWarning(item, itemID, code string, args ...any) Warning {
	msg := warningMessages[code]
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	return Warning{Item: item, ItemID: itemID, WarningCode: code, Message: msg}
}

// Outcome is the dual-channel result of an operation: overall success plus
// the warnings gathered on the way.
type Outcome struct {
	Skipped  bool      `json:"-"`
	Result   bool      `json:"result"`
	Warnings []Warning `json:"warnings"`
}

func (o *Outcome) warn(w Warning) {
	o.Result = false
	o.Warnings = append(o.Warnings, w)
}

// ValidationError is returned when a request input is invalid.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}
