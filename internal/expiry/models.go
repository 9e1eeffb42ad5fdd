// Package expiry finds scopes whose retention period has run out and purges them.
package expiry

import (
	"errors"
	"fmt"
	"time"

	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/retention"
)

// ErrRecordNotFound is returned when a scope has no expiry record.
var ErrRecordNotFound = errors.New("expired scope record not found")

// DefaultDeleteLimit caps the number of scopes purged in one run.
const DefaultDeleteLimit = 200

// Status is the progress of an expired scope through deletion.
type Status int

// Record statuses.
const (
	StatusExpired Status = iota
	StatusApprovedForDeletion
	StatusCleaned
)

func (s Status) String() string {
	switch s {
	case StatusExpired:
		return "expired"
	case StatusApprovedForDeletion:
		return "approved"
	case StatusCleaned:
		return "cleaned"
	default:
		return "unknown"
	}
}

// Record tracks a scope that was found expired.
type Record struct {
	ScopeID   string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResolvedScope is a scan result: a scope whose retention has run out.
type ResolvedScope struct {
	Scope          directory.Scope
	Strategy       string
	ComparisonTime time.Time
	ExpiresAt      time.Time
	Effective      *retention.Effective
}

// ParseStatus parses a status name.
func ParseStatus(s string) (Status, error) {
	for _, st := range []Status{StatusExpired, StatusApprovedForDeletion, StatusCleaned} {
		if s == st.String() {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown expiry status %q", s)
}
