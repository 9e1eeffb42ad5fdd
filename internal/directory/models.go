// Package directory is the read-only view of the host platform's organisational
// hierarchy, users and role assignments.
package directory

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Directory errors.
var (
	ErrScopeNotFound = errors.New("scope not found")
	ErrUserNotFound  = errors.New("user not found")
)

// Capabilities checked against the directory.
const (
	CapabilityManageDataRequests = "dataprivacy:managedatarequests"
	CapabilityManageDataRegistry = "dataprivacy:managedataregistry"
	CapabilityRequestForOthers   = "dataprivacy:makedatarequestsforothers"
)

// Level is the structural level of a scope in the hierarchy.
type Level int

// Scope levels. Values follow the host platform numbering.
const (
	LevelSystem         Level = 10
	LevelUser           Level = 30
	LevelCourseCategory Level = 40
	LevelCourse         Level = 50
	LevelModule         Level = 70
	LevelBlock          Level = 80
)

var levelNames = map[Level]string{
	LevelSystem:         "system",
	LevelUser:           "user",
	LevelCourseCategory: "coursecat",
	LevelCourse:         "course",
	LevelModule:         "module",
	LevelBlock:          "block",
}

// Levels returns every known level in hierarchy order.
func Levels() []Level {
	return []Level{LevelSystem, LevelUser, LevelCourseCategory, LevelCourse, LevelModule, LevelBlock}
}

// String returns the level name.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "level" + strconv.Itoa(int(l))
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

// CourseRelated reports whether scopes at this level live below a course.
func (l Level) CourseRelated() bool {
	return l >= LevelCourse
}

// ParseLevel parses a level name or its numeric value.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for l, name := range levelNames {
		if name == s {
			return l, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && Level(n).Valid() {
		return Level(n), nil
	}
	return 0, fmt.Errorf("unknown scope level %q", s)
}

// Scope is one addressable unit of organisational data.
type Scope struct {
	ID    string
	Level Level
	// Path is the slash separated chain of scope ids from the root to this scope,
	// e.g. "/sys/cat1/crs9".
	Path string
	// ParentIDs lists the ancestors from the root down to the direct parent.
	ParentIDs []string
	// InstanceID is the id of the entity the scope belongs to (user id, course id).
	InstanceID string
	// EndDate is set on membership-bound scopes (courses) that have a finish date.
	EndDate *time.Time
}

// NearestAncestors returns the parent ids ordered from the direct parent outwards.
func (s *Scope) NearestAncestors() []string {
	out := make([]string, 0, len(s.ParentIDs))
	for i := len(s.ParentIDs) - 1; i >= 0; i-- {
		out = append(out, s.ParentIDs[i])
	}
	return out
}

// ParentIDsFromPath derives the ancestor ids (root first) from a scope path.
func ParentIDsFromPath(path string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) <= 1 {
		return nil
	}
	return parts[:len(parts)-1]
}

// Candidate is a scope that may have expired, with the time its retention
// period started counting.
type Candidate struct {
	Scope          Scope
	ComparisonTime time.Time
	// PurposeID, when set, is the purpose bound to this exact scope, fetched with
	// the candidate so the resolver does not need another lookup.
	PurposeID *string
}

// CandidateKind selects the "finished" predicate of a candidate stream.
type CandidateKind int

// Candidate kinds.
const (
	// EndedMemberships streams course scopes whose end date has passed, together
	// with their whole subtree. Every scope in the subtree carries the course end date.
	EndedMemberships CandidateKind = iota + 1
	// InactiveUsers streams user scopes whose last access is at or before Before.
	InactiveUsers
)

// CandidateQuery describes which candidates to stream.
type CandidateQuery struct {
	Kind   CandidateKind
	Now    time.Time
	Before time.Time
}

// User is a platform account.
type User struct {
	ID         string
	FullName   string
	Email      string
	Deleted    bool
	SiteAdmin  bool
	LastAccess *time.Time
}

// Membership links a user to a membership-bound scope such as a course.
type Membership struct {
	UserID  string
	ScopeID string
	// EndDate of the scope, nil when the scope has no end date.
	EndDate *time.Time
}

// Finished reports whether the membership has ended at now.
func (m Membership) Finished(now time.Time) bool {
	return m.EndDate != nil && !m.EndDate.After(now)
}

// RoleAssignment is a system-level role held by a user.
type RoleAssignment struct {
	UserID string
	RoleID string
}
