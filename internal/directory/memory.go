package directory

import (
	"context"
	"iter"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemoryDirectory is an in-memory Directory for tests and local development.
type InMemoryDirectory struct {
	mu           sync.RWMutex
	scopes       map[string]*Scope
	users        map[string]*User
	memberships  map[string][]string // user id -> scope ids
	roles        []RoleAssignment
	capabilities map[string]map[string]bool
}

// NewInMemoryDirectory creates an empty in-memory directory.
func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{
		scopes:       make(map[string]*Scope),
		users:        make(map[string]*User),
		memberships:  make(map[string][]string),
		capabilities: make(map[string]map[string]bool),
	}
}

// AddScope registers a scope below parentID (empty for a root).
// The path and parent chain are derived from the parent.
func (d *InMemoryDirectory) AddScope(id string, level Level, parentID, instanceID string) *Scope {
	d.mu.Lock()
	defer d.mu.Unlock()

	path := "/" + id
	if parent, ok := d.scopes[parentID]; ok {
		path = parent.Path + "/" + id
	}
	s := &Scope{
		ID:         id,
		Level:      level,
		Path:       path,
		ParentIDs:  ParentIDsFromPath(path),
		InstanceID: instanceID,
	}
	d.scopes[id] = s
	return copyScope(s)
}

// SetEndDate sets or clears the end date of a membership-bound scope.
func (d *InMemoryDirectory) SetEndDate(scopeID string, end *time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.scopes[scopeID]; ok {
		s.EndDate = end
	}
}

// AddUser registers a user.
func (d *InMemoryDirectory) AddUser(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	uc := u
	d.users[u.ID] = &uc
}

// Enrol adds the user to a membership-bound scope.
func (d *InMemoryDirectory) Enrol(userID, scopeID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.memberships[userID] = append(d.memberships[userID], scopeID)
}

// AssignRole gives the user a system-level role.
func (d *InMemoryDirectory) AssignRole(userID, roleID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roles = append(d.roles, RoleAssignment{UserID: userID, RoleID: roleID})
}

// Grant gives the user a system-level capability.
func (d *InMemoryDirectory) Grant(userID string, capabilities ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.capabilities[userID] == nil {
		d.capabilities[userID] = make(map[string]bool)
	}
	for _, c := range capabilities {
		d.capabilities[userID][c] = true
	}
}

// ResolveScope returns the scope with its parent chain.
func (d *InMemoryDirectory) ResolveScope(_ context.Context, scopeID string) (*Scope, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.scopes[scopeID]
	if !ok {
		return nil, ErrScopeNotFound
	}
	return copyScope(s), nil
}

// StreamCandidates yields candidates from a snapshot taken when iteration starts.
func (d *InMemoryDirectory) StreamCandidates(ctx context.Context, q CandidateQuery) iter.Seq2[Candidate, error] {
	return func(yield func(Candidate, error) bool) {
		candidates := d.collect(q)
		for _, c := range candidates {
			if err := ctx.Err(); err != nil {
				yield(Candidate{}, err)
				return
			}
			if !yield(c, nil) {
				return
			}
		}
	}
}

func (d *InMemoryDirectory) collect(q CandidateQuery) []Candidate {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Candidate
	switch q.Kind {
	case EndedMemberships:
		for _, course := range d.scopes {
			if course.Level != LevelCourse || course.EndDate == nil || course.EndDate.IsZero() {
				continue
			}
			if !course.EndDate.Before(q.Now) {
				continue
			}
			for _, s := range d.scopes {
				if s.Path == course.Path || strings.HasPrefix(s.Path, course.Path+"/") {
					out = append(out, Candidate{Scope: *copyScope(s), ComparisonTime: *course.EndDate})
				}
			}
		}
	case InactiveUsers:
		for _, s := range d.scopes {
			if s.Level != LevelUser {
				continue
			}
			u, ok := d.users[s.InstanceID]
			if !ok || u.LastAccess == nil || u.LastAccess.IsZero() || u.LastAccess.After(q.Before) {
				continue
			}
			out = append(out, Candidate{Scope: *copyScope(s), ComparisonTime: *u.LastAccess})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Scope.Path != out[j].Scope.Path {
			return out[i].Scope.Path < out[j].Scope.Path
		}
		return out[i].Scope.Level < out[j].Scope.Level
	})
	return out
}

// ListMemberships returns the membership-bound scopes the user belongs to.
func (d *InMemoryDirectory) ListMemberships(_ context.Context, userID string) ([]Membership, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Membership
	for _, scopeID := range d.memberships[userID] {
		m := Membership{UserID: userID, ScopeID: scopeID}
		if s, ok := d.scopes[scopeID]; ok && s.EndDate != nil && !s.EndDate.IsZero() {
			end := *s.EndDate
			m.EndDate = &end
		}
		out = append(out, m)
	}
	return out, nil
}

// GetUser returns a user by id.
func (d *InMemoryDirectory) GetUser(_ context.Context, userID string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	uc := *u
	return &uc, nil
}

// SearchUsers returns matching non-deleted users ordered by name.
func (d *InMemoryDirectory) SearchUsers(_ context.Context, query string, exclude []string, limit int) ([]User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	var out []User
	for _, u := range d.users {
		if u.Deleted || slices.Contains(exclude, u.ID) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(u.FullName), query) &&
			!strings.Contains(strings.ToLower(u.Email), query) {
			continue
		}
		out = append(out, *u)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListSiteAdmins returns the ids of site administrators.
func (d *InMemoryDirectory) ListSiteAdmins(_ context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ids []string
	for _, u := range d.users {
		if u.SiteAdmin && !u.Deleted {
			ids = append(ids, u.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ListRoleAssignments returns assignments of the given roles.
func (d *InMemoryDirectory) ListRoleAssignments(_ context.Context, roleIDs []string) ([]RoleAssignment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []RoleAssignment
	for _, ra := range d.roles {
		if slices.Contains(roleIDs, ra.RoleID) {
			out = append(out, ra)
		}
	}
	return out, nil
}

// HasCapability reports whether the user holds the capability.
// Site administrators hold every capability.
func (d *InMemoryDirectory) HasCapability(_ context.Context, userID, capability string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if u, ok := d.users[userID]; ok && u.SiteAdmin {
		return true, nil
	}
	return d.capabilities[userID][capability], nil
}

func copyScope(s *Scope) *Scope {
	sc := *s
	sc.ParentIDs = slices.Clone(s.ParentIDs)
	if s.EndDate != nil {
		end := *s.EndDate
		sc.EndDate = &end
	}
	return &sc
}

// Ensure InMemoryDirectory implements Directory.
var _ Directory = (*InMemoryDirectory)(nil)
