package datarequest

import (
	"context"
	"fmt"
	"sort"

	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/settings"
)

// ComputeDPOSet returns the data protection officers: every user assigned
// one of dpoRoleIDs, or the site administrators when that yields nobody,
// restricted to the users marked in capable.
func ComputeDPOSet(dpoRoleIDs []string, assignments []directory.RoleAssignment, siteAdmins []string, capable map[string]bool) map[string]struct{} {
	roles := make(map[string]bool, len(dpoRoleIDs))
	for _, id := range dpoRoleIDs {
		if id != "" {
			roles[id] = true
		}
	}

	var candidates []string
	for _, a := range assignments {
		if roles[a.RoleID] {
			candidates = append(candidates, a.UserID)
		}
	}
	if len(candidates) == 0 {
		candidates = siteAdmins
	}

	set := make(map[string]struct{})
	for _, id := range candidates {
		if capable[id] {
			set[id] = struct{}{}
		}
	}
	return set
}

// Officers looks up the site's data protection officers.
type Officers struct {
	dir      directory.Directory
	settings *settings.Service
}

// NewOfficers creates an officer lookup.
func NewOfficers(dir directory.Directory, st *settings.Service) *Officers {
	return &Officers{dir: dir, settings: st}
}

// Set returns the current DPO set. Only users holding the manage-requests
// capability are included.
func (o *Officers) Set(ctx context.Context) (map[string]struct{}, error) {
	roleIDs := o.settings.DPORoleIDs(ctx)

	var assignments []directory.RoleAssignment
	if len(roleIDs) > 0 {
		var err error
		assignments, err = o.dir.ListRoleAssignments(ctx, roleIDs)
		if err != nil {
			return nil, fmt.Errorf("list dpo role assignments: %w", err)
		}
	}
	admins, err := o.dir.ListSiteAdmins(ctx)
	if err != nil {
		return nil, fmt.Errorf("list site admins: %w", err)
	}

	capable := make(map[string]bool, len(assignments)+len(admins))
	for _, id := range candidateIDs(assignments, admins) {
		ok, err := o.dir.HasCapability(ctx, id, directory.CapabilityManageDataRequests)
		if err != nil {
			return nil, fmt.Errorf("check capability of %s: %w", id, err)
		}
		capable[id] = ok
	}
	return ComputeDPOSet(roleIDs, assignments, admins, capable), nil
}

func candidateIDs(assignments []directory.RoleAssignment, admins []string) []string {
	seen := make(map[string]bool, len(assignments)+len(admins))
	var ids []string
	for _, a := range assignments {
		if !seen[a.UserID] {
			seen[a.UserID] = true
			ids = append(ids, a.UserID)
		}
	}
	for _, id := range admins {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// List returns the ids of the current officers, sorted.
func (o *Officers) List(ctx context.Context) ([]string, error) {
	set, err := o.Set(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// IsDPO reports whether userID is one of the officers.
func (o *Officers) IsDPO(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	set, err := o.Set(ctx)
	if err != nil {
		return false, err
	}
	_, ok := set[userID]
	return ok, nil
}

// CanManage reports whether userID may decide on data requests. Officers
// hold the manage-requests capability by construction.
func (o *Officers) CanManage(ctx context.Context, userID string) (bool, error) {
	return o.IsDPO(ctx, userID)
}

// RequireManage returns directory.ErrPermissionDenied unless CanManage holds.
func (o *Officers) RequireManage(ctx context.Context, userID string) error {
	ok, err := o.CanManage(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return directory.ErrPermissionDenied
	}
	return nil
}
