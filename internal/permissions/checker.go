// Package permissions resolves role-based permission slugs for API routes.
package permissions

import "atrium/internal/models"

// Permission slugs guarding API operations.
const (
	RequestsCreate     = "requests.create"
	RequestsViewOwn    = "requests.view_own"
	RequestsRead       = "app_requests.read"
	RequestsApprove    = "app_requests.approve"
	RequestsDeny       = "app_requests.deny"
	CatalogSync        = "catalog.sync"
	CatalogManage      = "catalog.manage"
	AssignmentsViewOwn = "assignments.view_own"
	AssignmentsManage  = "assignments.manage"
	StoreView          = "store.view"
)

// Checker decides whether a role holds a permission slug.
type Checker interface {
	Allowed(role, slug string) bool
}

// employee permissions are the baseline everyone holds.
var employeeSlugs = []string{
	RequestsCreate,
	RequestsViewOwn,
	AssignmentsViewOwn,
	StoreView,
}

// approver adds review powers on top of the baseline.
var approverSlugs = []string{
	RequestsRead,
	RequestsApprove,
	RequestsDeny,
}

// admin additionally manages the catalog and other users' assignments.
var adminSlugs = []string{
	CatalogSync,
	CatalogManage,
	AssignmentsManage,
}

type staticChecker struct {
	grants map[string]map[string]bool
}

// NewStaticChecker builds the fixed role-to-permission map used by the
// portal. Roles are cumulative: approver includes employee, admin includes
// approver, root includes everything.
func NewStaticChecker() Checker {
	grants := map[string]map[string]bool{
		models.RoleEmployee: {},
		models.RoleApprover: {},
		models.RoleAdmin:    {},
		models.RoleRoot:     {},
	}

	grant := func(roles []string, slugs []string) {
		for _, role := range roles {
			for _, slug := range slugs {
				grants[role][slug] = true
			}
		}
	}

	all := []string{models.RoleEmployee, models.RoleApprover, models.RoleAdmin, models.RoleRoot}
	grant(all, employeeSlugs)
	grant(all[1:], approverSlugs)
	grant(all[2:], adminSlugs)

	return &staticChecker{grants: grants}
}

func (c *staticChecker) Allowed(role, slug string) bool {
	perms, ok := c.grants[role]
	if !ok {
		return false
	}
	return perms[slug]
}
