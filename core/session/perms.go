package session

import (
	"sort"

	"github.com/elimuhq/elimu/core/user"
)

// Permissions; namespaced the same way roles are.
const (
	PermUsersManage = "users:manage"

	PermAssignmentsRead    = "assignments:read"
	PermAssignmentsWrite   = "assignments:write"
	PermAssignmentsMark    = "assignments:mark"
	PermAssignmentsAttempt = "assignments:attempt"

	PermAttendanceManage = "attendance:manage"
	PermAttendanceScan   = "attendance:scan"

	PermFinanceRead  = "finance:read"
	PermFinanceWrite = "finance:write"

	PermEventsRead  = "events:read"
	PermEventsWrite = "events:write"

	PermMaterialsRead  = "materials:read"
	PermMaterialsWrite = "materials:write"
)

// rolePermissions is the authorization store: refreshes re-derive a session's
// permission set from here so role changes take effect at the next refresh
// without forcing re-login.
var rolePermissions = map[string][]string{
	user.RoleStudent: {
		PermAssignmentsRead, PermAssignmentsAttempt,
		PermAttendanceScan,
		PermEventsRead,
		PermMaterialsRead,
	},
	user.RoleStaff: {
		PermAssignmentsRead, PermAssignmentsWrite, PermAssignmentsMark,
		PermAttendanceManage,
		PermEventsRead, PermEventsWrite,
		PermMaterialsRead, PermMaterialsWrite,
	},
	user.RoleStaffLecturer: {
		PermAssignmentsRead, PermAssignmentsWrite, PermAssignmentsMark,
		PermAttendanceManage,
		PermEventsRead, PermEventsWrite,
		PermMaterialsRead, PermMaterialsWrite,
	},
	user.RoleAdmin: {
		PermUsersManage,
		PermAssignmentsRead, PermAssignmentsWrite, PermAssignmentsMark,
		PermAttendanceManage,
		PermFinanceRead, PermFinanceWrite,
		PermEventsRead, PermEventsWrite,
		PermMaterialsRead, PermMaterialsWrite,
	},
}

func init() {
	// principal & owner inherit the plain admin set
	rolePermissions[user.RoleAdminPrincipal] = rolePermissions[user.RoleAdmin]
	rolePermissions[user.RoleAdminOwner] = rolePermissions[user.RoleAdmin]
}

// DerivePermissions unions the permission sets of the given roles.
func DerivePermissions(roles []string) []string {
	seen := make(map[string]struct{})
	for _, role := range roles {
		for _, perm := range rolePermissions[role] {
			seen[perm] = struct{}{}
		}
	}
	perms := make([]string, 0, len(seen))
	for perm := range seen {
		perms = append(perms, perm)
	}
	sort.Strings(perms)
	return perms
}
