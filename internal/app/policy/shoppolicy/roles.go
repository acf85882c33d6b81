package shoppolicy

import (
	"strings"
)

// Role is a shop-scoped role held through an Assignment.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
	RoleSales   Role = "sales"
	RoleViewer  Role = "viewer"
)

// rank orders roles by authority. staff and sales sit side by side.
var rank = map[Role]int{
	RoleOwner:   5,
	RoleAdmin:   4,
	RoleManager: 3,
	RoleStaff:   2,
	RoleSales:   2,
	RoleViewer:  1,
}

// ParseRole normalizes s and reports whether it names a known role.
// Unknown roles never map to a default.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := rank[r]; !ok {
		return "", false
	}
	return r, true
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := rank[r]
	return ok
}

// Rank returns the authority rank of r, 0 for unknown roles.
func (r Role) Rank() int {
	return rank[r]
}

// GlobalRole is the account-wide role carried on User.GlobalRole.
type GlobalRole string

const (
	GlobalViewer  GlobalRole = "viewer"
	GlobalStaff   GlobalRole = "staff"
	GlobalSales   GlobalRole = "sales"
	GlobalManager GlobalRole = "manager"
	GlobalAdmin   GlobalRole = "admin"
)

// ParseGlobalRole normalizes s and reports whether it names a known global role.
func ParseGlobalRole(s string) (GlobalRole, bool) {
	g := GlobalRole(strings.ToLower(strings.TrimSpace(s)))
	switch g {
	case GlobalViewer, GlobalStaff, GlobalSales, GlobalManager, GlobalAdmin:
		return g, true
	}
	return "", false
}
