package auth

import "strings"

const (
	RoleClient = "client"
	RoleStaff  = "staff"
	RoleAdmin  = "admin"
)

// StaffRoles may act on any client's appointments and trigger sweeps.
var StaffRoles = []string{RoleStaff, RoleAdmin}

// IsStaff reports whether role is one of StaffRoles, ignoring case.
func IsStaff(role string) bool {
	role = strings.TrimSpace(role)
	for _, r := range StaffRoles {
		if strings.EqualFold(role, r) {
			return true
		}
	}
	return false
}
