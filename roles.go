package client

// UserRole is the user's role as reported by the backend.
type UserRole string

const (
	// RoleUser is the default role assigned to every account.
	RoleUser UserRole = "user"
	// RoleAdmin can additionally create and manage events.
	RoleAdmin UserRole = "admin"
)

// IsValid checks if the role is one of the predefined valid roles.
func (r UserRole) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsAdmin reports whether the role grants admin access.
func (r UserRole) IsAdmin() bool {
	return r == RoleAdmin
}

// ParseRole safely parses a string into a UserRole, falling back to RoleUser
// for unknown values.
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	if role.IsValid() {
		return role, true
	}
	return RoleUser, false
}
