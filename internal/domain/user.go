package domain

// Role is the authorization level of an authenticated caller.
type Role string

const (
	RoleParent Role = "parent"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
)

// Principal is the caller identity yielded by bearer credential verification.
type Principal struct {
	ID    string
	Role  Role
	Email string
}

// IsAdmin reports whether the principal may use the admin back-office.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}
