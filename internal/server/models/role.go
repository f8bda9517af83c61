package models

// Role is the closed set of privilege levels a user can hold. A user's role
// is assigned once, at registration or on first federated sign-in, and is
// immutable for the lifetime of the email address.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleStaff    Role = "STAFF"
	RoleCustomer Role = "CUSTOMER"
)

// Valid reports whether r is one of the known roles. Every decision point
// that accepts a role from outside must check this; roles are never treated
// as free-form strings.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleCustomer:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }
