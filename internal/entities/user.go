package entities

import "github.com/google/uuid"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleRider    Role = "rider"
)

func (r Role) String() string {
	return string(r)
}

type User struct {
	ID    uuid.UUID
	Email string
	Name  string
	Role  Role
}

// Principal is the resolved caller identity attached to every request by the
// auth middleware. The order service trusts it and applies role rules on top.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
