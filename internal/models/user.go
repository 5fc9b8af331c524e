package models

type UserRole string

const (
	UserRoleCreator UserRole = "creator"
	UserRoleBrand   UserRole = "brand"
	UserRoleAdmin   UserRole = "admin"
)

// Caller is the authenticated principal of a request. Identity is issued
// by the marketplace auth service; this service only verifies it.
type Caller struct {
	UserID string
	Role   UserRole
}

func (c Caller) IsAdmin() bool {
	return c.Role == UserRoleAdmin
}
