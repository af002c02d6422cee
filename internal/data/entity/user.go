package entity

// UserRole is the role stored on users and joined onto sessions.
type UserRole string

const (
	RoleClient   UserRole = "client"
	RoleProvider UserRole = "provider"
	RoleAdmin    UserRole = "admin"
)
