// Package model defines domain entities for the application.
package model

import "time"

// Role identifies what a user account is allowed to do.
type Role string

const (
	RoleStudent  Role = "student"
	RoleOrgAdmin Role = "org_admin"
	RoleAdmin    Role = "admin"
)

// IsValid checks if the role is one of the known roles.
func (r Role) IsValid() bool {
	return r == RoleStudent || r == RoleOrgAdmin || r == RoleAdmin
}

// User represents a portal account.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Role         Role       `json:"role"`
	OrgID        string     `json:"org_id,omitempty"`
	PasswordHash string     `json:"-"`
	DeletedAt    *time.Time `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// AuthContext carries the authenticated identity for a request.
type AuthContext struct {
	UserID string
	Email  string
	Role   Role
	OrgID  string
}
