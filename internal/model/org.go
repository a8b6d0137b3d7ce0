package model

import "time"

// Org represents an organization (a school counseling office or agency)
// that invites students onto the platform.
type Org struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	AdminUserID string    `json:"admin_user_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
