package model

import "time"

// InvitationStatus represents the lifecycle state of an org invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
)

// IsValid checks if the status is one of the known states.
func (s InvitationStatus) IsValid() bool {
	return s == InvitationPending || s == InvitationAccepted || s == InvitationRejected
}

// Invitation links an organization to a student it has invited.
// The (org_id, student_id) pair is unique; re-inviting resets the
// status back to pending.
type Invitation struct {
	OrgID        string           `json:"org_id"`
	StudentID    string           `json:"student_id"`
	StudentEmail string           `json:"student_email"`
	Status       InvitationStatus `json:"status"`
	InvitedBy    string           `json:"invited_by"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}
