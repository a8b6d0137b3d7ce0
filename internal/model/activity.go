// Package model defines domain entities for the application.
package model

import "time"

// ActivityKind classifies an activity event on the user's trail.
type ActivityKind string

const (
	ActivityUpload     ActivityKind = "upload"
	ActivityParse      ActivityKind = "parse"
	ActivityFormFill   ActivityKind = "form_fill"
	ActivityInvitation ActivityKind = "invitation"
)

// ActivityEvent records one user action for the activity trail.
type ActivityEvent struct {
	ID      string `json:"id"`       // ULID (time-sortable)
	EventID string `json:"event_id"` // Idempotency key (Redis stream ID)

	UserID  string       `json:"user_id"`
	OrgID   string       `json:"org_id,omitempty"`
	Kind    ActivityKind `json:"kind"`
	Section string       `json:"section,omitempty"`

	// Subject of the event: an S3 key, document id or invitation org id.
	Subject string `json:"subject,omitempty"`

	// Free-form counters, e.g. chunk_count for parse events.
	Detail map[string]int64 `json:"detail,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// DailyUserStats is the pre-aggregated daily activity rollup for a user.
type DailyUserStats struct {
	ID     string    `json:"id"` // Composite: user_id:date
	UserID string    `json:"user_id"`
	Date   time.Time `json:"date"` // UTC date (time component zeroed)

	Uploads       int64 `json:"uploads"`
	ParsedDocs    int64 `json:"parsed_docs"`
	ChunksCreated int64 `json:"chunks_created"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
