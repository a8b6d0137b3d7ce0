// Package events provides activity event capture and processing.
package events

import (
	"fmt"

	"github.com/ezcommon/apply-portal/internal/model"
)

const maxSubjectLength = 500

var knownKinds = map[string]bool{
	string(model.ActivityUpload):     true,
	string(model.ActivityParse):      true,
	string(model.ActivityFormFill):   true,
	string(model.ActivityInvitation): true,
}

// ValidateActivityEventPayload validates activity event payload fields.
func ValidateActivityEventPayload(payload ActivityEventPayload) error {
	if payload.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if payload.Kind == "" {
		return fmt.Errorf("kind is required")
	}
	if !knownKinds[payload.Kind] {
		return fmt.Errorf("unknown kind %q", payload.Kind)
	}
	if payload.OccurredAt <= 0 {
		return fmt.Errorf("occurred_at must be set")
	}
	if len(payload.Subject) > maxSubjectLength {
		return fmt.Errorf("subject too long")
	}
	if payload.ChunkCount < 0 {
		return fmt.Errorf("chunk_count must not be negative")
	}
	return nil
}
