package model

import "time"

// Known application sections. Uploads outside this list are allowed but
// land in a custom section prefix.
const (
	SectionProfile   = "profile"
	SectionEducation = "education"
	SectionActivity  = "activity"
	SectionTesting   = "testing"
)

// KnownSections lists the sections the UI renders by default.
var KnownSections = []string{SectionProfile, SectionEducation, SectionActivity, SectionTesting}

// UploadedFile describes an object stored in the uploads bucket.
type UploadedFile struct {
	Key              string    `json:"key"`
	OriginalFilename string    `json:"original_filename"`
	Section          string    `json:"section"`
	Size             int64     `json:"size"`
	ContentType      string    `json:"content_type,omitempty"`
	URL              string    `json:"url,omitempty"` // presigned GET, short-lived
	UploadedAt       time.Time `json:"uploaded_at"`
}

// FileMetadata is the full object metadata view for a stored file.
type FileMetadata struct {
	Key              string            `json:"key"`
	OriginalFilename string            `json:"original_filename"`
	UserID           string            `json:"user_id"`
	Section          string            `json:"section"`
	Size             int64             `json:"size"`
	ContentType      string            `json:"content_type"`
	UploadTimestamp  string            `json:"upload_timestamp"`
	Custom           map[string]string `json:"custom,omitempty"`
}
