package model

import "time"

// ParseJobStatus represents the lifecycle state of a parse job.
type ParseJobStatus string

const (
	ParseJobQueued   ParseJobStatus = "queued"
	ParseJobRunning  ParseJobStatus = "running"
	ParseJobComplete ParseJobStatus = "complete"
	ParseJobError    ParseJobStatus = "error"
)

// IsTerminal reports whether the job will not make further progress.
func (s ParseJobStatus) IsTerminal() bool {
	return s == ParseJobComplete || s == ParseJobError
}

// ParseJob tracks one document parse through the pipeline. Progress is a
// percentage; Stage is a human-readable description of the current step.
type ParseJob struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	S3Key      string         `json:"s3_key"`
	Section    string         `json:"section"`
	DocumentID string         `json:"document_id,omitempty"`
	Status     ParseJobStatus `json:"status"`
	Progress   int            `json:"progress"`
	Stage      string         `json:"stage,omitempty"`
	ChunkCount int            `json:"chunk_count"`
	Error      string         `json:"error,omitempty"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
