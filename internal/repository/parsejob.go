package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ezcommon/apply-portal/internal/model"
)

// Common errors for parse job repository operations.
var (
	ErrParseJobNotFound = errors.New("parse job not found")
)

// CreateParseJob inserts a new parse job in queued state.
func (r *Repository) CreateParseJob(ctx context.Context, job *model.ParseJob) error {
	query := `
		INSERT INTO parse_jobs (id, user_id, s3_key, section, status, progress, stage, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.UserID,
		job.S3Key,
		job.Section,
		job.Status,
		job.Progress,
		job.Stage,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create parse job: %w", err)
	}

	return nil
}

// GetParseJob retrieves a parse job by ID.
func (r *Repository) GetParseJob(ctx context.Context, id string) (*model.ParseJob, error) {
	query := `
		SELECT id, user_id, s3_key, section, COALESCE(document_id, ''), status, progress,
		       COALESCE(stage, ''), chunk_count, COALESCE(error, ''), started_at, finished_at,
		       created_at, updated_at
		FROM parse_jobs
		WHERE id = $1
	`

	job, err := r.scanParseJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParseJobNotFound
		}
		return nil, fmt.Errorf("failed to get parse job: %w", err)
	}

	return job, nil
}

// MarkParseJobRunning transitions a job from queued to running.
func (r *Repository) MarkParseJobRunning(ctx context.Context, id string) error {
	query := `
		UPDATE parse_jobs
		SET status = 'running', started_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'queued'
	`

	tag, err := r.pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark parse job running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrParseJobNotFound
	}

	return nil
}

// UpdateParseJobProgress records the job's current progress and stage.
func (r *Repository) UpdateParseJobProgress(ctx context.Context, id string, progress int, stage string) error {
	query := `
		UPDATE parse_jobs
		SET progress = $2, stage = $3, updated_at = $4
		WHERE id = $1
	`

	_, err := r.pool.Exec(ctx, query, id, progress, stage, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update parse job progress: %w", err)
	}

	return nil
}

// CompleteParseJob records a successful parse.
func (r *Repository) CompleteParseJob(ctx context.Context, id, documentID string, chunkCount int) error {
	query := `
		UPDATE parse_jobs
		SET status = 'complete', progress = 100, document_id = $2, chunk_count = $3,
		    finished_at = $4, updated_at = $4
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, documentID, chunkCount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to complete parse job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrParseJobNotFound
	}

	return nil
}

// FailParseJob records a terminal parse failure.
func (r *Repository) FailParseJob(ctx context.Context, id, errMsg string) error {
	query := `
		UPDATE parse_jobs
		SET status = 'error', error = $2, finished_at = $3, updated_at = $3
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, errMsg, time.Now())
	if err != nil {
		return fmt.Errorf("failed to fail parse job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrParseJobNotFound
	}

	return nil
}

// ListUserParseJobs returns a user's recent parse jobs, newest first.
func (r *Repository) ListUserParseJobs(ctx context.Context, userID string, limit int) ([]*model.ParseJob, error) {
	query := `
		SELECT id, user_id, s3_key, section, COALESCE(document_id, ''), status, progress,
		       COALESCE(stage, ''), chunk_count, COALESCE(error, ''), started_at, finished_at,
		       created_at, updated_at
		FROM parse_jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list parse jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.ParseJob
	for rows.Next() {
		job, err := r.scanParseJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan parse job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func (r *Repository) scanParseJob(row pgx.Row) (*model.ParseJob, error) {
	var job model.ParseJob
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.S3Key,
		&job.Section,
		&job.DocumentID,
		&job.Status,
		&job.Progress,
		&job.Stage,
		&job.ChunkCount,
		&job.Error,
		&job.StartedAt,
		&job.FinishedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
