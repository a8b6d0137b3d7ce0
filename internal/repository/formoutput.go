package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ezcommon/apply-portal/internal/model"
)

// Common errors for form output repository operations.
var (
	ErrFormOutputNotFound = errors.New("form output not found")
)

// SaveFormOutput stores a filled form, replacing any previous output for
// the same (user, school) pair. school_id is empty for general-questions
// outputs.
func (r *Repository) SaveFormOutput(ctx context.Context, out *model.FormOutput) error {
	answers, err := json.Marshal(out.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	query := `
		INSERT INTO form_outputs (id, user_id, school_id, answers, filled_count, success_rate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, school_id)
		DO UPDATE SET answers = EXCLUDED.answers, filled_count = EXCLUDED.filled_count,
		              success_rate = EXCLUDED.success_rate, updated_at = EXCLUDED.updated_at
	`

	_, err = r.pool.Exec(ctx, query,
		out.ID,
		out.UserID,
		out.SchoolID,
		answers,
		out.FilledCount,
		out.SuccessRate,
		out.CreatedAt,
		out.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save form output: %w", err)
	}

	return nil
}

// GetFormOutput loads the stored output for a (user, school) pair.
func (r *Repository) GetFormOutput(ctx context.Context, userID, schoolID string) (*model.FormOutput, error) {
	query := `
		SELECT id, user_id, school_id, answers, filled_count, success_rate, created_at, updated_at
		FROM form_outputs
		WHERE user_id = $1 AND school_id = $2
	`

	out, err := r.scanFormOutput(r.pool.QueryRow(ctx, query, userID, schoolID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFormOutputNotFound
		}
		return nil, fmt.Errorf("failed to get form output: %w", err)
	}

	return out, nil
}

// ListFormOutputs lists all stored outputs for a user, newest first.
func (r *Repository) ListFormOutputs(ctx context.Context, userID string) ([]*model.FormOutput, error) {
	query := `
		SELECT id, user_id, school_id, answers, filled_count, success_rate, created_at, updated_at
		FROM form_outputs
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list form outputs: %w", err)
	}
	defer rows.Close()

	var outputs []*model.FormOutput
	for rows.Next() {
		out, err := r.scanFormOutput(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan form output: %w", err)
		}
		outputs = append(outputs, out)
	}

	return outputs, rows.Err()
}

// DeleteFormOutput removes a stored output.
func (r *Repository) DeleteFormOutput(ctx context.Context, userID, schoolID string) error {
	query := `
		DELETE FROM form_outputs
		WHERE user_id = $1 AND school_id = $2
	`

	tag, err := r.pool.Exec(ctx, query, userID, schoolID)
	if err != nil {
		return fmt.Errorf("failed to delete form output: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFormOutputNotFound
	}

	return nil
}

func (r *Repository) scanFormOutput(row pgx.Row) (*model.FormOutput, error) {
	var (
		out     model.FormOutput
		answers []byte
	)
	err := row.Scan(
		&out.ID,
		&out.UserID,
		&out.SchoolID,
		&answers,
		&out.FilledCount,
		&out.SuccessRate,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(answers, &out.Answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	return &out, nil
}
