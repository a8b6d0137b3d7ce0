package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ezcommon/apply-portal/internal/model"
)

// Common errors for invitation repository operations.
var (
	ErrInvitationNotFound = errors.New("invitation not found")
)

// UpsertInvitation creates an invitation or, if the (org, student) pair
// already exists, resets its status back to pending. Matches the
// re-invite semantics of the portal: a rejected student can be invited
// again.
func (r *Repository) UpsertInvitation(ctx context.Context, inv *model.Invitation) error {
	query := `
		INSERT INTO org_invitations (org_id, student_id, student_email, status, invited_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (org_id, student_id)
		DO UPDATE SET status = 'pending', invited_by = EXCLUDED.invited_by, updated_at = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query,
		inv.OrgID,
		inv.StudentID,
		inv.StudentEmail,
		inv.Status,
		inv.InvitedBy,
		inv.CreatedAt,
		inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert invitation: %w", err)
	}

	return nil
}

// GetInvitation retrieves a single invitation by its composite key.
func (r *Repository) GetInvitation(ctx context.Context, orgID, studentID string) (*model.Invitation, error) {
	query := `
		SELECT org_id, student_id, student_email, status, invited_by, created_at, updated_at
		FROM org_invitations
		WHERE org_id = $1 AND student_id = $2
	`

	inv, err := r.scanInvitation(r.pool.QueryRow(ctx, query, orgID, studentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	return inv, nil
}

// UpdateInvitationStatus transitions an invitation's status.
// Returns ErrInvitationNotFound when the row does not exist.
func (r *Repository) UpdateInvitationStatus(ctx context.Context, orgID, studentID string, status model.InvitationStatus) error {
	query := `
		UPDATE org_invitations
		SET status = $3, updated_at = $4
		WHERE org_id = $1 AND student_id = $2
	`

	tag, err := r.pool.Exec(ctx, query, orgID, studentID, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update invitation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvitationNotFound
	}

	return nil
}

// DeleteInvitation removes an invitation.
func (r *Repository) DeleteInvitation(ctx context.Context, orgID, studentID string) error {
	query := `
		DELETE FROM org_invitations
		WHERE org_id = $1 AND student_id = $2
	`

	tag, err := r.pool.Exec(ctx, query, orgID, studentID)
	if err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvitationNotFound
	}

	return nil
}

// ListOrgInvitations returns all invitations issued by an org, optionally
// filtered by status.
func (r *Repository) ListOrgInvitations(ctx context.Context, orgID string, status model.InvitationStatus) ([]*model.Invitation, error) {
	query := `
		SELECT org_id, student_id, student_email, status, invited_by, created_at, updated_at
		FROM org_invitations
		WHERE org_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, orgID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list org invitations: %w", err)
	}
	defer rows.Close()

	return r.collectInvitations(rows)
}

// ListStudentInvitations returns all invitations addressed to a student.
func (r *Repository) ListStudentInvitations(ctx context.Context, studentID string) ([]*model.Invitation, error) {
	query := `
		SELECT org_id, student_id, student_email, status, invited_by, created_at, updated_at
		FROM org_invitations
		WHERE student_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list student invitations: %w", err)
	}
	defer rows.Close()

	return r.collectInvitations(rows)
}

func (r *Repository) collectInvitations(rows pgx.Rows) ([]*model.Invitation, error) {
	var invitations []*model.Invitation
	for rows.Next() {
		inv, err := r.scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

func (r *Repository) scanInvitation(row pgx.Row) (*model.Invitation, error) {
	var inv model.Invitation
	err := row.Scan(
		&inv.OrgID,
		&inv.StudentID,
		&inv.StudentEmail,
		&inv.Status,
		&inv.InvitedBy,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
