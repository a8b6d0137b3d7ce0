package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ezcommon/apply-portal/internal/model"
)

// Common errors for org repository operations.
var (
	ErrOrgNotFound = errors.New("org not found")
)

// CreateOrg inserts a new organization. The insert is idempotent: creating
// an org that already exists is a no-op.
func (r *Repository) CreateOrg(ctx context.Context, org *model.Org) error {
	query := `
		INSERT INTO orgs (id, name, admin_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		org.ID,
		org.Name,
		org.AdminUserID,
		org.CreatedAt,
		org.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create org: %w", err)
	}

	return nil
}

// GetOrgByID retrieves an organization by its ID.
func (r *Repository) GetOrgByID(ctx context.Context, id string) (*model.Org, error) {
	query := `
		SELECT id, name, admin_user_id, created_at, updated_at
		FROM orgs
		WHERE id = $1
	`

	var org model.Org
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&org.ID,
		&org.Name,
		&org.AdminUserID,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrgNotFound
		}
		return nil, fmt.Errorf("failed to get org by ID: %w", err)
	}

	return &org, nil
}

// UpdateOrgName renames an organization.
func (r *Repository) UpdateOrgName(ctx context.Context, id, name string) error {
	query := `
		UPDATE orgs
		SET name = $2, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, name)
	if err != nil {
		return fmt.Errorf("failed to update org: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrgNotFound
	}

	return nil
}
