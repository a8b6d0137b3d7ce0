package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ezcommon/apply-portal/internal/model"
	"github.com/ezcommon/apply-portal/internal/repository"
)

// Organization errors.
var (
	ErrOrgNotFound = errors.New("organization not found")
)

// OrgService handles organization management.
type OrgService struct {
	repo *repository.Repository
}

// NewOrgService creates a new OrgService.
func NewOrgService(repo *repository.Repository) *OrgService {
	return &OrgService{repo: repo}
}

// GetOrg loads an organization.
func (s *OrgService) GetOrg(ctx context.Context, id string) (*model.Org, error) {
	org, err := s.repo.GetOrgByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrOrgNotFound) {
			return nil, ErrOrgNotFound
		}
		return nil, err
	}
	return org, nil
}

// RenameOrg updates the organization's display name.
func (s *OrgService) RenameOrg(ctx context.Context, id, name string) (*model.Org, error) {
	if err := s.repo.UpdateOrgName(ctx, id, name); err != nil {
		if errors.Is(err, repository.ErrOrgNotFound) {
			return nil, ErrOrgNotFound
		}
		return nil, fmt.Errorf("rename org: %w", err)
	}
	return s.GetOrg(ctx, id)
}

// SearchStudents finds students linked to the organization by name or
// email fragment. An empty search lists them all.
func (s *OrgService) SearchStudents(ctx context.Context, orgID, search string, limit int) ([]*model.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.SearchOrgStudents(ctx, orgID, search, limit)
}

// ListUsers returns a page of all accounts. Platform admin only.
func (s *OrgService) ListUsers(ctx context.Context, limit, offset int) ([]*model.User, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListUsers(ctx, limit, offset)
}
