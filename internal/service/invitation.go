package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ezcommon/apply-portal/internal/events"
	"github.com/ezcommon/apply-portal/internal/model"
	"github.com/ezcommon/apply-portal/internal/notify"
	"github.com/ezcommon/apply-portal/internal/repository"
)

// Invitation errors.
var (
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrStudentNotFound    = errors.New("no student account with that email")
	ErrNotAStudent        = errors.New("account is not a student")
	ErrInvitationSettled  = errors.New("invitation already settled")
)

// InvitationService handles the org/student invitation flow.
type InvitationService struct {
	repo     *repository.Repository
	notifier *notify.Publisher
	activity *events.Publisher
	logger   *slog.Logger
}

// NewInvitationService creates a new InvitationService. notifier and
// activity may be nil in tests.
func NewInvitationService(repo *repository.Repository, notifier *notify.Publisher, activity *events.Publisher, logger *slog.Logger) *InvitationService {
	return &InvitationService{
		repo:     repo,
		notifier: notifier,
		activity: activity,
		logger:   logger,
	}
}

// Invite invites a student into the organization by email. Re-inviting
// a student whose invitation was rejected resets it to pending.
func (s *InvitationService) Invite(ctx context.Context, orgID, invitedBy, studentEmail string) (*model.Invitation, error) {
	email := strings.ToLower(strings.TrimSpace(studentEmail))

	student, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	if student.Role != model.RoleStudent {
		return nil, ErrNotAStudent
	}

	now := time.Now().UTC()
	inv := &model.Invitation{
		OrgID:        orgID,
		StudentID:    student.ID,
		StudentEmail: student.Email,
		Status:       model.InvitationPending,
		InvitedBy:    invitedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.UpsertInvitation(ctx, inv); err != nil {
		return nil, fmt.Errorf("upsert invitation: %w", err)
	}
	return inv, nil
}

// ListForOrg lists an organization's invitations, optionally filtered
// by status ("" matches all).
func (s *InvitationService) ListForOrg(ctx context.Context, orgID string, status model.InvitationStatus) ([]*model.Invitation, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("unknown invitation status %q", status)
	}
	return s.repo.ListOrgInvitations(ctx, orgID, status)
}

// ListForStudent lists the invitations addressed to a student.
func (s *InvitationService) ListForStudent(ctx context.Context, studentID string) ([]*model.Invitation, error) {
	return s.repo.ListStudentInvitations(ctx, studentID)
}

// Accept accepts a pending invitation, linking the student to the
// organization.
func (s *InvitationService) Accept(ctx context.Context, orgID, studentID string) (*model.Invitation, error) {
	inv, err := s.settle(ctx, orgID, studentID, model.InvitationAccepted)
	if err != nil {
		return nil, err
	}

	student, err := s.repo.GetUserByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("load student: %w", err)
	}
	student.OrgID = orgID
	if err := s.repo.UpdateUser(ctx, student); err != nil {
		return nil, fmt.Errorf("link student to org: %w", err)
	}

	if s.notifier != nil {
		eventID := ulid.Make().String()
		if err := s.notifier.PublishInvitationAccepted(ctx, eventID, model.InvitationAcceptedData{
			OrgID:        orgID,
			StudentID:    student.ID,
			StudentEmail: student.Email,
		}); err != nil {
			s.logger.Warn("webhook publish failed",
				slog.String("event_type", string(model.EventTypeInvitationAccepted)),
				slog.String("org_id", orgID),
				slog.String("error", err.Error()))
		}
	}
	if s.activity != nil {
		s.activity.PublishAsync(events.NewPayload(studentID, orgID, model.ActivityInvitation, "", orgID, 0))
	}

	return inv, nil
}

// Reject rejects a pending invitation.
func (s *InvitationService) Reject(ctx context.Context, orgID, studentID string) (*model.Invitation, error) {
	return s.settle(ctx, orgID, studentID, model.InvitationRejected)
}

// Revoke removes an invitation. Org admin side.
func (s *InvitationService) Revoke(ctx context.Context, orgID, studentID string) error {
	if err := s.repo.DeleteInvitation(ctx, orgID, studentID); err != nil {
		if errors.Is(err, repository.ErrInvitationNotFound) {
			return ErrInvitationNotFound
		}
		return err
	}
	return nil
}

// settle moves a pending invitation to a terminal status.
func (s *InvitationService) settle(ctx context.Context, orgID, studentID string, status model.InvitationStatus) (*model.Invitation, error) {
	inv, err := s.repo.GetInvitation(ctx, orgID, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrInvitationNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, err
	}
	if inv.Status != model.InvitationPending {
		return nil, ErrInvitationSettled
	}

	if err := s.repo.UpdateInvitationStatus(ctx, orgID, studentID, status); err != nil {
		if errors.Is(err, repository.ErrInvitationNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, err
	}

	inv.Status = status
	inv.UpdatedAt = time.Now().UTC()
	return inv, nil
}
