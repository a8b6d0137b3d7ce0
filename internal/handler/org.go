package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ezcommon/apply-portal/internal/auth"
	"github.com/ezcommon/apply-portal/internal/handler/dto"
	"github.com/ezcommon/apply-portal/internal/model"
	"github.com/ezcommon/apply-portal/internal/service"
)

// OrgHandler handles organization, invitation and admin endpoints.
type OrgHandler struct {
	orgs        *service.OrgService
	invitations *service.InvitationService
	logger      *slog.Logger
}

// NewOrgHandler creates a new OrgHandler.
func NewOrgHandler(orgs *service.OrgService, invitations *service.InvitationService, logger *slog.Logger) *OrgHandler {
	return &OrgHandler{
		orgs:        orgs,
		invitations: invitations,
		logger:      logger,
	}
}

// GetMyOrg handles GET /api/v1/org. Org admin only.
func (h *OrgHandler) GetMyOrg(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())

	org, err := h.orgs.GetOrg(r.Context(), authCtx.OrgID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

// RenameMyOrg handles PATCH /api/v1/org. Org admin only.
func (h *OrgHandler) RenameMyOrg(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())

	var req dto.RenameOrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "MISSING_NAME", "Organization name is required")
		return
	}

	org, err := h.orgs.RenameOrg(r.Context(), authCtx.OrgID, strings.TrimSpace(req.Name))
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.logger.Info("org_renamed", "org_id", org.ID)

	writeJSON(w, http.StatusOK, org)
}

// InviteStudent handles POST /api/v1/org/invitations. Org admin only.
func (h *OrgHandler) InviteStudent(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())

	var req dto.InviteStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "MISSING_EMAIL", "Student email is required")
		return
	}

	inv, err := h.invitations.Invite(r.Context(), authCtx.OrgID, authCtx.UserID, req.Email)
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.logger.Info("student_invited",
		"org_id", authCtx.OrgID,
		"student_id", inv.StudentID,
	)

	writeJSON(w, http.StatusCreated, inv)
}

// ListOrgInvitations handles GET /api/v1/org/invitations?status=. Org admin only.
func (h *OrgHandler) ListOrgInvitations(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())
	status := model.InvitationStatus(r.URL.Query().Get("status"))

	invs, err := h.invitations.ListForOrg(r.Context(), authCtx.OrgID, status)
	if err != nil {
		if status != "" && !status.IsValid() {
			writeError(w, http.StatusBadRequest, "INVALID_STATUS", "Unknown invitation status")
			return
		}
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"invitations": invs})
}

// RevokeInvitation handles DELETE /api/v1/org/invitations/{studentID}. Org admin only.
func (h *OrgHandler) RevokeInvitation(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())
	studentID := chi.URLParam(r, "studentID")

	if err := h.invitations.Revoke(r.Context(), authCtx.OrgID, studentID); err != nil {
		h.handleError(w, err)
		return
	}

	h.logger.Info("invitation_revoked",
		"org_id", authCtx.OrgID,
		"student_id", studentID,
	)

	w.WriteHeader(http.StatusNoContent)
}

// SearchStudents handles GET /api/v1/org/students?q=&limit=. Org admin only.
func (h *OrgHandler) SearchStudents(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())
	query := r.URL.Query()

	limit := 0
	if l := query.Get("limit"); l != "" {
		limit, _ = strconv.Atoi(l)
	}

	students, err := h.orgs.SearchStudents(r.Context(), authCtx.OrgID, query.Get("q"), limit)
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"students": students,
		"total":    len(students),
	})
}

// MyInvitations handles GET /api/v1/invitations. Student only.
func (h *OrgHandler) MyInvitations(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())

	invs, err := h.invitations.ListForStudent(r.Context(), authCtx.UserID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"invitations": invs})
}

// AcceptInvitation handles POST /api/v1/invitations/{orgID}/accept. Student only.
func (h *OrgHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())
	orgID := chi.URLParam(r, "orgID")

	inv, err := h.invitations.Accept(r.Context(), orgID, authCtx.UserID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.logger.Info("invitation_accepted",
		"org_id", orgID,
		"student_id", authCtx.UserID,
	)

	writeJSON(w, http.StatusOK, inv)
}

// RejectInvitation handles POST /api/v1/invitations/{orgID}/reject. Student only.
func (h *OrgHandler) RejectInvitation(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())
	orgID := chi.URLParam(r, "orgID")

	inv, err := h.invitations.Reject(r.Context(), orgID, authCtx.UserID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.logger.Info("invitation_rejected",
		"org_id", orgID,
		"student_id", authCtx.UserID,
	)

	writeJSON(w, http.StatusOK, inv)
}

// ListUsers handles GET /api/v1/admin/users?limit=&offset=. Platform admin only.
func (h *OrgHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))

	users, err := h.orgs.ListUsers(r.Context(), limit, offset)
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"total": len(users),
	})
}

// handleError maps org and invitation service errors to HTTP responses.
func (h *OrgHandler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrOrgNotFound):
		writeError(w, http.StatusNotFound, "ORG_NOT_FOUND", "Organization not found")
	case errors.Is(err, service.ErrInvitationNotFound):
		writeError(w, http.StatusNotFound, "INVITATION_NOT_FOUND", "Invitation not found")
	case errors.Is(err, service.ErrStudentNotFound):
		writeError(w, http.StatusNotFound, "STUDENT_NOT_FOUND", "No student account with that email")
	case errors.Is(err, service.ErrNotAStudent):
		writeError(w, http.StatusUnprocessableEntity, "NOT_A_STUDENT", "Account is not a student")
	case errors.Is(err, service.ErrInvitationSettled):
		writeError(w, http.StatusConflict, "INVITATION_SETTLED", "Invitation has already been accepted or rejected")
	default:
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
