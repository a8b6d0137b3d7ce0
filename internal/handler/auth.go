package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ezcommon/apply-portal/internal/auth"
	"github.com/ezcommon/apply-portal/internal/handler/dto"
	"github.com/ezcommon/apply-portal/internal/model"
	"github.com/ezcommon/apply-portal/internal/service"
)

// AuthHandler handles account and session endpoints.
type AuthHandler struct {
	svc    *service.AuthService
	logger *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	tokens, err := h.svc.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     model.Role(req.Role),
		OrgName:  req.OrgName,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.logger.Info("user_registered",
		"user_id", tokens.User.ID,
		"role", string(tokens.User.Role),
	)

	writeJSON(w, http.StatusCreated, tokens)
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	tokens, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.logger.Info("user_logged_in", "user_id", tokens.User.ID)

	writeJSON(w, http.StatusOK, tokens)
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "MISSING_TOKEN", "refresh_token is required")
		return
	}

	tokens, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

// Logout handles POST /api/v1/auth/logout. Requires auth.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req dto.LogoutRequest
	// Body is optional; without a refresh token only the access token
	// is revoked.
	_ = json.NewDecoder(r.Body).Decode(&req)

	accessToken := bearerToken(r)
	if err := h.svc.Logout(r.Context(), accessToken, req.RefreshToken); err != nil {
		h.handleError(w, err)
		return
	}

	h.logger.Info("user_logged_out", "user_id", auth.UserIDFromContext(r.Context()))

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Me handles GET /api/v1/auth/me. Requires auth.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())

	user, err := h.svc.CurrentUser(r.Context(), authCtx.UserID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleError maps auth service errors to HTTP responses.
func (h *AuthHandler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "INVALID_EMAIL", "Invalid email address")
	case errors.Is(err, service.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, "WEAK_PASSWORD", "Password must be at least 8 characters")
	case errors.Is(err, service.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, "INVALID_ROLE", "Role must be student or org_admin")
	case errors.Is(err, service.ErrEmailTaken):
		writeError(w, http.StatusConflict, "EMAIL_TAKEN", "Email already registered")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
	case errors.Is(err, service.ErrInvalidRefresh):
		writeError(w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Refresh token is invalid or expired")
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	default:
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

// bearerToken extracts the bearer token from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
