// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ezcommon/apply-portal/internal/auth"
	"github.com/ezcommon/apply-portal/internal/cache"
	"github.com/ezcommon/apply-portal/internal/model"
	"github.com/ezcommon/apply-portal/internal/repository"
)

// Service errors.
var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidRefresh     = errors.New("invalid refresh token")
	ErrUserNotFound       = errors.New("user not found")
)

const minPasswordLength = 8

// AuthService handles account and session business logic.
type AuthService struct {
	repo   *repository.Repository
	cache  *cache.Cache
	issuer *auth.TokenIssuer
}

// NewAuthService creates a new AuthService.
func NewAuthService(repo *repository.Repository, cache *cache.Cache, issuer *auth.TokenIssuer) *AuthService {
	return &AuthService{
		repo:   repo,
		cache:  cache,
		issuer: issuer,
	}
}

// TokenResponse is the session envelope returned by register, login and
// refresh.
type TokenResponse struct {
	AccessToken      string      `json:"access_token"`
	RefreshToken     string      `json:"refresh_token"`
	TokenType        string      `json:"token_type"`
	ExpiresIn        int64       `json:"expires_in"`
	RefreshExpiresIn int64       `json:"refresh_expires_in"`
	User             *model.User `json:"user"`
}

// RegisterInput defines input for registering an account.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Role     model.Role
	OrgName  string // Optional; org_admin registrations only
}

// Register creates an account and opens a session. Registering an
// org_admin also provisions the organization the account administers.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*TokenResponse, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(input.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	role := input.Role
	if role == "" {
		role = model.RoleStudent
	}
	// Platform admins are provisioned out of band, never self-registered.
	if role != model.RoleStudent && role != model.RoleOrgAdmin {
		return nil, ErrInvalidRole
	}

	passwordHash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(input.Name),
		Role:         role,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if role == model.RoleOrgAdmin {
		user.OrgID = newOrgID()
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if role == model.RoleOrgAdmin {
		orgName := strings.TrimSpace(input.OrgName)
		if orgName == "" {
			orgName = user.Name + "'s Organization"
		}
		org := &model.Org{
			ID:          user.OrgID,
			Name:        orgName,
			AdminUserID: user.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.CreateOrg(ctx, org); err != nil {
			return nil, fmt.Errorf("provision org: %w", err)
		}
	}

	return s.openSession(ctx, user)
}

// Login verifies credentials and opens a session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Same error as a wrong password to prevent enumeration.
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	return s.openSession(ctx, user)
}

// Refresh rotates a refresh token, returning a fresh session. The old
// refresh token is invalidated whether or not rotation succeeds.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	userID, err := s.issuer.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefresh
	}

	// Server-side tracking: a token absent from the active set has been
	// rotated or revoked even if its signature still verifies.
	tokenHash := auth.QuickHash(refreshToken)
	storedUser, err := s.cache.RefreshTokenUser(ctx, tokenHash)
	if err != nil {
		return nil, fmt.Errorf("look up refresh token: %w", err)
	}
	if storedUser == "" || storedUser != userID {
		return nil, ErrInvalidRefresh
	}

	if err := s.cache.DeleteRefreshToken(ctx, tokenHash); err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}

	return s.openSession(ctx, user)
}

// Logout revokes the session's access token and drops the refresh token
// from the active set.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken != "" {
		// The denylist only needs to outlive the token itself.
		if err := s.cache.RevokeAccessToken(ctx, auth.QuickHash(accessToken), s.issuer.AccessTTL()); err != nil {
			return fmt.Errorf("revoke access token: %w", err)
		}
	}
	if refreshToken != "" {
		if err := s.cache.DeleteRefreshToken(ctx, auth.QuickHash(refreshToken)); err != nil {
			return fmt.Errorf("delete refresh token: %w", err)
		}
	}
	return nil
}

// CurrentUser loads the authenticated user's account.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// openSession issues a token pair and records the refresh token.
func (s *AuthService) openSession(ctx context.Context, user *model.User) (*TokenResponse, error) {
	accessToken, err := s.issuer.IssueAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken, err := s.issuer.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	if err := s.cache.StoreRefreshToken(ctx, auth.QuickHash(refreshToken), user.ID, s.issuer.RefreshTTL()); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &TokenResponse{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		TokenType:        "bearer",
		ExpiresIn:        int64(s.issuer.AccessTTL().Seconds()),
		RefreshExpiresIn: int64(s.issuer.RefreshTTL().Seconds()),
		User:             user,
	}, nil
}

// newOrgID generates an organization ID: org_ + 32 hex chars.
func newOrgID() string {
	return "org_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
