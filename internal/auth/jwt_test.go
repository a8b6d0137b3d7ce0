package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/ezcommon/apply-portal/internal/model"
)

func testUser() *model.User {
	return &model.User{
		ID:    "user-123",
		Email: "student@example.com",
		Role:  model.RoleStudent,
	}
}

func TestTokenIssuer_AccessRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", 30*time.Minute, 720*time.Hour)

	user := testUser()
	user.Role = model.RoleOrgAdmin
	user.OrgID = "org_abc123"

	token, err := issuer.IssueAccessToken(user)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	authCtx, err := issuer.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if authCtx.UserID != user.ID {
		t.Errorf("expected user ID %q, got %q", user.ID, authCtx.UserID)
	}
	if authCtx.Email != user.Email {
		t.Errorf("expected email %q, got %q", user.Email, authCtx.Email)
	}
	if authCtx.Role != model.RoleOrgAdmin {
		t.Errorf("expected role org_admin, got %q", authCtx.Role)
	}
	if authCtx.OrgID != "org_abc123" {
		t.Errorf("expected org ID org_abc123, got %q", authCtx.OrgID)
	}
}

func TestTokenIssuer_RefreshRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", 30*time.Minute, 720*time.Hour)

	token, err := issuer.IssueRefreshToken("user-123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	userID, err := issuer.VerifyRefreshToken(token)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if userID != "user-123" {
		t.Errorf("expected user-123, got %q", userID)
	}
}

func TestTokenIssuer_WrongTokenType(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", 30*time.Minute, 720*time.Hour)

	access, err := issuer.IssueAccessToken(testUser())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	refresh, err := issuer.IssueRefreshToken("user-123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if _, err := issuer.VerifyRefreshToken(access); !errors.Is(err, ErrWrongTokenType) {
		t.Errorf("expected ErrWrongTokenType, got %v", err)
	}
	if _, err := issuer.VerifyAccessToken(refresh); !errors.Is(err, ErrWrongTokenType) {
		t.Errorf("expected ErrWrongTokenType, got %v", err)
	}
}

func TestTokenIssuer_ExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", -1*time.Minute, 720*time.Hour)

	token, err := issuer.IssueAccessToken(testUser())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if _, err := issuer.VerifyAccessToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestTokenIssuer_WrongSecret(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", 30*time.Minute, 720*time.Hour)
	other := NewTokenIssuer("other-secret", 30*time.Minute, 720*time.Hour)

	token, err := issuer.IssueAccessToken(testUser())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if _, err := other.VerifyAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenIssuer_Garbage(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", 30*time.Minute, 720*time.Hour)

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := issuer.VerifyAccessToken(token); err == nil {
			t.Errorf("expected error for token %q", token)
		}
	}
}
