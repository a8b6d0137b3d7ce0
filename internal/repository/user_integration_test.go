//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ezcommon/apply-portal/internal/model"
	"github.com/ezcommon/apply-portal/internal/testutil"
)

// ============================================================================
// User Repository Integration Tests
// ============================================================================

func TestIntegrationUserRepository_CreateUser(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	user := testutil.NewTestUser(t, testutil.UniqueEmail("create"))

	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	retrieved, err := repo.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}

	if retrieved.Email != user.Email {
		t.Errorf("Email mismatch: got %q, want %q", retrieved.Email, user.Email)
	}
	if retrieved.Role != model.RoleStudent {
		t.Errorf("Role mismatch: got %q, want %q", retrieved.Role, model.RoleStudent)
	}
	if retrieved.OrgID != "" {
		t.Errorf("Expected empty OrgID for unaffiliated student, got %q", retrieved.OrgID)
	}
}

func TestIntegrationUserRepository_CreateUser_DuplicateEmail(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	email := testutil.UniqueEmail("dup")
	user1 := testutil.NewTestUser(t, email)
	user2 := testutil.NewTestUser(t, email)
	user2.ID = testutil.UniqueID("user2")

	if err := repo.CreateUser(ctx, user1); err != nil {
		t.Fatalf("CreateUser (first) failed: %v", err)
	}

	err := repo.CreateUser(ctx, user2)
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("Expected ErrEmailExists, got: %v", err)
	}
}

func TestIntegrationUserRepository_GetByEmail_NotFound(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	_, err := repo.GetUserByEmail(ctx, "nobody@example.com")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got: %v", err)
	}
}

func TestIntegrationUserRepository_UpdateUser_OrgAssignment(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	user := testutil.NewTestUser(t, testutil.UniqueEmail("assign"))
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	user.OrgID = testutil.UniqueID("org")
	user.UpdatedAt = time.Now().UTC()
	if err := repo.UpdateUser(ctx, user); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}

	retrieved, err := repo.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if retrieved.OrgID != user.OrgID {
		t.Errorf("OrgID not updated: got %q, want %q", retrieved.OrgID, user.OrgID)
	}

	// Clearing the org maps back to a NULL column.
	user.OrgID = ""
	user.UpdatedAt = time.Now().UTC()
	if err := repo.UpdateUser(ctx, user); err != nil {
		t.Fatalf("UpdateUser (clear org) failed: %v", err)
	}

	retrieved, err = repo.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if retrieved.OrgID != "" {
		t.Errorf("Expected empty OrgID after clearing, got %q", retrieved.OrgID)
	}
}

func TestIntegrationUserRepository_DeleteUser_SoftDelete(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	email := testutil.UniqueEmail("delete")
	user := testutil.NewTestUser(t, email)

	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	if err := repo.DeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}

	// Soft-deleted users disappear from lookups.
	if _, err := repo.GetUserByID(ctx, user.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound after soft delete, got: %v", err)
	}
	if _, err := repo.GetUserByEmail(ctx, email); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound by email after soft delete, got: %v", err)
	}

	// The email is freed for re-registration.
	replacement := testutil.NewTestUser(t, email)
	replacement.ID = testutil.UniqueID("user2")
	if err := repo.CreateUser(ctx, replacement); err != nil {
		t.Errorf("CreateUser with freed email failed: %v", err)
	}
}

func TestIntegrationUserRepository_ListUsers_Pagination(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	for i := 0; i < 5; i++ {
		user := testutil.NewTestUser(t, testutil.UniqueEmail("page"))
		if err := repo.CreateUser(ctx, user); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
		time.Sleep(1 * time.Millisecond) // Ensure different created_at
	}

	page1, err := repo.ListUsers(ctx, 3, 0)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(page1) != 3 {
		t.Errorf("Expected 3 users on page 1, got %d", len(page1))
	}

	page2, err := repo.ListUsers(ctx, 3, 3)
	if err != nil {
		t.Fatalf("ListUsers (page 2) failed: %v", err)
	}
	if len(page2) != 2 {
		t.Errorf("Expected 2 users on page 2, got %d", len(page2))
	}

	for _, u1 := range page1 {
		for _, u2 := range page2 {
			if u1.ID == u2.ID {
				t.Errorf("Duplicate user ID across pages: %s", u1.ID)
			}
		}
	}
}

// ============================================================================
// Test Environment Setup
// ============================================================================

func newUserTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetSchema(ctx, repo.Pool(), "000001_users"); err != nil {
		t.Fatalf("reset users schema: %v", err)
	}

	return ctx, repo
}
