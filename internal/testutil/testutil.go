// Package testutil provides helpers for integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ezcommon/apply-portal/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 731731

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema drops and recreates one migration's schema for tests.
// The name is the migration file stem, e.g. "000004_parse_jobs".
func ResetSchema(ctx context.Context, pool *pgxpool.Pool, name string) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	downSQL, err := os.ReadFile(filepath.Join(root, "migrations", name+".down.sql"))
	if err != nil {
		return fmt.Errorf("read down migration: %w", err)
	}
	if _, err := pool.Exec(ctx, string(downSQL)); err != nil {
		return fmt.Errorf("apply down migration: %w", err)
	}

	upSQL, err := os.ReadFile(filepath.Join(root, "migrations", name+".up.sql"))
	if err != nil {
		return fmt.Errorf("read up migration: %w", err)
	}
	if _, err := pool.Exec(ctx, string(upSQL)); err != nil {
		return fmt.Errorf("apply up migration: %w", err)
	}

	return nil
}

// ResetAllSchemas drops and recreates every table. Down migrations run
// in reverse order so foreign keys unwind cleanly.
func ResetAllSchemas(ctx context.Context, pool *pgxpool.Pool) error {
	names := []string{
		"000001_users",
		"000002_orgs",
		"000003_invitations",
		"000004_parse_jobs",
		"000005_form_outputs",
		"000006_activity",
		"000007_webhooks",
	}

	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	for i := len(names) - 1; i >= 0; i-- {
		downSQL, err := os.ReadFile(filepath.Join(root, "migrations", names[i]+".down.sql"))
		if err != nil {
			return fmt.Errorf("read down migration: %w", err)
		}
		if _, err := pool.Exec(ctx, string(downSQL)); err != nil {
			return fmt.Errorf("apply down migration %s: %w", names[i], err)
		}
	}

	for _, name := range names {
		upSQL, err := os.ReadFile(filepath.Join(root, "migrations", name+".up.sql"))
		if err != nil {
			return fmt.Errorf("read up migration: %w", err)
		}
		if _, err := pool.Exec(ctx, string(upSQL)); err != nil {
			return fmt.Errorf("apply up migration %s: %w", name, err)
		}
	}

	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestUser creates a test student with sensible defaults.
func NewTestUser(t testing.TB, email string) *model.User {
	t.Helper()
	now := time.Now().UTC()
	return &model.User{
		ID:           UniqueID("user"),
		Email:        email,
		Name:         "Test Student",
		Role:         model.RoleStudent,
		PasswordHash: "$argon2id$test-hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewTestOrgAdmin creates a test org admin bound to an org.
func NewTestOrgAdmin(t testing.TB, email, orgID string) *model.User {
	t.Helper()
	user := NewTestUser(t, email)
	user.Name = "Test Admin"
	user.Role = model.RoleOrgAdmin
	user.OrgID = orgID
	return user
}

// NewTestOrg creates a test organization.
func NewTestOrg(t testing.TB, adminUserID string) *model.Org {
	t.Helper()
	now := time.Now().UTC()
	return &model.Org{
		ID:          UniqueID("org"),
		Name:        "Test Organization",
		AdminUserID: adminUserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewTestParseJob creates a queued parse job for a user.
func NewTestParseJob(t testing.TB, userID string) *model.ParseJob {
	t.Helper()
	now := time.Now().UTC()
	return &model.ParseJob{
		ID:        UniqueID("job"),
		UserID:    userID,
		S3Key:     fmt.Sprintf("user-uploads/%s/profile/test.pdf", userID),
		Section:   "profile",
		Status:    model.ParseJobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTestEndpoint creates a test webhook endpoint for an org.
func NewTestEndpoint(t testing.TB, orgID string) *model.WebhookEndpoint {
	t.Helper()
	now := time.Now().UTC()
	return &model.WebhookEndpoint{
		ID:         UniqueID("ep"),
		OrgID:      orgID,
		TargetURL:  "https://example.com/hooks",
		Secret:     "whsec_testsecret",
		Enabled:    true,
		EventTypes: model.ValidEventTypes,
		Name:       "Test Endpoint",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// UniqueEmail generates a unique email address for tests.
func UniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@example.com", prefix, time.Now().UnixNano())
}
