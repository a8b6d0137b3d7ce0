//go:build integration

package notify

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/ezcommon/apply-portal/internal/model"
	"github.com/ezcommon/apply-portal/internal/testutil"
)

// ============================================================================
// Webhook Repository Integration Tests
// ============================================================================

func TestIntegrationNotify_EndpointLifecycle(t *testing.T) {
	ctx, repo := newNotifyTestEnv(t)

	orgID := testutil.UniqueID("org")
	endpoint := testutil.NewTestEndpoint(t, orgID)

	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	retrieved, err := repo.GetEndpoint(ctx, endpoint.ID)
	if err != nil {
		t.Fatalf("GetEndpoint failed: %v", err)
	}
	if retrieved.OrgID != orgID {
		t.Errorf("OrgID mismatch: got %q, want %q", retrieved.OrgID, orgID)
	}
	if !retrieved.Enabled {
		t.Error("endpoint should be enabled")
	}

	if err := repo.DeleteEndpoint(ctx, endpoint.ID); err != nil {
		t.Fatalf("DeleteEndpoint failed: %v", err)
	}
	if _, err := repo.GetEndpoint(ctx, endpoint.ID); !errors.Is(err, ErrEndpointNotFound) {
		t.Errorf("expected ErrEndpointNotFound after delete, got: %v", err)
	}
}

func TestIntegrationNotify_SubscribedEndpoints(t *testing.T) {
	ctx, repo := newNotifyTestEnv(t)

	orgID := testutil.UniqueID("org")

	subscribed := testutil.NewTestEndpoint(t, orgID)
	subscribed.EventTypes = []model.EventType{model.EventTypeInvitationAccepted}

	otherEvent := testutil.NewTestEndpoint(t, orgID)
	otherEvent.EventTypes = []model.EventType{model.EventTypeParseCompleted}

	disabled := testutil.NewTestEndpoint(t, orgID)
	disabled.EventTypes = []model.EventType{model.EventTypeInvitationAccepted}
	disabled.Enabled = false

	otherOrg := testutil.NewTestEndpoint(t, testutil.UniqueID("org"))
	otherOrg.EventTypes = []model.EventType{model.EventTypeInvitationAccepted}

	for _, ep := range []*model.WebhookEndpoint{subscribed, otherEvent, disabled, otherOrg} {
		if err := repo.CreateEndpoint(ctx, ep); err != nil {
			t.Fatalf("CreateEndpoint failed: %v", err)
		}
	}

	got, err := repo.SubscribedEndpoints(ctx, orgID, model.EventTypeInvitationAccepted)
	if err != nil {
		t.Fatalf("SubscribedEndpoints failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != subscribed.ID {
		t.Errorf("fan-out set = %+v, want only the subscribed enabled endpoint", got)
	}
}

func TestIntegrationNotify_ClaimDueDeliveries(t *testing.T) {
	ctx, repo := newNotifyTestEnv(t)

	orgID := testutil.UniqueID("org")
	endpoint := testutil.NewTestEndpoint(t, orgID)
	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	due := newTestDelivery(t, endpoint.ID)
	due.NextRetryAt = time.Now().Add(-time.Minute)

	notYet := newTestDelivery(t, endpoint.ID)
	notYet.NextRetryAt = time.Now().Add(time.Hour)

	for _, d := range []*model.WebhookDelivery{due, notYet} {
		if err := repo.CreateDelivery(ctx, d); err != nil {
			t.Fatalf("CreateDelivery failed: %v", err)
		}
	}

	claimed, err := repo.ClaimDueDeliveries(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("ClaimDueDeliveries failed: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != due.ID {
		t.Errorf("claimed = %+v, want only the due delivery", claimed)
	}
}

func TestIntegrationNotify_DuplicateEventIsNoop(t *testing.T) {
	ctx, repo := newNotifyTestEnv(t)

	endpoint := testutil.NewTestEndpoint(t, testutil.UniqueID("org"))
	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	first := newTestDelivery(t, endpoint.ID)
	if err := repo.CreateDelivery(ctx, first); err != nil {
		t.Fatalf("CreateDelivery failed: %v", err)
	}

	// Same event republished to the same endpoint.
	dup := newTestDelivery(t, endpoint.ID)
	dup.EventID = first.EventID
	if err := repo.CreateDelivery(ctx, dup); err != nil {
		t.Fatalf("CreateDelivery (duplicate) failed: %v", err)
	}

	backlog, err := repo.DeliveryBacklog(ctx)
	if err != nil {
		t.Fatalf("DeliveryBacklog failed: %v", err)
	}
	if backlog != 1 {
		t.Errorf("backlog = %d, want 1 (duplicate must not enqueue)", backlog)
	}
}

func TestIntegrationNotify_ListDeliveries_OrgScoped(t *testing.T) {
	ctx, repo := newNotifyTestEnv(t)

	orgID := testutil.UniqueID("org")
	endpoint := testutil.NewTestEndpoint(t, orgID)
	otherEndpoint := testutil.NewTestEndpoint(t, testutil.UniqueID("org"))

	for _, ep := range []*model.WebhookEndpoint{endpoint, otherEndpoint} {
		if err := repo.CreateEndpoint(ctx, ep); err != nil {
			t.Fatalf("CreateEndpoint failed: %v", err)
		}
	}

	mine := newTestDelivery(t, endpoint.ID)
	theirs := newTestDelivery(t, otherEndpoint.ID)
	for _, d := range []*model.WebhookDelivery{mine, theirs} {
		if err := repo.CreateDelivery(ctx, d); err != nil {
			t.Fatalf("CreateDelivery failed: %v", err)
		}
	}

	got, total, err := repo.ListDeliveries(ctx, orgID, DeliveryFilter{Limit: 10})
	if err != nil {
		t.Fatalf("ListDeliveries failed: %v", err)
	}
	if total != 1 || len(got) != 1 || got[0].ID != mine.ID {
		t.Errorf("ListDeliveries = %+v (total %d), want only this org's delivery", got, total)
	}

	failedOnly, _, err := repo.ListDeliveries(ctx, orgID, DeliveryFilter{
		Statuses: []string{string(model.DeliveryStatusFailed)},
		Limit:    10,
	})
	if err != nil {
		t.Fatalf("ListDeliveries (status filter) failed: %v", err)
	}
	if len(failedOnly) != 0 {
		t.Errorf("status filter returned %d rows, want 0", len(failedOnly))
	}
}

func TestIntegrationNotify_RequeueDelivery_OrgScoped(t *testing.T) {
	ctx, repo := newNotifyTestEnv(t)

	orgID := testutil.UniqueID("org")
	endpoint := testutil.NewTestEndpoint(t, orgID)
	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	delivery := newTestDelivery(t, endpoint.ID)
	if err := repo.CreateDelivery(ctx, delivery); err != nil {
		t.Fatalf("CreateDelivery failed: %v", err)
	}

	status := 503
	if err := repo.MarkFailed(ctx, delivery.ID, &status, "service unavailable", time.Now(), true); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	// Another org cannot requeue it.
	if err := repo.RequeueDelivery(ctx, testutil.UniqueID("org"), delivery.ID); !errors.Is(err, ErrDeliveryNotFound) {
		t.Errorf("cross-org requeue: expected ErrDeliveryNotFound, got %v", err)
	}

	if err := repo.RequeueDelivery(ctx, orgID, delivery.ID); err != nil {
		t.Fatalf("RequeueDelivery failed: %v", err)
	}

	claimed, err := repo.ClaimDueDeliveries(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("ClaimDueDeliveries failed: %v", err)
	}
	if len(claimed) != 1 || claimed[0].Status != model.DeliveryStatusPending {
		t.Errorf("requeued delivery not claimable: %+v", claimed)
	}
}

// ============================================================================
// Test Environment Setup
// ============================================================================

func newTestDelivery(t *testing.T, endpointID string) *model.WebhookDelivery {
	t.Helper()
	now := time.Now().UTC()
	return &model.WebhookDelivery{
		ID:          testutil.UniqueID("del"),
		EndpointID:  endpointID,
		EventID:     testutil.UniqueID("evt"),
		EventType:   model.EventTypeInvitationAccepted,
		PayloadJSON: `{"event_type":"invitation.accepted","data":{}}`,
		Status:      model.DeliveryStatusPending,
		MaxAttempts: DefaultMaxAttempts,
		NextRetryAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func newNotifyTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping db: %v", err)
	}

	// testutil.ResetSchema wants a pgxpool; this package is on
	// database/sql, so apply the migration files directly.
	root, err := testutil.ProjectRoot()
	if err != nil {
		t.Fatalf("ProjectRoot failed: %v", err)
	}
	for _, suffix := range []string{".down.sql", ".up.sql"} {
		script, err := os.ReadFile(filepath.Join(root, "migrations", "000007_webhooks"+suffix))
		if err != nil {
			t.Fatalf("read migration: %v", err)
		}
		if _, err := db.ExecContext(ctx, string(script)); err != nil {
			t.Fatalf("apply migration %s: %v", suffix, err)
		}
	}

	return ctx, NewRepository(db)
}
