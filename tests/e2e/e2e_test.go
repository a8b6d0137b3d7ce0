//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ezcommon/apply-portal/internal/model"
)

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	User         *model.User `json:"user"`
}

type webhookCreateResponse struct {
	Endpoint *model.WebhookEndpoint `json:"endpoint"`
	Secret   string                 `json:"secret"`
}

type webhookRequest struct {
	Headers http.Header
	Body    []byte
}

func TestE2EInvitationFlow(t *testing.T) {
	baseURL := envOrDefault("APPLY_PORTAL_BASE_URL", "http://localhost:8080")

	admin := registerUser(t, baseURL, map[string]any{
		"email":    uniqueEmail("admin"),
		"password": "correct-horse42",
		"name":     "E2E Admin",
		"role":     "org_admin",
		"org_name": "E2E Prep Center",
	})
	if admin.User.OrgID == "" {
		t.Fatalf("org admin registration did not provision an org")
	}

	studentEmail := uniqueEmail("student")
	student := registerUser(t, baseURL, map[string]any{
		"email":    studentEmail,
		"password": "correct-horse42",
		"name":     "E2E Student",
	})

	// Webhook receiver registered before the accept so the delivery
	// has somewhere to land.
	webhookURL, deliveries, shutdown := startWebhookReceiver(t)
	defer shutdown()
	createWebhookEndpoint(t, baseURL, admin.AccessToken, webhookURL)

	status := doJSON(t, http.MethodPost, baseURL+"/api/v1/org/invitations",
		admin.AccessToken, map[string]any{"email": studentEmail}, nil)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 from invite, got %d", status)
	}

	var inbox struct {
		Invitations []*model.Invitation `json:"invitations"`
	}
	status = doJSON(t, http.MethodGet, baseURL+"/api/v1/invitations",
		student.AccessToken, nil, &inbox)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from invitation list, got %d", status)
	}
	if len(inbox.Invitations) != 1 {
		t.Fatalf("expected 1 invitation, got %d", len(inbox.Invitations))
	}

	orgID := inbox.Invitations[0].OrgID
	var accepted model.Invitation
	status = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/v1/invitations/%s/accept", baseURL, orgID),
		student.AccessToken, nil, &accepted)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from accept, got %d", status)
	}
	if accepted.Status != model.InvitationAccepted {
		t.Fatalf("expected accepted status, got %s", accepted.Status)
	}

	waitForWebhookDelivery(t, deliveries, student.User.ID)

	// The accepted student should now show up in the org roster.
	var roster struct {
		Students []*model.User `json:"students"`
	}
	status = doJSON(t, http.MethodGet, baseURL+"/api/v1/org/students",
		admin.AccessToken, nil, &roster)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from student search, got %d", status)
	}
	if !containsUser(roster.Students, student.User.ID) {
		t.Fatalf("accepted student missing from org roster")
	}
}

func TestE2ESessionLifecycle(t *testing.T) {
	baseURL := envOrDefault("APPLY_PORTAL_BASE_URL", "http://localhost:8080")

	session := registerUser(t, baseURL, map[string]any{
		"email":    uniqueEmail("session"),
		"password": "correct-horse42",
		"name":     "E2E Session",
	})

	// Refresh rotates the refresh token; the old one must stop working.
	var refreshed tokenResponse
	status := doJSON(t, http.MethodPost, baseURL+"/api/v1/auth/refresh", "",
		map[string]any{"refresh_token": session.RefreshToken}, &refreshed)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from refresh, got %d", status)
	}

	status = doJSON(t, http.MethodPost, baseURL+"/api/v1/auth/refresh", "",
		map[string]any{"refresh_token": session.RefreshToken}, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 replaying rotated refresh token, got %d", status)
	}

	// Logout revokes the access token.
	status = doJSON(t, http.MethodPost, baseURL+"/api/v1/auth/logout",
		refreshed.AccessToken, map[string]any{"refresh_token": refreshed.RefreshToken}, nil)
	if status >= 300 {
		t.Fatalf("expected success from logout, got %d", status)
	}

	status = doJSON(t, http.MethodGet, baseURL+"/api/v1/auth/me",
		refreshed.AccessToken, nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", status)
	}
}

// TestE2ENoSecretsEchoed validates that credentials never appear in
// response bodies.
func TestE2ENoSecretsEchoed(t *testing.T) {
	baseURL := envOrDefault("APPLY_PORTAL_BASE_URL", "http://localhost:8080")

	password := "super-secret-password-42"
	session := registerUser(t, baseURL, map[string]any{
		"email":    uniqueEmail("secrets"),
		"password": password,
		"name":     "E2E Secrets",
	})

	client := &http.Client{Timeout: 10 * time.Second}

	req, err := http.NewRequest(http.MethodGet, baseURL+"/api/v1/auth/me", nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	bodyStr := string(body)
	if strings.Contains(bodyStr, password) {
		t.Error("SECURITY: response contains the account password")
	}
	if strings.Contains(bodyStr, "password_hash") || strings.Contains(bodyStr, "$argon2id$") {
		t.Error("SECURITY: response contains the password hash")
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@example.com", prefix, time.Now().UnixNano())
}

func registerUser(t *testing.T, baseURL string, payload map[string]any) tokenResponse {
	t.Helper()

	var resp tokenResponse
	status := doJSON(t, http.MethodPost, baseURL+"/api/v1/auth/register", "", payload, &resp)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 from register, got %d", status)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" || resp.User == nil {
		t.Fatalf("register response missing fields")
	}
	return resp
}

func startWebhookReceiver(t *testing.T) (string, <-chan webhookRequest, func()) {
	t.Helper()

	received := make(chan webhookRequest, 1)

	listener, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		t.Fatalf("listen webhook: %v", err)
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		received <- webhookRequest{Headers: r.Header.Clone(), Body: body}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Handler: handler}
	go func() {
		_ = srv.Serve(listener)
	}()

	port := listener.Addr().(*net.TCPAddr).Port
	url := fmt.Sprintf("http://host.docker.internal:%d/webhook", port)

	shutdown := func() {
		_ = srv.Close()
	}

	return url, received, shutdown
}

func createWebhookEndpoint(t *testing.T, baseURL, accessToken, targetURL string) {
	t.Helper()

	payload := map[string]any{
		"target_url":  targetURL,
		"event_types": []string{"invitation.accepted"},
		"name":        "e2e-webhook",
	}

	var resp webhookCreateResponse
	status := doJSON(t, http.MethodPost, baseURL+"/api/v1/org/webhooks", accessToken, payload, &resp)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 from webhook create, got %d", status)
	}
	if resp.Endpoint == nil || resp.Secret == "" {
		t.Fatalf("webhook create response missing fields")
	}
	if !strings.HasPrefix(resp.Secret, "whsec_") {
		t.Fatalf("webhook secret missing whsec_ prefix")
	}
}

func waitForWebhookDelivery(t *testing.T, deliveries <-chan webhookRequest, studentID string) {
	t.Helper()

	select {
	case req := <-deliveries:
		if req.Headers.Get("X-Ezcommon-Signature") == "" {
			t.Fatalf("missing X-Ezcommon-Signature header")
		}
		if req.Headers.Get("X-Ezcommon-Timestamp") == "" {
			t.Fatalf("missing X-Ezcommon-Timestamp header")
		}
		if req.Headers.Get("X-Ezcommon-Delivery-Id") == "" {
			t.Fatalf("missing X-Ezcommon-Delivery-Id header")
		}

		var payload model.WebhookPayload
		if err := json.Unmarshal(req.Body, &payload); err != nil {
			t.Fatalf("decode webhook payload: %v", err)
		}
		if payload.EventType != string(model.EventTypeInvitationAccepted) {
			t.Fatalf("unexpected event_type %q", payload.EventType)
		}
		if sid, ok := payload.Data["student_id"].(string); !ok || sid != studentID {
			t.Fatalf("unexpected student_id in webhook payload")
		}
	case <-time.After(15 * time.Second):
		t.Fatalf("timed out waiting for webhook delivery")
	}
}

func containsUser(users []*model.User, id string) bool {
	for _, u := range users {
		if u.ID == id {
			return true
		}
	}
	return false
}

func doJSON(t *testing.T, method, url, accessToken string, body any, out any) int {
	t.Helper()

	var buf io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		buf = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, url, buf)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(accessToken) != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil {
		decoder := json.NewDecoder(resp.Body)
		if err := decoder.Decode(out); err != nil && resp.ContentLength != 0 {
			t.Fatalf("decode response: %v", err)
		}
	}

	return resp.StatusCode
}
