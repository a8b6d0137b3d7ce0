package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ezcommon/apply-portal/internal/auth"
	"github.com/ezcommon/apply-portal/internal/model"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestWithRole(role model.Role) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := auth.ContextWithAuth(r.Context(), &model.AuthContext{
		UserID: "user-1",
		Role:   role,
	})
	return r.WithContext(ctx)
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name       string
		middleware func(http.Handler) http.Handler
		role       model.Role
		wantStatus int
	}{
		{"student passes student gate", RequireStudent(), model.RoleStudent, http.StatusOK},
		{"org admin blocked at student gate", RequireStudent(), model.RoleOrgAdmin, http.StatusForbidden},
		{"org admin passes org gate", RequireOrgAdmin(), model.RoleOrgAdmin, http.StatusOK},
		{"student blocked at org gate", RequireOrgAdmin(), model.RoleStudent, http.StatusForbidden},
		{"admin passes any gate", RequireStudent(), model.RoleAdmin, http.StatusOK},
		{"admin passes admin gate", RequireAdmin(), model.RoleAdmin, http.StatusOK},
		{"student blocked at admin gate", RequireAdmin(), model.RoleStudent, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.middleware(okHandler()).ServeHTTP(rec, requestWithRole(tt.role))

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestRequireRole_NoAuthContext(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	RequireOrgAdmin()(okHandler()).ServeHTTP(rec, r)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestRequireRole_MultipleRoles(t *testing.T) {
	mw := RequireRole(model.RoleStudent, model.RoleOrgAdmin)

	for _, role := range []model.Role{model.RoleStudent, model.RoleOrgAdmin} {
		rec := httptest.NewRecorder()
		mw(okHandler()).ServeHTTP(rec, requestWithRole(role))
		if rec.Code != http.StatusOK {
			t.Errorf("expected role %q to pass, got %d", role, rec.Code)
		}
	}
}
