package middleware

import (
	"fmt"
	"net/http"

	"github.com/ezcommon/apply-portal/internal/auth"
	"github.com/ezcommon/apply-portal/internal/model"
)

// RequireRole returns middleware that enforces role requirements.
// Must be applied after Auth middleware.
// If multiple roles are provided, having ANY of them is sufficient.
func RequireRole(required ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := auth.AuthFromContext(r.Context())
			if authCtx == nil {
				writeRoleError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}

			// Platform admins can do everything
			if authCtx.Role == model.RoleAdmin {
				next.ServeHTTP(w, r)
				return
			}

			for _, req := range required {
				if authCtx.Role == req {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeRoleError(w, http.StatusForbidden, "FORBIDDEN",
				fmt.Sprintf("Insufficient permissions. Required role: %s", required[0]))
		})
	}
}

// RequireStudent is a convenience middleware for student-only routes.
func RequireStudent() func(http.Handler) http.Handler {
	return RequireRole(model.RoleStudent)
}

// RequireOrgAdmin is a convenience middleware for org-admin routes.
func RequireOrgAdmin() func(http.Handler) http.Handler {
	return RequireRole(model.RoleOrgAdmin)
}

// RequireAdmin is a convenience middleware for platform-admin routes.
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireRole(model.RoleAdmin)
}

// writeRoleError writes a role-related error response.
func writeRoleError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(fmt.Sprintf(`{"error":{"code":"%s","message":"%s"}}`, code, message)))
}
