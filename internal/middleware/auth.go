package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ezcommon/apply-portal/internal/auth"
	"github.com/ezcommon/apply-portal/internal/cache"
)

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger *slog.Logger
	Issuer *auth.TokenIssuer
	Cache  *cache.Cache
}

// Auth returns a middleware that authenticates API requests.
// It extracts the bearer token from the Authorization header, verifies
// the JWT, checks the revocation list and injects the auth context into
// the request.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", "missing_token"),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			authCtx, err := cfg.Issuer.VerifyAccessToken(token)
			if err != nil {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", authFailureReason(err)),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			// Logout revokes tokens before their natural expiry.
			revoked, err := cfg.Cache.IsAccessTokenRevoked(r.Context(), auth.QuickHash(token))
			if err != nil {
				cfg.Logger.Error("revocation check failed",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				// Fail closed: a token we cannot check is a token we do not trust
				writeAuthError(w)
				return
			}
			if revoked {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", "revoked_token"),
					slog.String("user_id", authCtx.UserID),
					slog.String("ip", r.RemoteAddr),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			ctx := auth.ContextWithAuth(r.Context(), authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authFailureReason maps verification errors to log-safe reason strings.
func authFailureReason(err error) string {
	switch err {
	case auth.ErrExpiredToken:
		return "expired_token"
	case auth.ErrWrongTokenType:
		return "wrong_token_type"
	default:
		return "invalid_token"
	}
}

// extractBearerToken extracts the bearer token from the Authorization header.
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// writeAuthError writes a 401 Unauthorized response.
// Uses the same message for all auth failures to prevent enumeration.
func writeAuthError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"Invalid or missing credentials"}}`))
}
