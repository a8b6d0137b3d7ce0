package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	tests := []struct {
		name           string
		allowedOrigins []string
		requestOrigin  string
		method         string
		wantStatus     int
		wantHeader     string
	}{
		{
			name:           "no origins configured blocks all",
			allowedOrigins: []string{},
			requestOrigin:  "https://portal.example.com",
			method:         http.MethodGet,
			wantStatus:     http.StatusOK,
			wantHeader:     "", // No CORS header
		},
		{
			name:           "allowed origin gets header",
			allowedOrigins: []string{"https://portal.example.com"},
			requestOrigin:  "https://portal.example.com",
			method:         http.MethodGet,
			wantStatus:     http.StatusOK,
			wantHeader:     "https://portal.example.com",
		},
		{
			name:           "disallowed origin blocked on preflight",
			allowedOrigins: []string{"https://portal.example.com"},
			requestOrigin:  "https://evil.com",
			method:         http.MethodOptions,
			wantStatus:     http.StatusForbidden,
			wantHeader:     "",
		},
		{
			name:           "preflight returns no content",
			allowedOrigins: []string{"https://portal.example.com"},
			requestOrigin:  "https://portal.example.com",
			method:         http.MethodOptions,
			wantStatus:     http.StatusNoContent,
			wantHeader:     "https://portal.example.com",
		},
		{
			name:           "wildcard subdomain match",
			allowedOrigins: []string{"*.example.com"},
			requestOrigin:  "https://app.example.com",
			method:         http.MethodGet,
			wantStatus:     http.StatusOK,
			wantHeader:     "https://app.example.com",
		},
		{
			name:           "wildcard matches nested subdomain",
			allowedOrigins: []string{"*.example.com"},
			requestOrigin:  "https://api.staging.example.com",
			method:         http.MethodGet,
			wantStatus:     http.StatusOK,
			wantHeader:     "https://api.staging.example.com",
		},
		{
			name:           "wildcard does not match apex domain",
			allowedOrigins: []string{"*.example.com"},
			requestOrigin:  "https://example.com",
			method:         http.MethodOptions,
			wantStatus:     http.StatusForbidden,
			wantHeader:     "",
		},
		{
			name:           "wildcard does not match partial domain",
			allowedOrigins: []string{"*.example.com"},
			requestOrigin:  "https://notexample.com",
			method:         http.MethodOptions,
			wantStatus:     http.StatusForbidden,
			wantHeader:     "",
		},
		{
			name:           "no origin header skips CORS",
			allowedOrigins: []string{"https://portal.example.com"},
			requestOrigin:  "",
			method:         http.MethodGet,
			wantStatus:     http.StatusOK,
			wantHeader:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCORSConfig()
			cfg.AllowedOrigins = tt.allowedOrigins

			handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/", nil)
			if tt.requestOrigin != "" {
				req.Header.Set("Origin", tt.requestOrigin)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantHeader {
				t.Errorf("expected Allow-Origin %q, got %q", tt.wantHeader, got)
			}
		})
	}
}

func TestCORS_CredentialsHeader(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://portal.example.com"}

	handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://portal.example.com")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("expected credentials header true, got %q", got)
	}
}
