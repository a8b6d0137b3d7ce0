package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantKept   bool
		wantFresh  bool
		wantTraced string
	}{
		{
			name:     "well-formed inbound ID is kept",
			header:   "portal-retry-01HZX4",
			wantKept: true,
		},
		{
			name:      "missing ID gets a fresh one",
			wantFresh: true,
		},
		{
			name:      "oversized ID is replaced",
			header:    strings.Repeat("a", maxIDLength+1),
			wantFresh: true,
		},
		{
			name:      "ID with control characters is replaced",
			header:    "bad\nid",
			wantFresh: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ctxID string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctxID = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			echoed := rec.Header().Get(RequestIDHeader)
			if echoed == "" || echoed != ctxID {
				t.Fatalf("header %q and context %q must carry the same ID", echoed, ctxID)
			}
			if tt.wantKept && echoed != tt.header {
				t.Errorf("ID = %q, want the inbound %q", echoed, tt.header)
			}
			if tt.wantFresh && echoed == tt.header {
				t.Errorf("ID = %q, want a generated replacement", echoed)
			}
		})
	}
}

func TestRequestID_TraceIDEchoedWhenValid(t *testing.T) {
	var ctxTrace string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxTrace = GetTraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceIDHeader, "trace-abc123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if ctxTrace != "trace-abc123" {
		t.Errorf("context trace ID = %q, want trace-abc123", ctxTrace)
	}
	if got := rec.Header().Get(TraceIDHeader); got != "trace-abc123" {
		t.Errorf("echoed trace ID = %q, want trace-abc123", got)
	}
}

func TestValidCorrelationID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"01HZX4QJ9W", true},
		{"", false},
		{"has space", false},
		{"tab\tid", false},
		{"non-ascii-\xc3\xa9", false},
		{strings.Repeat("x", maxIDLength), true},
		{strings.Repeat("x", maxIDLength+1), false},
	}
	for _, tc := range cases {
		if got := validCorrelationID(tc.id); got != tc.want {
			t.Errorf("validCorrelationID(%q) = %v, want %v", tc.id, got, tc.want)
		}
	}
}
