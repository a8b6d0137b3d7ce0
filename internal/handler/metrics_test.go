package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ezcommon/apply-portal/internal/metrics"
)

func TestMetricsHandler_Exposition(t *testing.T) {
	rec := metrics.NewInMemory()
	rec.IncUpload("success")
	rec.IncUpload("success")
	rec.IncUpload("failed")
	rec.ObserveUploadSize(2048)
	rec.IncParseJob("complete")
	rec.AddChunksIndexed(12)

	h := NewMetricsHandler(rec)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	h.Metrics(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	contentType := w.Header().Get("Content-Type")
	if !strings.HasPrefix(contentType, "text/plain") {
		t.Errorf("unexpected Content-Type: %s", contentType)
	}

	body := w.Body.String()
	for _, want := range []string{
		`applyportal_uploads_total{status="success"} 2`,
		`applyportal_uploads_total{status="failed"} 1`,
		`applyportal_upload_bytes_total 2048`,
		`applyportal_parse_jobs_total{status="complete"} 1`,
		`applyportal_chunks_indexed_total 12`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected body to contain %q\nbody:\n%s", want, body)
		}
	}
}

func TestMetricsHandler_NoSnapshotter(t *testing.T) {
	h := NewMetricsHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	h.Metrics(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}
