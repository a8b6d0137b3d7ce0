package handler

import (
	"fmt"
	"net/http"

	"github.com/ezcommon/apply-portal/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "applyportal_uploads_total{status=\"success\"} %d\n", snap.UploadsSuccess)
	writeMetric(w, "applyportal_uploads_total{status=\"failed\"} %d\n", snap.UploadsFailed)
	writeMetric(w, "applyportal_upload_bytes_total %d\n", snap.UploadBytesTotal)

	writeMetric(w, "applyportal_parse_jobs_total{status=\"complete\"} %d\n", snap.ParseJobsComplete)
	writeMetric(w, "applyportal_parse_jobs_total{status=\"error\"} %d\n", snap.ParseJobsError)
	writeMetric(w, "applyportal_parse_duration_seconds_count %d\n", snap.ParseDurationCount)
	writeMetric(w, "applyportal_parse_duration_seconds_sum %.6f\n", float64(snap.ParseDurationTotalNs)/1e9)
	writeMetric(w, "applyportal_chunks_indexed_total %d\n", snap.ChunksIndexed)

	writeMetric(w, "applyportal_field_extractions_total{status=\"found\"} %d\n", snap.FieldsFound)
	writeMetric(w, "applyportal_field_extractions_total{status=\"not_found\"} %d\n", snap.FieldsNotFound)

	writeMetric(w, "applyportal_activity_events_published_total{status=\"success\"} %d\n", snap.EventsPublishedSuccess)
	writeMetric(w, "applyportal_activity_events_published_total{status=\"dropped\"} %d\n", snap.EventsPublishedDropped)
	writeMetric(w, "applyportal_activity_events_processed_total{status=\"success\"} %d\n", snap.EventsProcessedSuccess)
	writeMetric(w, "applyportal_activity_events_processed_total{status=\"failed\"} %d\n", snap.EventsProcessedFailed)
	writeMetric(w, "applyportal_activity_events_processed_total{status=\"dead_lettered\"} %d\n", snap.EventsDeadLettered)
	writeMetric(w, "applyportal_activity_batches_total %d\n", snap.EventBatchCount)
	writeMetric(w, "applyportal_activity_batch_duration_seconds_sum %.6f\n", float64(snap.EventBatchDurationNs)/1e9)
	writeMetric(w, "applyportal_activity_queue_depth %d\n", snap.EventQueueDepth)

	writeMetric(w, "applyportal_webhook_deliveries_total{status=\"success\"} %d\n", snap.WebhooksDelivered)
	writeMetric(w, "applyportal_webhook_deliveries_total{status=\"failed\"} %d\n", snap.WebhooksFailed)
	writeMetric(w, "applyportal_webhook_deliveries_total{status=\"exhausted\"} %d\n", snap.WebhooksExhausted)
	writeMetric(w, "applyportal_webhook_retries_total %d\n", snap.WebhookRetries)
	writeMetric(w, "applyportal_webhook_queue_depth %d\n", snap.WebhookQueueDepth)
	writeMetric(w, "applyportal_webhook_delivery_duration_seconds_count %d\n", snap.WebhookDurationCount)
	writeMetric(w, "applyportal_webhook_delivery_duration_seconds_sum %.6f\n", float64(snap.WebhookDurationTotalNs)/1e9)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
