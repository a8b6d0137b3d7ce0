// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Upload metrics
	IncUpload(status string) // status: "success" or "failed"
	ObserveUploadSize(bytes int64)

	// Parse pipeline metrics
	IncParseJob(status string) // status: "complete" or "error"
	ObserveParseDuration(duration time.Duration)
	AddChunksIndexed(count int)

	// Form fill metrics
	IncFieldExtraction(status string) // status: "found" or "not_found"

	// Activity pipeline metrics
	IncActivityEventPublished(status string) // status: "success" or "dropped"
	IncActivityEventProcessed(status string) // status: "success", "failed", "dead_lettered"
	ObserveActivityBatchSize(size int)
	ObserveActivityBatchDuration(duration time.Duration)
	SetActivityQueueDepth(depth int64)
	ObserveActivityIngestLag(lag time.Duration)

	// Webhook delivery metrics
	IncWebhookDelivery(status, endpointID string) // status: "success", "failed", "exhausted"
	IncWebhookRetry(endpointID string, attempt int)
	SetWebhookQueueDepth(depth int64)
	ObserveWebhookDeliveryDuration(endpointID string, duration time.Duration)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
