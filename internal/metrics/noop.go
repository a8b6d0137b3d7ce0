package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncUpload is a no-op.
func (n *NoopRecorder) IncUpload(status string) {}

// ObserveUploadSize is a no-op.
func (n *NoopRecorder) ObserveUploadSize(bytes int64) {}

// IncParseJob is a no-op.
func (n *NoopRecorder) IncParseJob(status string) {}

// ObserveParseDuration is a no-op.
func (n *NoopRecorder) ObserveParseDuration(duration time.Duration) {}

// AddChunksIndexed is a no-op.
func (n *NoopRecorder) AddChunksIndexed(count int) {}

// IncFieldExtraction is a no-op.
func (n *NoopRecorder) IncFieldExtraction(status string) {}

// IncActivityEventPublished is a no-op.
func (n *NoopRecorder) IncActivityEventPublished(status string) {}

// IncActivityEventProcessed is a no-op.
func (n *NoopRecorder) IncActivityEventProcessed(status string) {}

// ObserveActivityBatchSize is a no-op.
func (n *NoopRecorder) ObserveActivityBatchSize(size int) {}

// ObserveActivityBatchDuration is a no-op.
func (n *NoopRecorder) ObserveActivityBatchDuration(duration time.Duration) {}

// SetActivityQueueDepth is a no-op.
func (n *NoopRecorder) SetActivityQueueDepth(depth int64) {}

// ObserveActivityIngestLag is a no-op.
func (n *NoopRecorder) ObserveActivityIngestLag(lag time.Duration) {}

// IncWebhookDelivery is a no-op.
func (n *NoopRecorder) IncWebhookDelivery(status, endpointID string) {}

// IncWebhookRetry is a no-op.
func (n *NoopRecorder) IncWebhookRetry(endpointID string, attempt int) {}

// SetWebhookQueueDepth is a no-op.
func (n *NoopRecorder) SetWebhookQueueDepth(depth int64) {}

// ObserveWebhookDeliveryDuration is a no-op.
func (n *NoopRecorder) ObserveWebhookDeliveryDuration(endpointID string, duration time.Duration) {}
