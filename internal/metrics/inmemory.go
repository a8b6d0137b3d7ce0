package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	UploadsSuccess          uint64
	UploadsFailed           uint64
	UploadBytesTotal        int64
	ParseJobsComplete       uint64
	ParseJobsError          uint64
	ParseDurationCount      uint64
	ParseDurationTotalNs    int64
	ChunksIndexed           uint64
	FieldsFound             uint64
	FieldsNotFound          uint64
	EventsPublishedSuccess  uint64
	EventsPublishedDropped  uint64
	EventsProcessedSuccess  uint64
	EventsProcessedFailed   uint64
	EventsDeadLettered      uint64
	EventBatchCount         uint64
	EventBatchSizeTotal     uint64
	EventBatchDurationNs    int64
	EventQueueDepth         int64
	EventIngestLagLastNs    int64
	WebhooksDelivered       uint64
	WebhooksFailed          uint64
	WebhooksExhausted       uint64
	WebhookRetries          uint64
	WebhookQueueDepth       int64
	WebhookDurationCount    uint64
	WebhookDurationTotalNs  int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	uploadsSuccess         uint64
	uploadsFailed          uint64
	uploadBytesTotal       int64
	parseJobsComplete      uint64
	parseJobsError         uint64
	parseDurationCount     uint64
	parseDurationTotalNs   int64
	chunksIndexed          uint64
	fieldsFound            uint64
	fieldsNotFound         uint64
	eventsPublishedSuccess uint64
	eventsPublishedDropped uint64
	eventsProcessedSuccess uint64
	eventsProcessedFailed  uint64
	eventsDeadLettered     uint64
	eventBatchCount        uint64
	eventBatchSizeTotal    uint64
	eventBatchDurationNs   int64
	eventQueueDepth        int64
	eventIngestLagLastNs   int64
	webhooksDelivered      uint64
	webhooksFailed         uint64
	webhooksExhausted      uint64
	webhookRetries         uint64
	webhookQueueDepth      int64
	webhookDurationCount   uint64
	webhookDurationTotalNs int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		UploadsSuccess:         atomic.LoadUint64(&m.uploadsSuccess),
		UploadsFailed:          atomic.LoadUint64(&m.uploadsFailed),
		UploadBytesTotal:       atomic.LoadInt64(&m.uploadBytesTotal),
		ParseJobsComplete:      atomic.LoadUint64(&m.parseJobsComplete),
		ParseJobsError:         atomic.LoadUint64(&m.parseJobsError),
		ParseDurationCount:     atomic.LoadUint64(&m.parseDurationCount),
		ParseDurationTotalNs:   atomic.LoadInt64(&m.parseDurationTotalNs),
		ChunksIndexed:          atomic.LoadUint64(&m.chunksIndexed),
		FieldsFound:            atomic.LoadUint64(&m.fieldsFound),
		FieldsNotFound:         atomic.LoadUint64(&m.fieldsNotFound),
		EventsPublishedSuccess: atomic.LoadUint64(&m.eventsPublishedSuccess),
		EventsPublishedDropped: atomic.LoadUint64(&m.eventsPublishedDropped),
		EventsProcessedSuccess: atomic.LoadUint64(&m.eventsProcessedSuccess),
		EventsProcessedFailed:  atomic.LoadUint64(&m.eventsProcessedFailed),
		EventsDeadLettered:     atomic.LoadUint64(&m.eventsDeadLettered),
		EventBatchCount:        atomic.LoadUint64(&m.eventBatchCount),
		EventBatchSizeTotal:    atomic.LoadUint64(&m.eventBatchSizeTotal),
		EventBatchDurationNs:   atomic.LoadInt64(&m.eventBatchDurationNs),
		EventQueueDepth:        atomic.LoadInt64(&m.eventQueueDepth),
		EventIngestLagLastNs:   atomic.LoadInt64(&m.eventIngestLagLastNs),
		WebhooksDelivered:      atomic.LoadUint64(&m.webhooksDelivered),
		WebhooksFailed:         atomic.LoadUint64(&m.webhooksFailed),
		WebhooksExhausted:      atomic.LoadUint64(&m.webhooksExhausted),
		WebhookRetries:         atomic.LoadUint64(&m.webhookRetries),
		WebhookQueueDepth:      atomic.LoadInt64(&m.webhookQueueDepth),
		WebhookDurationCount:   atomic.LoadUint64(&m.webhookDurationCount),
		WebhookDurationTotalNs: atomic.LoadInt64(&m.webhookDurationTotalNs),
	}
}

// IncUpload increments the upload counter for status.
func (m *InMemoryRecorder) IncUpload(status string) {
	if status == "success" {
		atomic.AddUint64(&m.uploadsSuccess, 1)
		return
	}
	atomic.AddUint64(&m.uploadsFailed, 1)
}

// ObserveUploadSize adds the upload size to the running total.
func (m *InMemoryRecorder) ObserveUploadSize(bytes int64) {
	atomic.AddInt64(&m.uploadBytesTotal, bytes)
}

// IncParseJob increments the parse job counter for status.
func (m *InMemoryRecorder) IncParseJob(status string) {
	if status == "complete" {
		atomic.AddUint64(&m.parseJobsComplete, 1)
		return
	}
	atomic.AddUint64(&m.parseJobsError, 1)
}

// ObserveParseDuration records one parse duration.
func (m *InMemoryRecorder) ObserveParseDuration(duration time.Duration) {
	atomic.AddUint64(&m.parseDurationCount, 1)
	atomic.AddInt64(&m.parseDurationTotalNs, duration.Nanoseconds())
}

// AddChunksIndexed adds to the indexed chunk counter.
func (m *InMemoryRecorder) AddChunksIndexed(count int) {
	atomic.AddUint64(&m.chunksIndexed, uint64(count))
}

// IncFieldExtraction increments the field extraction counter for status.
func (m *InMemoryRecorder) IncFieldExtraction(status string) {
	if status == "found" {
		atomic.AddUint64(&m.fieldsFound, 1)
		return
	}
	atomic.AddUint64(&m.fieldsNotFound, 1)
}

// IncActivityEventPublished increments the published counter for status.
func (m *InMemoryRecorder) IncActivityEventPublished(status string) {
	if status == "success" {
		atomic.AddUint64(&m.eventsPublishedSuccess, 1)
		return
	}
	atomic.AddUint64(&m.eventsPublishedDropped, 1)
}

// IncActivityEventProcessed increments the processed counter for status.
func (m *InMemoryRecorder) IncActivityEventProcessed(status string) {
	switch status {
	case "success":
		atomic.AddUint64(&m.eventsProcessedSuccess, 1)
	case "dead_lettered":
		atomic.AddUint64(&m.eventsDeadLettered, 1)
	default:
		atomic.AddUint64(&m.eventsProcessedFailed, 1)
	}
}

// ObserveActivityBatchSize records one consumed batch size.
func (m *InMemoryRecorder) ObserveActivityBatchSize(size int) {
	atomic.AddUint64(&m.eventBatchCount, 1)
	atomic.AddUint64(&m.eventBatchSizeTotal, uint64(size))
}

// ObserveActivityBatchDuration records one batch processing duration.
func (m *InMemoryRecorder) ObserveActivityBatchDuration(duration time.Duration) {
	atomic.AddInt64(&m.eventBatchDurationNs, duration.Nanoseconds())
}

// SetActivityQueueDepth sets the last observed stream length.
func (m *InMemoryRecorder) SetActivityQueueDepth(depth int64) {
	atomic.StoreInt64(&m.eventQueueDepth, depth)
}

// ObserveActivityIngestLag sets the last observed ingest lag.
func (m *InMemoryRecorder) ObserveActivityIngestLag(lag time.Duration) {
	atomic.StoreInt64(&m.eventIngestLagLastNs, lag.Nanoseconds())
}

// IncWebhookDelivery increments the delivery counter for status.
func (m *InMemoryRecorder) IncWebhookDelivery(status, endpointID string) {
	switch status {
	case "success":
		atomic.AddUint64(&m.webhooksDelivered, 1)
	case "exhausted":
		atomic.AddUint64(&m.webhooksExhausted, 1)
	default:
		atomic.AddUint64(&m.webhooksFailed, 1)
	}
}

// IncWebhookRetry increments the retry counter.
func (m *InMemoryRecorder) IncWebhookRetry(endpointID string, attempt int) {
	atomic.AddUint64(&m.webhookRetries, 1)
}

// SetWebhookQueueDepth sets the last observed delivery backlog.
func (m *InMemoryRecorder) SetWebhookQueueDepth(depth int64) {
	atomic.StoreInt64(&m.webhookQueueDepth, depth)
}

// ObserveWebhookDeliveryDuration records one delivery duration.
func (m *InMemoryRecorder) ObserveWebhookDeliveryDuration(endpointID string, duration time.Duration) {
	atomic.AddUint64(&m.webhookDurationCount, 1)
	atomic.AddInt64(&m.webhookDurationTotalNs, duration.Nanoseconds())
}
