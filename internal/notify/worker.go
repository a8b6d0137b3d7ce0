package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ezcommon/apply-portal/internal/metrics"
	"github.com/ezcommon/apply-portal/internal/model"
)

const (
	// DefaultBatchSize is how many due deliveries one poll claims.
	DefaultBatchSize = 50
	// DefaultPollInterval is the pause between queue polls.
	DefaultPollInterval = 5 * time.Second
	// DefaultMetricsInterval is how often the backlog gauge refreshes.
	DefaultMetricsInterval = 10 * time.Second

	// maxResponseDrain bounds how much of the endpoint's response body
	// is read; just enough to keep the connection reusable.
	maxResponseDrain = 1024
)

// DeliveryStore is the repository surface the worker drives.
type DeliveryStore interface {
	ClaimDueDeliveries(ctx context.Context, now time.Time, limit int) ([]*model.WebhookDelivery, error)
	GetEndpoint(ctx context.Context, id string) (*model.WebhookEndpoint, error)
	MarkDelivered(ctx context.Context, id string, httpStatus int) error
	MarkFailed(ctx context.Context, id string, httpStatus *int, errMsg string, nextRetryAt time.Time, exhausted bool) error
	DeliveryBacklog(ctx context.Context) (int64, error)
}

// Worker drains the webhook delivery queue: claim due deliveries, post
// them to the org's endpoints, and schedule retries until each one
// succeeds or spends its attempt budget.
type Worker struct {
	store           DeliveryStore
	client          *http.Client
	logger          *slog.Logger
	metrics         metrics.Recorder
	batchSize       int
	pollInterval    time.Duration
	metricsInterval time.Duration
	lastDepthAt     time.Time
	started         bool
}

// NewWorker creates a webhook delivery worker.
func NewWorker(store DeliveryStore, logger *slog.Logger, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		store:           store,
		client:          NewHTTPClient(),
		logger:          logger.With("component", "notify.worker"),
		metrics:         recorder,
		batchSize:       DefaultBatchSize,
		pollInterval:    DefaultPollInterval,
		metricsInterval: DefaultMetricsInterval,
	}
}

// Run polls the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w.started {
		return errors.New("worker already started")
	}
	w.started = true

	w.logger.Info("webhook worker started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("webhook worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := w.drainDue(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("poll failed", "error", err)
			}
		}
	}
}

// drainDue claims one batch of due deliveries and attempts each one.
func (w *Worker) drainDue(ctx context.Context) error {
	w.maybeRecordBacklog(ctx)

	deliveries, err := w.store.ClaimDueDeliveries(ctx, time.Now().UTC(), w.batchSize)
	if err != nil {
		return fmt.Errorf("claim due deliveries: %w", err)
	}

	for _, delivery := range deliveries {
		if err := w.deliver(ctx, delivery); err != nil {
			w.logger.Warn("delivery attempt errored",
				"delivery_id", delivery.ID,
				"error", err,
			)
		}
	}
	return nil
}

// deliver runs one attempt for one delivery.
func (w *Worker) deliver(ctx context.Context, delivery *model.WebhookDelivery) error {
	endpoint, err := w.store.GetEndpoint(ctx, delivery.EndpointID)
	if err != nil {
		if errors.Is(err, ErrEndpointNotFound) {
			return w.drop(ctx, delivery, "endpoint deleted")
		}
		return err
	}

	// The endpoint's config may have changed since the delivery was
	// enqueued; a delivery it would no longer accept is dropped, not
	// retried.
	if reason, ok := undeliverableReason(endpoint, delivery.EventType); !ok {
		return w.drop(ctx, delivery, reason)
	}

	payload := []byte(delivery.PayloadJSON)
	timestamp := time.Now().Unix()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.TargetURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	SetWebhookHeaders(req, HTTPHeaders{
		Signature:  GenerateSignature(endpoint.Secret, timestamp, payload),
		Timestamp:  strconv.FormatInt(timestamp, 10),
		DeliveryID: delivery.ID,
	})

	start := time.Now()
	resp, err := w.client.Do(req)
	duration := time.Since(start)
	w.metrics.ObserveWebhookDeliveryDuration(endpoint.ID, duration)

	if err != nil {
		return w.scheduleRetry(ctx, delivery, nil, err.Error())
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseDrain)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return w.scheduleRetry(ctx, delivery, &resp.StatusCode, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	w.logger.Info("webhook delivered",
		"delivery_id", delivery.ID,
		"event_type", string(delivery.EventType),
		"target_host", ExtractHost(endpoint.TargetURL),
		"http_status", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
	)
	w.metrics.IncWebhookDelivery("success", endpoint.ID)
	return w.store.MarkDelivered(ctx, delivery.ID, resp.StatusCode)
}

// undeliverableReason reports why endpoint cannot take a delivery for
// eventType, if it cannot.
func undeliverableReason(endpoint *model.WebhookEndpoint, eventType model.EventType) (string, bool) {
	switch {
	case !endpoint.IsActive():
		return "endpoint disabled", false
	case !endpoint.SubscribesToEvent(eventType):
		return "event type no longer subscribed", false
	}
	return "", true
}

// drop exhausts a delivery without an HTTP attempt.
func (w *Worker) drop(ctx context.Context, delivery *model.WebhookDelivery, reason string) error {
	w.logger.Info("webhook delivery dropped",
		"delivery_id", delivery.ID,
		"event_type", string(delivery.EventType),
		"reason", reason,
	)
	w.metrics.IncWebhookDelivery("exhausted", delivery.EndpointID)
	return w.store.MarkFailed(ctx, delivery.ID, nil, reason, time.Now().UTC(), true)
}

// scheduleRetry records a failed attempt and backs off, or exhausts
// the delivery when the budget is spent.
func (w *Worker) scheduleRetry(ctx context.Context, delivery *model.WebhookDelivery, httpStatus *int, errMsg string) error {
	attempt := delivery.AttemptCount + 1
	exhausted := IsExhausted(attempt, delivery.MaxAttempts)

	status := "failed"
	if exhausted {
		status = "exhausted"
	}

	w.logger.Warn("webhook delivery failed",
		"delivery_id", delivery.ID,
		"event_type", string(delivery.EventType),
		"attempt", attempt,
		"exhausted", exhausted,
		"error", errMsg,
	)
	w.metrics.IncWebhookDelivery(status, delivery.EndpointID)
	w.metrics.IncWebhookRetry(delivery.EndpointID, attempt)

	return w.store.MarkFailed(ctx, delivery.ID, httpStatus, errMsg, NextRetryAt(attempt), exhausted)
}

// maybeRecordBacklog refreshes the backlog gauge at most once per
// metricsInterval.
func (w *Worker) maybeRecordBacklog(ctx context.Context) {
	if time.Since(w.lastDepthAt) < w.metricsInterval {
		return
	}
	w.lastDepthAt = time.Now()

	depth, err := w.store.DeliveryBacklog(ctx)
	if err != nil {
		w.logger.Warn("backlog count failed", "error", err)
		return
	}
	w.metrics.SetWebhookQueueDepth(depth)
}

// SetBatchSize overrides the default claim size.
func (w *Worker) SetBatchSize(size int) {
	if size > 0 {
		w.batchSize = size
	}
}

// SetPollInterval overrides the default poll interval.
func (w *Worker) SetPollInterval(interval time.Duration) {
	if interval > 0 {
		w.pollInterval = interval
	}
}
