// Package events provides activity event capture and processing.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ezcommon/apply-portal/internal/metrics"
	"github.com/ezcommon/apply-portal/internal/model"
)

const (
	// ConsumerGroup is the Redis consumer group name.
	ConsumerGroup = "activity_workers"

	// DefaultBatchSize is the max events per batch.
	DefaultBatchSize = 500

	// DefaultBlockTimeout is how long to block waiting for messages.
	DefaultBlockTimeout = 5 * time.Second

	// DefaultMaxRetries is the max attempts to store one batch.
	DefaultMaxRetries = 3

	// DefaultClaimInterval is how often to scan for stuck messages.
	DefaultClaimInterval = 10 * time.Second

	// DefaultClaimIdle is the idle time before a pending message is
	// taken over from a dead consumer.
	DefaultClaimIdle = 30 * time.Second

	// DefaultMetricsInterval is how often the queue depth gauge refreshes.
	DefaultMetricsInterval = 5 * time.Second

	// deadLetterMaxLen bounds the poison stream.
	deadLetterMaxLen = 10000
)

// Repository is the persistence surface the worker drives: the event
// log itself plus the per-day rollup behind the activity dashboards.
type Repository interface {
	BulkInsert(ctx context.Context, events []*model.ActivityEvent) error
	UpdateDailyStats(ctx context.Context, events []*model.ActivityEvent) error
}

// poisonMessage is a stream entry that cannot become an ActivityEvent.
type poisonMessage struct {
	msg    redis.XMessage
	reason string
	detail string
}

// Worker consumes the activity stream: uploads, parses, form fills and
// invitation events land here and are folded into the event log and
// the daily stats.
type Worker struct {
	redis           *redis.Client
	repo            Repository
	logger          *slog.Logger
	metrics         metrics.Recorder
	consumerID      string
	batchSize       int
	blockTimeout    time.Duration
	maxRetries      int
	claimInterval   time.Duration
	claimIdle       time.Duration
	metricsInterval time.Duration
	claimCursor     string
	lastClaim       time.Time
	lastMetrics     time.Time

	started  bool
	draining bool
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// NewWorker creates a new activity worker.
func NewWorker(client *redis.Client, repo Repository, logger *slog.Logger, consumerID string, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		redis:           client,
		repo:            repo,
		logger:          logger.With("component", "events.worker", "consumer_id", consumerID),
		metrics:         recorder,
		consumerID:      consumerID,
		batchSize:       DefaultBatchSize,
		blockTimeout:    DefaultBlockTimeout,
		maxRetries:      DefaultMaxRetries,
		claimInterval:   DefaultClaimInterval,
		claimIdle:       DefaultClaimIdle,
		metricsInterval: DefaultMetricsInterval,
		claimCursor:     "0-0",
	}
}

// Run starts the worker loop. Blocks until context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	if err := w.ensureConsumerGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	w.logger.Info("activity worker started")

	for {
		w.mu.Lock()
		draining := w.draining
		w.mu.Unlock()

		if draining {
			w.logger.Info("activity worker draining, stopping")
			return nil
		}

		select {
		case <-ctx.Done():
			w.logger.Info("activity worker stopping")
			return ctx.Err()
		default:
			if err := w.consumeOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("consume error", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// Shutdown stops the worker after the in-flight batch finishes.
// It implements server.ShutdownFunc for integration with graceful shutdown.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.draining = true
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	w.logger.Info("activity worker shutdown initiated")

	if cancel != nil {
		cancel()
	}

	if done != nil {
		select {
		case <-done:
			w.logger.Info("activity worker shutdown complete")
			return nil
		case <-ctx.Done():
			w.logger.Warn("activity worker shutdown timed out")
			return ctx.Err()
		}
	}
	return nil
}

// ensureConsumerGroup creates the consumer group if it doesn't exist.
func (w *Worker) ensureConsumerGroup(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !isConsumerGroupExistsError(err) {
		return err
	}
	return nil
}

// consumeOnce drains one batch: take over stuck messages first, then
// read fresh ones, decode, dead-letter the poison, store, ack.
func (w *Worker) consumeOnce(ctx context.Context) error {
	w.maybeUpdateQueueDepth(ctx)

	messages, err := w.nextBatch(ctx)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	events, poison := decodeBatch(messages)
	w.deadLetter(ctx, poison)

	if len(events) > 0 {
		if err := w.storeWithRetry(ctx, events); err != nil {
			// Leave the batch pending so another consumer retries it.
			w.logger.Error("batch storage failed after retries",
				"batch_size", len(events),
				"error", err,
			)
			return err
		}
	}

	// Poison messages are acked too; their copy lives in the DLQ now.
	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.ID)
	}
	return w.ackMessages(ctx, ids)
}

// nextBatch prefers messages abandoned by dead consumers over new ones.
func (w *Worker) nextBatch(ctx context.Context) ([]redis.XMessage, error) {
	if w.claimInterval > 0 && (w.lastClaim.IsZero() || time.Since(w.lastClaim) >= w.claimInterval) {
		w.lastClaim = time.Now()
		claimed, cursor, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   StreamKey,
			Group:    ConsumerGroup,
			Consumer: w.consumerID,
			MinIdle:  w.claimIdle,
			Start:    w.claimCursor,
			Count:    int64(w.batchSize),
		}).Result()
		if err != nil && err != redis.Nil {
			w.logger.Warn("failed to claim stuck messages", "error", err)
		}
		if cursor != "" {
			w.claimCursor = cursor
		}
		if len(claimed) > 0 {
			w.logger.Info("reclaimed stuck messages", "count", len(claimed))
			return claimed, nil
		}
	}

	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.batchSize),
		Block:    w.blockTimeout,
	}).Result()
	if err == redis.Nil || len(streams) == 0 {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	return streams[0].Messages, nil
}

func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if w.metricsInterval <= 0 {
		return
	}
	if !w.lastMetrics.IsZero() && time.Since(w.lastMetrics) < w.metricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	groups, err := w.redis.XInfoGroups(ctx, StreamKey).Result()
	if err != nil && err != redis.Nil {
		w.logger.Warn("failed to read stream group info", "error", err)
		return
	}
	for _, group := range groups {
		if group.Name == ConsumerGroup {
			w.metrics.SetActivityQueueDepth(group.Pending + group.Lag)
			return
		}
	}
}

// decodeBatch splits stream entries into storable events and poison.
// The Redis stream ID becomes the event's idempotency key, so a batch
// that is stored and then re-delivered inserts nothing the second time.
func decodeBatch(messages []redis.XMessage) ([]*model.ActivityEvent, []poisonMessage) {
	events := make([]*model.ActivityEvent, 0, len(messages))
	var poison []poisonMessage

	for _, msg := range messages {
		event, err := decodeMessage(msg)
		if err != nil {
			poison = append(poison, poisonMessage{
				msg:    msg,
				reason: poisonReason(err),
				detail: err.Error(),
			})
			continue
		}
		events = append(events, event)
	}
	return events, poison
}

var (
	errPayloadMissing = errors.New("payload field missing or not a string")
	errPayloadSyntax  = errors.New("payload is not valid JSON")
)

// decodeMessage converts one stream entry into an ActivityEvent.
func decodeMessage(msg redis.XMessage) (*model.ActivityEvent, error) {
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return nil, errPayloadMissing
	}

	var payload ActivityEventPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("%w: %s", errPayloadSyntax, err)
	}
	if err := ValidateActivityEventPayload(payload); err != nil {
		return nil, err
	}

	event := &model.ActivityEvent{
		ID:         ulid.Make().String(),
		EventID:    msg.ID,
		UserID:     payload.UserID,
		OrgID:      payload.OrgID,
		Kind:       model.ActivityKind(payload.Kind),
		Section:    payload.Section,
		Subject:    payload.Subject,
		OccurredAt: time.UnixMilli(payload.OccurredAt),
	}
	if payload.ChunkCount > 0 {
		event.Detail = map[string]int64{"chunk_count": payload.ChunkCount}
	}
	return event, nil
}

// poisonReason buckets decode failures for the DLQ and metrics.
func poisonReason(err error) string {
	switch {
	case errors.Is(err, errPayloadMissing):
		return "invalid_format"
	case errors.Is(err, errPayloadSyntax):
		return "unmarshal_error"
	}
	return "validation_error"
}

// deadLetter copies poison messages to the DLQ in one round trip.
func (w *Worker) deadLetter(ctx context.Context, poison []poisonMessage) {
	if len(poison) == 0 {
		return
	}

	pipe := w.redis.Pipeline()
	now := time.Now().UTC().Format(time.RFC3339)
	for _, p := range poison {
		w.logger.Warn("dead-lettering poison message",
			"message_id", p.msg.ID,
			"reason", p.reason,
			"detail", p.detail,
		)
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: DeadLetterStreamKey,
			MaxLen: deadLetterMaxLen,
			Approx: true,
			ID:     "*",
			Values: map[string]interface{}{
				"original_id":      p.msg.ID,
				"original_stream":  StreamKey,
				"reason":           p.reason,
				"detail":           p.detail,
				"payload":          p.msg.Values["payload"],
				"dead_lettered_at": now,
			},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.logger.Error("failed to write dead-letter queue", "error", err)
	}
	for range poison {
		w.metrics.IncActivityEventProcessed("dead_lettered")
	}
}

// storeWithRetry persists one batch with exponential backoff.
func (w *Worker) storeWithRetry(ctx context.Context, events []*model.ActivityEvent) error {
	var lastErr error

	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		if err := w.storeBatch(ctx, events); err != nil {
			lastErr = err
			backoff := time.Duration(1<<attempt) * time.Second
			w.logger.Warn("batch storage failed, retrying",
				"attempt", attempt,
				"backoff_seconds", backoff.Seconds(),
				"error", err,
			)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}
		return nil
	}

	for range events {
		w.metrics.IncActivityEventProcessed("failed")
	}
	return lastErr
}

// storeBatch appends events to the log and folds them into the daily
// rollup. The log is the source of truth; a rollup failure is logged
// and skipped rather than blocking the ack, since re-running the batch
// would double-count stats that did land while the inserted events
// dedupe on event_id.
func (w *Worker) storeBatch(ctx context.Context, events []*model.ActivityEvent) error {
	start := time.Now()

	if err := w.repo.BulkInsert(ctx, events); err != nil {
		w.logger.Error("bulk insert failed",
			"batch_size", len(events),
			"first_event_id", events[0].EventID,
			"error", err,
		)
		return fmt.Errorf("bulk insert: %w", err)
	}

	if err := w.repo.UpdateDailyStats(ctx, events); err != nil {
		w.logger.Error("daily stats update skipped",
			"batch_size", len(events),
			"error", err,
		)
	}

	w.logger.Info("batch stored",
		"events_count", len(events),
		"duration_ms", float64(time.Since(start).Microseconds())/1000,
	)

	w.metrics.ObserveActivityBatchSize(len(events))
	w.metrics.ObserveActivityBatchDuration(time.Since(start))
	for _, event := range events {
		w.metrics.IncActivityEventProcessed("success")
		w.metrics.ObserveActivityIngestLag(time.Since(event.OccurredAt))
	}

	return nil
}

// ackMessages acknowledges processed messages.
func (w *Worker) ackMessages(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if _, err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, messageIDs...).Result(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// isConsumerGroupExistsError checks for BUSYGROUP (group exists).
func isConsumerGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
