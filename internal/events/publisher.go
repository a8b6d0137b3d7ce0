// Package events provides activity event capture and processing.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ezcommon/apply-portal/internal/metrics"
	"github.com/ezcommon/apply-portal/internal/model"
)

const (
	// StreamKey is the Redis stream for activity events.
	StreamKey = "stream:activity_events"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:activity_events:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// ActivityEventPayload is the compressed event format for the Redis stream.
type ActivityEventPayload struct {
	UserID     string `json:"uid"`
	OrgID      string `json:"org,omitempty"`
	Kind       string `json:"k"`
	Section    string `json:"s,omitempty"`
	Subject    string `json:"sub,omitempty"` // S3 key, document id or invitation org id
	ChunkCount int64  `json:"cc,omitempty"`
	OccurredAt int64  `json:"t"` // Unix milliseconds
}

// NewPayload builds a payload stamped with the current time.
func NewPayload(userID, orgID string, kind model.ActivityKind, section, subject string, chunkCount int64) ActivityEventPayload {
	return ActivityEventPayload{
		UserID:     userID,
		OrgID:      orgID,
		Kind:       string(kind),
		Section:    section,
		Subject:    TruncateSubject(subject),
		ChunkCount: chunkCount,
		OccurredAt: time.Now().UnixMilli(),
	}
}

// Publisher enqueues activity events to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new activity event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "events.publisher"),
		metrics: recorder,
	}
}

// Publish adds an activity event to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, event ActivityEventPayload) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true, // ~MAXLEN for performance
		ID:     "*",  // Auto-generate ID
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()

	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return result, nil
}

// PublishAsync publishes without blocking the caller.
// Errors are logged but not returned (fire-and-forget).
func (p *Publisher) PublishAsync(event ActivityEventPayload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("failed to publish activity event",
				"user_id", event.UserID,
				"kind", event.Kind,
				"error", err,
			)
			p.metrics.IncActivityEventPublished("dropped")
			return
		}

		p.logger.Debug("activity event published",
			"user_id", event.UserID,
			"kind", event.Kind,
			"stream_id", streamID,
		)
		p.metrics.IncActivityEventPublished("success")
	}()
}

// TruncateSubject truncates an event subject to max 500 chars.
func TruncateSubject(subject string) string {
	if len(subject) > 500 {
		return subject[:500]
	}
	return subject
}
