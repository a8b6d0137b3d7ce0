package cache

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	// progressChannelPrefix is the Redis pub/sub channel prefix for parse
	// progress updates.
	progressChannelPrefix = "parse:progress:"
)

// ProgressUpdate is one frame of parse progress fanned out to SSE streams.
// Any API instance can serve the stream regardless of which instance runs
// the parse.
type ProgressUpdate struct {
	JobID    string          `json:"job_id"`
	Progress int             `json:"progress"`
	Message  string          `json:"message"`
	Stage    string          `json:"stage,omitempty"`
	Done     bool            `json:"done,omitempty"`
	Error    string          `json:"error,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
}

// PublishParseProgress fans out a progress update for the given job.
func (c *Cache) PublishParseProgress(ctx context.Context, jobID string, update ProgressUpdate) error {
	update.JobID = jobID

	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal progress update: %w", err)
	}

	if err := c.client.Publish(ctx, progressChannelPrefix+jobID, data).Err(); err != nil {
		return fmt.Errorf("publish progress update: %w", err)
	}
	return nil
}

// SubscribeParseProgress subscribes to progress updates for the given job.
// The returned channel closes when the context is cancelled or the
// subscription drops. Callers must invoke the returned cancel function.
func (c *Cache) SubscribeParseProgress(ctx context.Context, jobID string) (<-chan ProgressUpdate, func(), error) {
	sub := c.client.Subscribe(ctx, progressChannelPrefix+jobID)

	// Force the subscription to be established before returning so callers
	// don't miss early frames.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe progress channel: %w", err)
	}

	updates := make(chan ProgressUpdate, 16)

	go func() {
		defer close(updates)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var update ProgressUpdate
				if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
					// Skip malformed frames
					continue
				}
				select {
				case updates <- update:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	cancel := func() { _ = sub.Close() }
	return updates, cancel, nil
}
