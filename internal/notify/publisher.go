package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ezcommon/apply-portal/internal/model"
)

// Publisher creates webhook delivery records when events occur.
type Publisher struct {
	repo   *Repository
	logger *slog.Logger
}

// NewPublisher creates a new webhook publisher.
func NewPublisher(repo *Repository, logger *slog.Logger) *Publisher {
	return &Publisher{
		repo:   repo,
		logger: logger.With("component", "notify.publisher"),
	}
}

// PublishInvitationAccepted fans out invitation.accepted to org endpoints.
func (p *Publisher) PublishInvitationAccepted(ctx context.Context, eventID string, data model.InvitationAcceptedData) error {
	return p.publish(ctx, data.OrgID, model.EventTypeInvitationAccepted, eventID, map[string]any{
		"org_id":        data.OrgID,
		"student_id":    data.StudentID,
		"student_email": data.StudentEmail,
	})
}

// PublishParseCompleted fans out parse.completed to org endpoints.
func (p *Publisher) PublishParseCompleted(ctx context.Context, orgID, eventID string, data model.ParseCompletedData) error {
	return p.publish(ctx, orgID, model.EventTypeParseCompleted, eventID, map[string]any{
		"user_id":     data.UserID,
		"document_id": data.DocumentID,
		"source_file": data.SourceFile,
		"section":     data.Section,
		"chunk_count": data.ChunkCount,
	})
}

// PublishUploadCompleted fans out upload.completed to org endpoints.
func (p *Publisher) PublishUploadCompleted(ctx context.Context, orgID, eventID string, data model.UploadCompletedData) error {
	return p.publish(ctx, orgID, model.EventTypeUploadCompleted, eventID, map[string]any{
		"user_id":           data.UserID,
		"section":           data.Section,
		"original_filename": data.OriginalFilename,
		"size_bytes":        data.SizeBytes,
	})
}

// publish creates delivery records for all subscribed active endpoints.
func (p *Publisher) publish(ctx context.Context, orgID string, eventType model.EventType, eventID string, data map[string]any) error {
	if orgID == "" {
		return nil // User not linked to an organization
	}

	endpoints, err := p.repo.SubscribedEndpoints(ctx, orgID, eventType)
	if err != nil {
		return fmt.Errorf("list subscribed endpoints: %w", err)
	}

	if len(endpoints) == 0 {
		return nil // No webhooks configured
	}

	// Build payload once, reuse for all endpoints
	payload := model.WebhookPayload{
		EventType: string(eventType),
		EventID:   eventID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	// Create delivery for each endpoint
	now := time.Now()
	for _, endpoint := range endpoints {
		delivery := &model.WebhookDelivery{
			ID:           ulid.Make().String(),
			EndpointID:   endpoint.ID,
			EventID:      eventID,
			EventType:    eventType,
			PayloadJSON:  string(payloadJSON),
			Status:       model.DeliveryStatusPending,
			AttemptCount: 0,
			MaxAttempts:  DefaultMaxAttempts,
			NextRetryAt:  now, // Immediate delivery
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := p.repo.CreateDelivery(ctx, delivery); err != nil {
			p.logger.Warn("failed to create delivery",
				"endpoint_id", endpoint.ID,
				"event_id", eventID,
				"error", err,
			)
			// Continue with other endpoints
			continue
		}

		p.logger.Debug("webhook delivery created",
			"delivery_id", delivery.ID,
			"endpoint_id", endpoint.ID,
			"event_id", eventID,
		)
	}

	return nil
}
