package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/ezcommon/apply-portal/internal/auth"
	"github.com/ezcommon/apply-portal/internal/handler/dto"
	"github.com/ezcommon/apply-portal/internal/model"
	"github.com/ezcommon/apply-portal/internal/notify"
)

// WebhookHandler handles org webhook management endpoints.
type WebhookHandler struct {
	repo   *notify.Repository
	logger *slog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(repo *notify.Repository, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		repo:   repo,
		logger: logger.With("handler", "webhook"),
	}
}

// Create handles POST /api/v1/org/webhooks. Org admin only.
func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx := auth.MustAuthFromContext(ctx)

	var req dto.CreateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := notify.ValidateTargetURL(req.TargetURL); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_URL", err.Error())
		return
	}

	eventTypes := req.EventTypes
	if len(eventTypes) == 0 {
		eventTypes = model.ValidEventTypes
	}
	for _, et := range eventTypes {
		if !model.IsValidEventType(et) {
			writeError(w, http.StatusBadRequest, "INVALID_EVENT_TYPE", "Invalid event type: "+string(et))
			return
		}
	}

	secret, err := notify.GenerateSecret()
	if err != nil {
		h.logger.Error("failed to generate secret", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create webhook")
		return
	}

	now := time.Now()
	endpoint := &model.WebhookEndpoint{
		ID:          ulid.Make().String(),
		OrgID:       authCtx.OrgID,
		TargetURL:   req.TargetURL,
		Secret:      secret,
		Enabled:     true,
		EventTypes:  eventTypes,
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.repo.CreateEndpoint(ctx, endpoint); err != nil {
		h.logger.Error("failed to create endpoint", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create webhook")
		return
	}

	h.logger.Info("webhook endpoint created",
		"endpoint_id", endpoint.ID,
		"org_id", authCtx.OrgID,
	)

	// The secret travels in this response only.
	writeJSON(w, http.StatusCreated, dto.CreateWebhookResponse{
		Endpoint: endpoint,
		Secret:   secret,
	})
}

// List handles GET /api/v1/org/webhooks. Org admin only.
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx := auth.MustAuthFromContext(ctx)

	endpoints, err := h.repo.ListEndpoints(ctx, authCtx.OrgID)
	if err != nil {
		h.logger.Error("failed to list endpoints", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list webhooks")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"webhooks": endpoints})
}

// Get handles GET /api/v1/org/webhooks/{id}. Org admin only.
func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx := auth.MustAuthFromContext(ctx)

	endpoint, ok := h.ownedEndpoint(ctx, w, authCtx.OrgID, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, endpoint)
}

// Update handles PATCH /api/v1/org/webhooks/{id}. Org admin only.
func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx := auth.MustAuthFromContext(ctx)

	endpoint, ok := h.ownedEndpoint(ctx, w, authCtx.OrgID, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req dto.UpdateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if req.Name != nil {
		endpoint.Name = *req.Name
	}
	if req.Description != nil {
		endpoint.Description = *req.Description
	}
	if req.TargetURL != nil {
		if err := notify.ValidateTargetURL(*req.TargetURL); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_URL", err.Error())
			return
		}
		endpoint.TargetURL = *req.TargetURL
	}
	if req.Enabled != nil {
		endpoint.Enabled = *req.Enabled
	}
	if req.EventTypes != nil {
		for _, et := range *req.EventTypes {
			if !model.IsValidEventType(et) {
				writeError(w, http.StatusBadRequest, "INVALID_EVENT_TYPE", "Invalid event type: "+string(et))
				return
			}
		}
		endpoint.EventTypes = *req.EventTypes
	}

	if err := h.repo.UpdateEndpoint(ctx, endpoint); err != nil {
		h.logger.Error("failed to update endpoint", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update webhook")
		return
	}

	h.logger.Info("webhook endpoint updated",
		"endpoint_id", endpoint.ID,
		"org_id", authCtx.OrgID,
	)

	writeJSON(w, http.StatusOK, endpoint)
}

// Delete handles DELETE /api/v1/org/webhooks/{id}. Org admin only.
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx := auth.MustAuthFromContext(ctx)

	endpoint, ok := h.ownedEndpoint(ctx, w, authCtx.OrgID, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.repo.DeleteEndpoint(ctx, endpoint.ID); err != nil {
		h.logger.Error("failed to delete endpoint", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete webhook")
		return
	}

	h.logger.Info("webhook endpoint deleted",
		"endpoint_id", endpoint.ID,
		"org_id", authCtx.OrgID,
	)

	w.WriteHeader(http.StatusNoContent)
}

// RotateSecret handles POST /api/v1/org/webhooks/{id}/rotate-secret. Org admin only.
func (h *WebhookHandler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx := auth.MustAuthFromContext(ctx)

	endpoint, ok := h.ownedEndpoint(ctx, w, authCtx.OrgID, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	newSecret, err := notify.GenerateSecret()
	if err != nil {
		h.logger.Error("failed to generate secret", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to rotate secret")
		return
	}

	if err := h.repo.RotateEndpointSecret(ctx, endpoint.ID, newSecret); err != nil {
		h.logger.Error("failed to update secret", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to rotate secret")
		return
	}

	h.logger.Info("webhook secret rotated",
		"endpoint_id", endpoint.ID,
		"org_id", authCtx.OrgID,
	)

	writeJSON(w, http.StatusOK, map[string]string{"secret": newSecret})
}

// ListDeliveries handles GET /api/v1/org/webhooks/{id}/deliveries. Org admin only.
func (h *WebhookHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx := auth.MustAuthFromContext(ctx)

	endpoint, ok := h.ownedEndpoint(ctx, w, authCtx.OrgID, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	statuses := r.URL.Query()["status"]
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	offset := (page - 1) * perPage

	deliveries, total, err := h.repo.ListDeliveries(ctx, authCtx.OrgID, notify.DeliveryFilter{
		EndpointID: endpoint.ID,
		Statuses:   statuses,
		Limit:      perPage,
		Offset:     offset,
	})
	if err != nil {
		h.logger.Error("failed to list deliveries", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list deliveries")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deliveries": deliveries,
		"pagination": map[string]any{
			"total":    total,
			"page":     page,
			"per_page": perPage,
		},
	})
}

// RetryDelivery handles POST /api/v1/org/webhooks/{id}/deliveries/{deliveryId}/retry. Org admin only.
func (h *WebhookHandler) RetryDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx := auth.MustAuthFromContext(ctx)

	endpoint, ok := h.ownedEndpoint(ctx, w, authCtx.OrgID, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	deliveryID := chi.URLParam(r, "deliveryId")
	if err := h.repo.RequeueDelivery(ctx, authCtx.OrgID, deliveryID); err != nil {
		if errors.Is(err, notify.ErrDeliveryNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Delivery not found or not exhausted")
			return
		}
		h.logger.Error("failed to retry delivery", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to retry delivery")
		return
	}

	h.logger.Info("webhook delivery retry requested",
		"delivery_id", deliveryID,
		"endpoint_id", endpoint.ID,
		"org_id", authCtx.OrgID,
	)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retry_scheduled"})
}

// ownedEndpoint loads an endpoint and verifies it belongs to the org.
// Writes the error response itself when the endpoint is unavailable; an
// endpoint owned by another org looks exactly like a missing one.
func (h *WebhookHandler) ownedEndpoint(ctx context.Context, w http.ResponseWriter, orgID, endpointID string) (*model.WebhookEndpoint, bool) {
	endpoint, err := h.repo.GetEndpoint(ctx, endpointID)
	if err != nil {
		if errors.Is(err, notify.ErrEndpointNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Webhook not found")
			return nil, false
		}
		h.logger.Error("failed to get endpoint", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load webhook")
		return nil, false
	}
	if endpoint.OrgID != orgID {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Webhook not found")
		return nil, false
	}
	return endpoint, true
}
