package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ezcommon/apply-portal/internal/model"
)

// maxStoredErrorLen caps last_error so endpoint responses cannot bloat
// the deliveries table.
const maxStoredErrorLen = 500

// endpointCols is the column order every endpoint scan uses.
const endpointCols = `id, org_id, target_url, secret, enabled, event_types,
	name, description, created_at, updated_at`

// deliveryCols is the column order every delivery scan uses.
const deliveryCols = `id, endpoint_id, event_id, event_type, payload_json,
	status, attempt_count, max_attempts, next_retry_at,
	last_attempt_at, last_http_status, last_error,
	created_at, updated_at`

// DeliveryFilter narrows an org's delivery listing.
type DeliveryFilter struct {
	EndpointID string
	Statuses   []string
	Limit      int
	Offset     int
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Repository stores webhook endpoints and their delivery log.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a webhook repository over an open database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateEndpoint inserts a new org webhook endpoint.
func (r *Repository) CreateEndpoint(ctx context.Context, endpoint *model.WebhookEndpoint) error {
	query := `
		INSERT INTO webhook_endpoints (` + endpointCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		endpoint.ID,
		endpoint.OrgID,
		endpoint.TargetURL,
		endpoint.Secret,
		endpoint.Enabled,
		pq.Array(eventTypeStrings(endpoint.EventTypes)),
		endpoint.Name,
		endpoint.Description,
		endpoint.CreatedAt,
		endpoint.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook endpoint: %w", err)
	}
	return nil
}

// GetEndpoint loads one live endpoint by ID.
func (r *Repository) GetEndpoint(ctx context.Context, id string) (*model.WebhookEndpoint, error) {
	query := `
		SELECT ` + endpointCols + `
		FROM webhook_endpoints
		WHERE id = $1 AND deleted_at IS NULL
	`

	endpoint, err := scanEndpoint(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEndpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query webhook endpoint: %w", err)
	}
	return endpoint, nil
}

// ListEndpoints returns the org's live endpoints, newest first.
func (r *Repository) ListEndpoints(ctx context.Context, orgID string) ([]*model.WebhookEndpoint, error) {
	query := `
		SELECT ` + endpointCols + `
		FROM webhook_endpoints
		WHERE org_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`
	return r.queryEndpoints(ctx, query, orgID)
}

// SubscribedEndpoints returns the org's enabled endpoints that listen
// for eventType. This is the fan-out set for one published event.
func (r *Repository) SubscribedEndpoints(ctx context.Context, orgID string, eventType model.EventType) ([]*model.WebhookEndpoint, error) {
	query := `
		SELECT ` + endpointCols + `
		FROM webhook_endpoints
		WHERE org_id = $1
		  AND deleted_at IS NULL
		  AND enabled = true
		  AND $2 = ANY(event_types)
		ORDER BY created_at
	`
	return r.queryEndpoints(ctx, query, orgID, string(eventType))
}

func (r *Repository) queryEndpoints(ctx context.Context, query string, args ...any) ([]*model.WebhookEndpoint, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query webhook endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []*model.WebhookEndpoint
	for rows.Next() {
		endpoint, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook endpoint: %w", err)
		}
		endpoints = append(endpoints, endpoint)
	}
	return endpoints, rows.Err()
}

func scanEndpoint(row rowScanner) (*model.WebhookEndpoint, error) {
	var endpoint model.WebhookEndpoint
	var eventTypes []string

	if err := row.Scan(
		&endpoint.ID,
		&endpoint.OrgID,
		&endpoint.TargetURL,
		&endpoint.Secret,
		&endpoint.Enabled,
		pq.Array(&eventTypes),
		&endpoint.Name,
		&endpoint.Description,
		&endpoint.CreatedAt,
		&endpoint.UpdatedAt,
	); err != nil {
		return nil, err
	}

	endpoint.EventTypes = make([]model.EventType, len(eventTypes))
	for i, et := range eventTypes {
		endpoint.EventTypes[i] = model.EventType(et)
	}
	return &endpoint, nil
}

func eventTypeStrings(types []model.EventType) []string {
	out := make([]string, len(types))
	for i, et := range types {
		out[i] = string(et)
	}
	return out
}

// UpdateEndpoint rewrites the mutable endpoint fields.
func (r *Repository) UpdateEndpoint(ctx context.Context, endpoint *model.WebhookEndpoint) error {
	query := `
		UPDATE webhook_endpoints
		SET target_url = $2, enabled = $3, event_types = $4,
			name = $5, description = $6, updated_at = $7
		WHERE id = $1 AND deleted_at IS NULL
	`
	return r.affectEndpoint(ctx, query,
		endpoint.ID,
		endpoint.TargetURL,
		endpoint.Enabled,
		pq.Array(eventTypeStrings(endpoint.EventTypes)),
		endpoint.Name,
		endpoint.Description,
		time.Now().UTC(),
	)
}

// RotateEndpointSecret replaces the signing secret. Deliveries signed
// with the old secret that are still in flight will fail verification;
// callers surface that in the rotation response.
func (r *Repository) RotateEndpointSecret(ctx context.Context, id, secret string) error {
	query := `
		UPDATE webhook_endpoints
		SET secret = $2, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL
	`
	return r.affectEndpoint(ctx, query, id, secret, time.Now().UTC())
}

// DeleteEndpoint soft-deletes an endpoint. Pending deliveries for it
// are exhausted by the worker on their next claim.
func (r *Repository) DeleteEndpoint(ctx context.Context, id string) error {
	query := `
		UPDATE webhook_endpoints
		SET deleted_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`
	return r.affectEndpoint(ctx, query, id, time.Now().UTC())
}

// affectEndpoint runs an endpoint UPDATE that must hit exactly one
// live row.
func (r *Repository) affectEndpoint(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update webhook endpoint: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrEndpointNotFound
	}
	return nil
}

// CreateDelivery enqueues one delivery. The (event_id, endpoint_id)
// unique key makes re-publishing an event a no-op per endpoint.
func (r *Repository) CreateDelivery(ctx context.Context, delivery *model.WebhookDelivery) error {
	query := `
		INSERT INTO webhook_deliveries (` + deliveryCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, NULL, '', $10, $11)
		ON CONFLICT (event_id, endpoint_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		delivery.ID,
		delivery.EndpointID,
		delivery.EventID,
		string(delivery.EventType),
		delivery.PayloadJSON,
		string(delivery.Status),
		delivery.AttemptCount,
		delivery.MaxAttempts,
		delivery.NextRetryAt,
		delivery.CreatedAt,
		delivery.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook delivery: %w", err)
	}
	return nil
}

// ClaimDueDeliveries locks up to limit deliveries whose retry time has
// passed and whose endpoint is still live and enabled. SKIP LOCKED
// lets several workers poll the same table without contention.
func (r *Repository) ClaimDueDeliveries(ctx context.Context, now time.Time, limit int) ([]*model.WebhookDelivery, error) {
	query := `
		SELECT ` + prefixCols("d", deliveryCols) + `
		FROM webhook_deliveries d
		JOIN webhook_endpoints e ON d.endpoint_id = e.id
		WHERE d.status IN ('pending', 'failed')
		  AND d.next_retry_at <= $1
		  AND e.deleted_at IS NULL
		  AND e.enabled = true
		ORDER BY d.next_retry_at
		LIMIT $2
		FOR UPDATE OF d SKIP LOCKED
	`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due deliveries: %w", err)
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

// MarkDelivered records a 2xx attempt and closes the delivery.
func (r *Repository) MarkDelivered(ctx context.Context, id string, httpStatus int) error {
	query := `
		UPDATE webhook_deliveries
		SET status = 'success',
			attempt_count = attempt_count + 1,
			last_attempt_at = $2,
			last_http_status = $3,
			last_error = '',
			updated_at = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC(), httpStatus); err != nil {
		return fmt.Errorf("mark delivery success: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt. The delivery either waits for
// nextRetryAt or, when exhausted, leaves the worker's queue for good.
func (r *Repository) MarkFailed(ctx context.Context, id string, httpStatus *int, errMsg string, nextRetryAt time.Time, exhausted bool) error {
	status := string(model.DeliveryStatusFailed)
	if exhausted {
		status = string(model.DeliveryStatusExhausted)
	}
	if len(errMsg) > maxStoredErrorLen {
		errMsg = errMsg[:maxStoredErrorLen]
	}

	query := `
		UPDATE webhook_deliveries
		SET status = $2,
			attempt_count = attempt_count + 1,
			last_attempt_at = $3,
			last_http_status = $4,
			last_error = $5,
			next_retry_at = $6,
			updated_at = $3
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC(), httpStatus, errMsg, nextRetryAt); err != nil {
		return fmt.Errorf("mark delivery failure: %w", err)
	}
	return nil
}

// ListDeliveries pages through an org's delivery log. Every query is
// joined to the org's endpoints, so a delivery ID from another org is
// simply never visible.
func (r *Repository) ListDeliveries(ctx context.Context, orgID string, filter DeliveryFilter) ([]*model.WebhookDelivery, int, error) {
	var where strings.Builder
	where.WriteString("JOIN webhook_endpoints e ON d.endpoint_id = e.id WHERE e.org_id = $1")
	args := []any{orgID}

	if filter.EndpointID != "" {
		args = append(args, filter.EndpointID)
		fmt.Fprintf(&where, " AND d.endpoint_id = $%d", len(args))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, pq.Array(filter.Statuses))
		fmt.Fprintf(&where, " AND d.status = ANY($%d)", len(args))
	}

	countQuery := "SELECT COUNT(*) FROM webhook_deliveries d " + where.String()
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count deliveries: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM webhook_deliveries d
		%s
		ORDER BY d.created_at DESC
		LIMIT $%d OFFSET $%d
	`, prefixCols("d", deliveryCols), where.String(), len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	deliveries, err := collectDeliveries(rows)
	if err != nil {
		return nil, 0, err
	}
	return deliveries, total, nil
}

// RequeueDelivery puts one of the org's exhausted deliveries back in
// the queue for an immediate attempt.
func (r *Repository) RequeueDelivery(ctx context.Context, orgID, id string) error {
	query := `
		UPDATE webhook_deliveries d
		SET status = 'pending',
			next_retry_at = $3,
			updated_at = $3
		FROM webhook_endpoints e
		WHERE d.id = $1
		  AND d.endpoint_id = e.id
		  AND e.org_id = $2
		  AND d.status = 'exhausted'
	`

	result, err := r.db.ExecContext(ctx, query, id, orgID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("requeue delivery: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

// DeliveryBacklog counts deliveries still owed an attempt.
func (r *Repository) DeliveryBacklog(ctx context.Context) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM webhook_deliveries
		WHERE status IN ('pending', 'failed')
	`

	var count int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count delivery backlog: %w", err)
	}
	return count, nil
}

func collectDeliveries(rows *sql.Rows) ([]*model.WebhookDelivery, error) {
	var deliveries []*model.WebhookDelivery
	for rows.Next() {
		var d model.WebhookDelivery
		var eventType, status string

		if err := rows.Scan(
			&d.ID,
			&d.EndpointID,
			&d.EventID,
			&eventType,
			&d.PayloadJSON,
			&status,
			&d.AttemptCount,
			&d.MaxAttempts,
			&d.NextRetryAt,
			&d.LastAttemptAt,
			&d.LastHTTPStatus,
			&d.LastError,
			&d.CreatedAt,
			&d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}

		d.EventType = model.EventType(eventType)
		d.Status = model.DeliveryStatus(status)
		deliveries = append(deliveries, &d)
	}
	return deliveries, rows.Err()
}

// prefixCols qualifies a column list with a table alias for joins.
func prefixCols(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
