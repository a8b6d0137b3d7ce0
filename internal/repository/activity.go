package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ezcommon/apply-portal/internal/model"
)

// ActivityRepository provides database access for activity trail events.
type ActivityRepository struct {
	repo *Repository
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(repo *Repository) *ActivityRepository {
	return &ActivityRepository{repo: repo}
}

// BulkInsert inserts multiple activity events with idempotency via
// ON CONFLICT DO NOTHING on the event_id (stream entry ID).
func (r *ActivityRepository) BulkInsert(ctx context.Context, events []*model.ActivityEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	query := `
		INSERT INTO activity_events (
			id, event_id, user_id, org_id, kind, section,
			subject, chunk_count, occurred_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`

	for _, event := range events {
		batch.Queue(query,
			event.ID,
			event.EventID,
			event.UserID,
			nullableString(event.OrgID),
			event.Kind,
			nullableString(event.Section),
			nullableString(event.Subject),
			event.Detail["chunk_count"],
			event.OccurredAt,
		)
	}

	results := r.repo.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(events); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert event %d: %w", i, err)
		}
	}

	return nil
}

// UpdateDailyStats recomputes the daily_user_stats rollups for every
// user/day combination touched by the batch.
func (r *ActivityRepository) UpdateDailyStats(ctx context.Context, events []*model.ActivityEvent) error {
	if len(events) == 0 {
		return nil
	}

	keys := uniqueDailyKeys(events)
	for _, key := range keys {
		stats, err := r.recalculateDailyStats(ctx, key.userID, key.date)
		if err != nil {
			return fmt.Errorf("recalculate daily stats %s:%s: %w", key.userID, key.date.Format("2006-01-02"), err)
		}
		if err := r.upsertDailyStats(ctx, stats); err != nil {
			return fmt.Errorf("upsert daily stats %s:%s: %w", key.userID, key.date.Format("2006-01-02"), err)
		}
	}

	return nil
}

type dailyStatsKey struct {
	userID string
	date   time.Time
}

func uniqueDailyKeys(events []*model.ActivityEvent) []dailyStatsKey {
	seen := make(map[string]dailyStatsKey)
	for _, event := range events {
		day := event.OccurredAt.UTC().Truncate(24 * time.Hour)
		key := fmt.Sprintf("%s:%s", event.UserID, day.Format("2006-01-02"))
		seen[key] = dailyStatsKey{userID: event.UserID, date: day}
	}

	keys := make([]dailyStatsKey, 0, len(seen))
	for _, key := range seen {
		keys = append(keys, key)
	}
	return keys
}

func (r *ActivityRepository) recalculateDailyStats(ctx context.Context, userID string, date time.Time) (*model.DailyUserStats, error) {
	start := date.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	query := `
		SELECT
			COUNT(*) FILTER (WHERE kind = 'upload'),
			COUNT(*) FILTER (WHERE kind = 'parse'),
			COALESCE(SUM(chunk_count) FILTER (WHERE kind = 'parse'), 0)
		FROM activity_events
		WHERE user_id = $1 AND occurred_at >= $2 AND occurred_at < $3
	`

	stats := &model.DailyUserStats{UserID: userID, Date: start}
	err := r.repo.pool.QueryRow(ctx, query, userID, start, end).Scan(
		&stats.Uploads,
		&stats.ParsedDocs,
		&stats.ChunksCreated,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate activity events: %w", err)
	}

	return stats, nil
}

func (r *ActivityRepository) upsertDailyStats(ctx context.Context, stats *model.DailyUserStats) error {
	id := fmt.Sprintf("%s:%s", stats.UserID, stats.Date.Format("2006-01-02"))

	query := `
		INSERT INTO daily_user_stats (
			id, user_id, date, uploads, parsed_docs, chunks_created, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (user_id, date) DO UPDATE SET
			uploads = EXCLUDED.uploads,
			parsed_docs = EXCLUDED.parsed_docs,
			chunks_created = EXCLUDED.chunks_created,
			updated_at = NOW()
	`

	_, err := r.repo.pool.Exec(ctx, query,
		id,
		stats.UserID,
		stats.Date,
		stats.Uploads,
		stats.ParsedDocs,
		stats.ChunksCreated,
	)

	return err
}

// GetDailyStats retrieves a user's daily activity rollups within a date range.
func (r *ActivityRepository) GetDailyStats(ctx context.Context, userID string, from, to time.Time) ([]*model.DailyUserStats, error) {
	query := `
		SELECT id, user_id, date, uploads, parsed_docs, chunks_created, created_at, updated_at
		FROM daily_user_stats
		WHERE user_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date
	`

	rows, err := r.repo.pool.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	var out []*model.DailyUserStats
	for rows.Next() {
		var stats model.DailyUserStats
		err := rows.Scan(
			&stats.ID,
			&stats.UserID,
			&stats.Date,
			&stats.Uploads,
			&stats.ParsedDocs,
			&stats.ChunksCreated,
			&stats.CreatedAt,
			&stats.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily stats: %w", err)
		}
		out = append(out, &stats)
	}

	return out, rows.Err()
}

// ListRecentActivity returns a user's most recent activity events.
func (r *ActivityRepository) ListRecentActivity(ctx context.Context, userID string, limit int) ([]*model.ActivityEvent, error) {
	query := `
		SELECT id, event_id, user_id, COALESCE(org_id, ''), kind, COALESCE(section, ''),
		       COALESCE(subject, ''), chunk_count, occurred_at, created_at
		FROM activity_events
		WHERE user_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`

	rows, err := r.repo.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity events: %w", err)
	}
	defer rows.Close()

	var events []*model.ActivityEvent
	for rows.Next() {
		var (
			event      model.ActivityEvent
			chunkCount int64
		)
		err := rows.Scan(
			&event.ID,
			&event.EventID,
			&event.UserID,
			&event.OrgID,
			&event.Kind,
			&event.Section,
			&event.Subject,
			&chunkCount,
			&event.OccurredAt,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity event: %w", err)
		}
		if chunkCount > 0 {
			event.Detail = map[string]int64{"chunk_count": chunkCount}
		}
		events = append(events, &event)
	}

	return events, rows.Err()
}
