package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ezcommon/apply-portal/internal/auth"
	"github.com/ezcommon/apply-portal/internal/model"
	"github.com/ezcommon/apply-portal/internal/repository"
)

// ActivityHandler exposes the user's activity trail and daily rollups.
type ActivityHandler struct {
	repo   *repository.ActivityRepository
	logger *slog.Logger
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(repo *repository.ActivityRepository, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{
		repo:   repo,
		logger: logger.With("component", "handler.activity"),
	}
}

// Recent handles GET /api/v1/activity?limit=.
func (h *ActivityHandler) Recent(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	events, err := h.repo.ListRecentActivity(r.Context(), authCtx.UserID, limit)
	if err != nil {
		h.logger.Error("failed to list activity", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch activity")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// ActivityStatsResponse is the daily rollup response.
type ActivityStatsResponse struct {
	Period struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"period"`
	Daily       []*model.DailyUserStats `json:"daily"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// Stats handles GET /api/v1/activity/stats?from=&to=.
func (h *ActivityHandler) Stats(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())
	from, to := parseStatsRange(r)

	daily, err := h.repo.GetDailyStats(r.Context(), authCtx.UserID, from, to)
	if err != nil {
		h.logger.Error("failed to get daily stats", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch activity stats")
		return
	}

	response := ActivityStatsResponse{
		Daily:       daily,
		GeneratedAt: time.Now().UTC(),
	}
	response.Period.From = from.Format("2006-01-02")
	response.Period.To = to.Format("2006-01-02")

	writeJSON(w, http.StatusOK, response)
}

// parseStatsRange extracts from/to dates from query params. Defaults to
// the last 30 days, capped at 90.
func parseStatsRange(r *http.Request) (time.Time, time.Time) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now

	if s := r.URL.Query().Get("from"); s != "" {
		if parsed, err := time.Parse("2006-01-02", s); err == nil {
			from = parsed
		}
	}
	if s := r.URL.Query().Get("to"); s != "" {
		if parsed, err := time.Parse("2006-01-02", s); err == nil {
			to = parsed
		}
	}

	if to.After(now) {
		to = now
	}
	if to.Sub(from) > 90*24*time.Hour {
		from = to.AddDate(0, 0, -90)
	}

	return from, to
}
