package handler

import (
	"log/slog"
	"net/http"

	"github.com/ezcommon/apply-portal/internal/auth"
	"github.com/ezcommon/apply-portal/internal/export"
)

// ExportHandler handles CSV export and statistics endpoints.
type ExportHandler struct {
	svc    *export.Service
	logger *slog.Logger
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(svc *export.Service, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{svc: svc, logger: logger}
}

// SummaryCSV handles GET /api/v1/export/csv?section=.
func (h *ExportHandler) SummaryCSV(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())

	result, err := h.svc.SummaryCSV(r.Context(), authCtx.UserID, r.URL.Query().Get("section"))
	if err != nil {
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// CategorizedCSV handles GET /api/v1/export/csv/categorized?section=.
func (h *ExportHandler) CategorizedCSV(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())

	result, err := h.svc.CategorizedCSV(r.Context(), authCtx.UserID, r.URL.Query().Get("section"))
	if err != nil {
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Stats handles GET /api/v1/export/stats?section=.
func (h *ExportHandler) Stats(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())

	stats, err := h.svc.Statistics(r.Context(), authCtx.UserID, r.URL.Query().Get("section"))
	if err != nil {
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
