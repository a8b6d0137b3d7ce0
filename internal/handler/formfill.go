package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ezcommon/apply-portal/internal/auth"
	"github.com/ezcommon/apply-portal/internal/handler/dto"
	"github.com/ezcommon/apply-portal/internal/service"
)

// FormFillHandler handles field extraction and form filling endpoints.
type FormFillHandler struct {
	svc    *service.FormFillService
	logger *slog.Logger
}

// NewFormFillHandler creates a new FormFillHandler.
func NewFormFillHandler(svc *service.FormFillService, logger *slog.Logger) *FormFillHandler {
	return &FormFillHandler{svc: svc, logger: logger}
}

// FillFields handles POST /api/v1/formfill/fields.
func (h *FormFillHandler) FillFields(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())

	var req dto.FillFieldsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	report, err := h.svc.FillFields(r.Context(), authCtx.UserID, req.Fields, req.Section, optimizationEnabled(req.UseOptimization))
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.logger.Info("fields_filled",
		"user_id", authCtx.UserID,
		"total", report.TotalFields,
		"found", report.FoundFields,
	)

	writeJSON(w, http.StatusOK, report)
}

// FillSchoolForm handles POST /api/v1/formfill/school.
func (h *FormFillHandler) FillSchoolForm(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())

	var req dto.SchoolFormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if req.SchoolID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_SCHOOL_ID", "school_id is required")
		return
	}

	report, err := h.svc.FillSchoolForm(r.Context(), authCtx.UserID, authCtx.OrgID, req.SchoolID, req.Questions, optimizationEnabled(req.UseOptimization))
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.logger.Info("school_form_filled",
		"user_id", authCtx.UserID,
		"school_id", req.SchoolID,
		"filled", report.FilledCount,
		"total", report.TotalQuestions,
	)

	writeJSON(w, http.StatusOK, report)
}

// FillGeneral handles POST /api/v1/formfill/general.
func (h *FormFillHandler) FillGeneral(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())

	var req dto.GeneralFormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	report, err := h.svc.FillGeneralQuestions(r.Context(), authCtx.UserID, authCtx.OrgID, req.Section, optimizationEnabled(req.UseOptimization))
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Questions handles GET /api/v1/formfill/questions?section=.
func (h *FormFillHandler) Questions(w http.ResponseWriter, r *http.Request) {
	section := r.URL.Query().Get("section")
	writeJSON(w, http.StatusOK, map[string]any{
		"questions": h.svc.GeneralQuestions(section),
		"sections":  h.svc.QuestionSections(),
	})
}

// ListOutputs handles GET /api/v1/formfill/outputs.
func (h *FormFillHandler) ListOutputs(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())

	outputs, err := h.svc.ListOutputs(r.Context(), authCtx.UserID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"outputs": outputs})
}

// GetOutput handles GET /api/v1/formfill/outputs/load?school_id=.
// An empty school_id loads the general-questions output.
func (h *FormFillHandler) GetOutput(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())
	schoolID := r.URL.Query().Get("school_id")

	out, err := h.svc.GetOutput(r.Context(), authCtx.UserID, schoolID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// DeleteOutput handles DELETE /api/v1/formfill/outputs?school_id=.
func (h *FormFillHandler) DeleteOutput(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())
	schoolID := r.URL.Query().Get("school_id")

	if err := h.svc.DeleteOutput(r.Context(), authCtx.UserID, schoolID); err != nil {
		h.handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleError maps form fill service errors to HTTP responses.
func (h *FormFillHandler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNoQuestions):
		writeError(w, http.StatusBadRequest, "NO_QUESTIONS", "At least one field or question is required")
	case errors.Is(err, service.ErrFormOutputNotFound):
		writeError(w, http.StatusNotFound, "OUTPUT_NOT_FOUND", "Form output not found")
	default:
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

// optimizationEnabled defaults the use_optimization flag to true.
func optimizationEnabled(flag *bool) bool {
	return flag == nil || *flag
}
