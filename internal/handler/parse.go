package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ezcommon/apply-portal/internal/auth"
	"github.com/ezcommon/apply-portal/internal/cache"
	"github.com/ezcommon/apply-portal/internal/handler/dto"
	"github.com/ezcommon/apply-portal/internal/model"
	"github.com/ezcommon/apply-portal/internal/service"
)

// ParseRunner is the slice of the parse service the handler needs.
type ParseRunner interface {
	ListParseable(ctx context.Context, userID, section string) ([]*model.UploadedFile, error)
	StartParse(ctx context.Context, userID, orgID, s3Key string) (*model.ParseJob, error)
	GetJob(ctx context.Context, userID, jobID string) (*model.ParseJob, error)
	ListJobs(ctx context.Context, userID string, limit int) ([]*model.ParseJob, error)
	ParseBatch(ctx context.Context, userID, orgID, section string) (*model.ProcessingReport, error)
	ParseDirect(ctx context.Context, userID, orgID, section string, upload service.FileUpload) (*model.ParseResult, error)
}

// ProgressSubscriber delivers parse progress frames for one job.
type ProgressSubscriber interface {
	SubscribeParseProgress(ctx context.Context, jobID string) (<-chan cache.ProgressUpdate, func(), error)
}

// ParseHandler handles document parsing endpoints.
type ParseHandler struct {
	svc    ParseRunner
	cache  ProgressSubscriber
	logger *slog.Logger
}

// NewParseHandler creates a new ParseHandler.
func NewParseHandler(svc ParseRunner, cache ProgressSubscriber, logger *slog.Logger) *ParseHandler {
	return &ParseHandler{svc: svc, cache: cache, logger: logger}
}

// ListParseable handles GET /api/v1/parse/files?section=.
func (h *ParseHandler) ListParseable(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())

	files, err := h.svc.ListParseable(r.Context(), authCtx.UserID, r.URL.Query().Get("section"))
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

// Start handles POST /api/v1/parse. Creates a job and returns 202; the
// parse itself runs in the background.
func (h *ParseHandler) Start(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())

	var req dto.StartParseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "MISSING_KEY", "Object key is required")
		return
	}

	job, err := h.svc.StartParse(r.Context(), authCtx.UserID, authCtx.OrgID, req.Key)
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.logger.Info("parse_job_started",
		"job_id", job.ID,
		"user_id", authCtx.UserID,
		"section", job.Section,
	)

	writeJSON(w, http.StatusAccepted, job)
}

// GetJob handles GET /api/v1/parse/jobs/{id}.
func (h *ParseHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())
	jobID := chi.URLParam(r, "id")

	job, err := h.svc.GetJob(r.Context(), authCtx.UserID, jobID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/v1/parse/jobs?limit=.
func (h *ParseHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	jobs, err := h.svc.ListJobs(r.Context(), authCtx.UserID, limit)
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// Stream handles GET /api/v1/parse/jobs/{id}/stream.
// Server-sent events: one data frame per progress update, then a final
// frame carrying the result or error.
func (h *ParseHandler) Stream(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())
	jobID := chi.URLParam(r, "id")

	job, err := h.svc.GetJob(r.Context(), authCtx.UserID, jobID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "Streaming is not supported")
		return
	}

	updates, unsubscribe, err := h.cache.SubscribeParseProgress(r.Context(), jobID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	defer unsubscribe()

	// The job can finish between the ownership check above and the
	// subscription going live; that terminal frame is published to
	// nobody. Re-read the job now so a finished one is served from
	// state instead of hanging on a channel that stays silent.
	job, err = h.svc.GetJob(r.Context(), authCtx.UserID, jobID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Disable proxy buffering so frames reach the client immediately.
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// A job that already finished gets its terminal frame from job
	// state; nothing more will be published.
	if job.Status.IsTerminal() {
		writeSSEFrame(w, terminalFrame(job))
		flusher.Flush()
		return
	}

	writeSSEFrame(w, cache.ProgressUpdate{
		JobID:    job.ID,
		Progress: job.Progress,
		Message:  job.Stage,
	})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case update, open := <-updates:
			if !open {
				return
			}
			writeSSEFrame(w, update)
			flusher.Flush()
			if update.Done {
				return
			}
		}
	}
}

// Batch handles POST /api/v1/parse/batch. Synchronous; returns the
// per-file report.
func (h *ParseHandler) Batch(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())

	var req dto.BatchParseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if req.Section == "" {
		writeError(w, http.StatusBadRequest, "MISSING_SECTION", "Section is required")
		return
	}

	report, err := h.svc.ParseBatch(r.Context(), authCtx.UserID, authCtx.OrgID, req.Section)
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.logger.Info("batch_parse_finished",
		"user_id", authCtx.UserID,
		"section", req.Section,
		"successful", report.Successful,
		"failed", report.Failed,
	)

	writeJSON(w, http.StatusOK, report)
}

// Direct handles POST /api/v1/parse/direct. Multipart form with one
// "file" part and a "section" field; uploads and parses in one request.
func (h *ParseHandler) Direct(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_MULTIPART", "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	section := sanitizeSection(r.FormValue("section"))
	if section == "" {
		writeError(w, http.StatusBadRequest, "MISSING_SECTION", "Form field 'section' is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "MISSING_FILE", "Form field 'file' is required")
		return
	}
	defer file.Close()

	result, err := h.svc.ParseDirect(r.Context(), authCtx.UserID, authCtx.OrgID, section, service.FileUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleError maps parse service errors to HTTP responses.
func (h *ParseHandler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrParseJobNotFound):
		writeError(w, http.StatusNotFound, "JOB_NOT_FOUND", "Parse job not found")
	case errors.Is(err, service.ErrUnsupportedFile):
		writeError(w, http.StatusUnprocessableEntity, "UNSUPPORTED_FILE", "File type cannot be parsed")
	case errors.Is(err, service.ErrForbiddenKey):
		writeError(w, http.StatusForbidden, "FORBIDDEN_KEY", "File does not belong to you")
	case errors.Is(err, service.ErrFileNotFound):
		writeError(w, http.StatusNotFound, "FILE_NOT_FOUND", "File not found")
	default:
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

// writeSSEFrame writes one server-sent-events data frame.
func writeSSEFrame(w http.ResponseWriter, update cache.ProgressUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

// terminalFrame renders a finished job as its closing SSE frame.
func terminalFrame(job *model.ParseJob) cache.ProgressUpdate {
	update := cache.ProgressUpdate{
		JobID:    job.ID,
		Progress: job.Progress,
		Message:  job.Stage,
		Done:     true,
	}
	if job.Status == model.ParseJobError {
		update.Error = job.Error
		return update
	}
	update.Progress = 100
	update.Message = "Parsing complete"
	return update
}
