package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ezcommon/apply-portal/internal/auth"
	"github.com/ezcommon/apply-portal/internal/service"
)

// maxUploadMemory bounds the in-memory part of multipart parsing;
// larger files spill to temp files.
const maxUploadMemory = 10 << 20 // 10 MB

// UploadHandler handles file upload endpoints.
type UploadHandler struct {
	svc    *service.UploadService
	logger *slog.Logger
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(svc *service.UploadService, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{svc: svc, logger: logger}
}

// Upload handles POST /api/v1/uploads/{section}. Multipart form with
// one or more "files" parts.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())
	section := sanitizeSection(chi.URLParam(r, "section"))
	if section == "" {
		writeError(w, http.StatusBadRequest, "MISSING_SECTION", "Section is required")
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_MULTIPART", "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	parts := r.MultipartForm.File["files"]
	if len(parts) == 0 {
		writeError(w, http.StatusBadRequest, "NO_FILES", "At least one file is required")
		return
	}

	uploads := make([]service.FileUpload, 0, len(parts))
	opened := make([]interface{ Close() error }, 0, len(parts))
	for _, part := range parts {
		f, err := part.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "UNREADABLE_FILE", "Could not read uploaded file "+part.Filename)
			for _, o := range opened {
				o.Close()
			}
			return
		}
		opened = append(opened, f)
		uploads = append(uploads, service.FileUpload{
			Filename:    part.Filename,
			ContentType: part.Header.Get("Content-Type"),
			Size:        part.Size,
			Body:        f,
		})
	}
	defer func() {
		for _, o := range opened {
			o.Close()
		}
	}()

	report := h.svc.UploadFiles(r.Context(), authCtx.UserID, authCtx.OrgID, section, uploads)

	h.logger.Info("files_uploaded",
		"user_id", authCtx.UserID,
		"section", section,
		"uploaded", report.UploadedCount,
		"failed", len(report.Errors),
	)

	writeJSON(w, http.StatusOK, report)
}

// List handles GET /api/v1/uploads?section=.
func (h *UploadHandler) List(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())
	section := r.URL.Query().Get("section")

	var (
		files any
		err   error
	)
	if section == "" {
		files, err = h.svc.ListAll(r.Context(), authCtx.UserID)
	} else {
		files, err = h.svc.ListSection(r.Context(), authCtx.UserID, section)
	}
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

// Sections handles GET /api/v1/uploads/sections.
func (h *UploadHandler) Sections(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())

	sections, err := h.svc.ListSections(r.Context(), authCtx.UserID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sections": sections})
}

// Metadata handles GET /api/v1/uploads/metadata?key=.
// Object keys contain slashes, so they travel as a query parameter.
func (h *UploadHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "MISSING_KEY", "Query parameter 'key' is required")
		return
	}

	meta, err := h.svc.GetMetadata(r.Context(), authCtx.UserID, key)
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, meta)
}

// Delete handles DELETE /api/v1/uploads?key=.
func (h *UploadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "MISSING_KEY", "Query parameter 'key' is required")
		return
	}

	if err := h.svc.DeleteFile(r.Context(), authCtx.UserID, key); err != nil {
		h.handleError(w, err)
		return
	}

	h.logger.Info("file_deleted",
		"user_id", authCtx.UserID,
		"key", key,
	)

	w.WriteHeader(http.StatusNoContent)
}

// handleError maps upload service errors to HTTP responses.
func (h *UploadHandler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrForbiddenKey):
		writeError(w, http.StatusForbidden, "FORBIDDEN_KEY", "File does not belong to you")
	case errors.Is(err, service.ErrFileNotFound):
		writeError(w, http.StatusNotFound, "FILE_NOT_FOUND", "File not found")
	default:
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

// sanitizeSection normalizes a section path segment.
func sanitizeSection(section string) string {
	section = strings.ToLower(strings.TrimSpace(section))
	return strings.Trim(section, "/")
}
