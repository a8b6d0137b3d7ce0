package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/ezcommon/apply-portal/internal/events"
	"github.com/ezcommon/apply-portal/internal/metrics"
	"github.com/ezcommon/apply-portal/internal/model"
	"github.com/ezcommon/apply-portal/internal/notify"
	"github.com/ezcommon/apply-portal/internal/search"
	"github.com/ezcommon/apply-portal/internal/storage"
)

// Upload errors.
var (
	ErrForbiddenKey = errors.New("file does not belong to user")
	ErrFileNotFound = errors.New("file not found")
)

// UploadService handles upload storage business logic.
type UploadService struct {
	store    *storage.Store
	index    *search.Client
	notifier *notify.Publisher
	activity *events.Publisher
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// NewUploadService creates a new UploadService. notifier and activity
// may be nil in tests.
func NewUploadService(store *storage.Store, index *search.Client, notifier *notify.Publisher, activity *events.Publisher, recorder metrics.Recorder, logger *slog.Logger) *UploadService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &UploadService{
		store:    store,
		index:    index,
		notifier: notifier,
		activity: activity,
		metrics:  recorder,
		logger:   logger,
	}
}

// FileUpload is one file of a multipart upload request.
type FileUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadReport accumulates per-file outcomes of one upload request.
// A request with some failed files still reports status ok.
type UploadReport struct {
	Status        string                `json:"status"`
	UploadedCount int                   `json:"uploaded_count"`
	Files         []*model.UploadedFile `json:"files"`
	Errors        []string              `json:"errors"`
}

// UploadFiles stores a batch of files into the user's section. Failures
// are per-file; one bad file does not abort the rest.
func (s *UploadService) UploadFiles(ctx context.Context, userID, orgID, section string, uploads []FileUpload) *UploadReport {
	report := &UploadReport{
		Status: "ok",
		Files:  []*model.UploadedFile{},
		Errors: []string{},
	}

	for _, u := range uploads {
		file, err := s.store.Upload(ctx, userID, section, u.Filename, u.ContentType, u.Body)
		if err != nil {
			s.metrics.IncUpload("failed")
			s.logger.Warn("upload failed",
				slog.String("user_id", userID),
				slog.String("filename", u.Filename),
				slog.String("error", err.Error()))
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", u.Filename, err))
			continue
		}

		file.Size = u.Size
		report.Files = append(report.Files, file)
		report.UploadedCount++

		s.metrics.IncUpload("success")
		s.metrics.ObserveUploadSize(u.Size)

		if s.activity != nil {
			s.activity.PublishAsync(events.NewPayload(userID, orgID, model.ActivityUpload, section, file.Key, 0))
		}
		if s.notifier != nil {
			eventID := ulid.Make().String()
			if err := s.notifier.PublishUploadCompleted(ctx, orgID, eventID, model.UploadCompletedData{
				UserID:           userID,
				Section:          section,
				OriginalFilename: file.OriginalFilename,
				SizeBytes:        u.Size,
			}); err != nil {
				s.logger.Warn("webhook publish failed",
					slog.String("event_type", string(model.EventTypeUploadCompleted)),
					slog.String("org_id", orgID),
					slog.String("error", err.Error()))
			}
		}
	}

	return report
}

// ListSection lists the user's files within one section.
func (s *UploadService) ListSection(ctx context.Context, userID, section string) ([]*model.UploadedFile, error) {
	return s.store.ListBySection(ctx, userID, section)
}

// ListAll lists every file the user has uploaded.
func (s *UploadService) ListAll(ctx context.Context, userID string) ([]*model.UploadedFile, error) {
	return s.store.ListAll(ctx, userID)
}

// ListSections lists the sections the user has uploaded into.
func (s *UploadService) ListSections(ctx context.Context, userID string) ([]string, error) {
	return s.store.ListSections(ctx, userID)
}

// GetMetadata returns object metadata for the user's own file.
func (s *UploadService) GetMetadata(ctx context.Context, userID, key string) (*model.FileMetadata, error) {
	meta, err := s.store.GetMetadata(ctx, userID, key)
	if err != nil {
		return nil, s.mapStorageError(err)
	}
	return meta, nil
}

// DeleteFile removes the user's own file and best-effort drops the
// chunks that were indexed from it.
func (s *UploadService) DeleteFile(ctx context.Context, userID, key string) error {
	meta, err := s.store.GetMetadata(ctx, userID, key)
	if err != nil {
		return s.mapStorageError(err)
	}

	if err := s.store.Delete(ctx, userID, key); err != nil {
		return s.mapStorageError(err)
	}

	if s.index != nil && meta.OriginalFilename != "" {
		if _, err := s.index.DeleteUserFile(ctx, userID, meta.OriginalFilename); err != nil {
			// The object is gone; orphaned chunks are a cleanup concern,
			// not a delete failure.
			s.logger.Warn("chunk cleanup failed",
				slog.String("user_id", userID),
				slog.String("source_file", meta.OriginalFilename),
				slog.String("error", err.Error()))
		}
	}

	return nil
}

func (s *UploadService) mapStorageError(err error) error {
	switch {
	case errors.Is(err, storage.ErrForbiddenKey):
		return ErrForbiddenKey
	case errors.Is(err, storage.ErrObjectNotFound):
		return ErrFileNotFound
	default:
		return err
	}
}
