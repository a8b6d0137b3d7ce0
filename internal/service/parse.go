package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ezcommon/apply-portal/internal/cache"
	"github.com/ezcommon/apply-portal/internal/docparse"
	"github.com/ezcommon/apply-portal/internal/events"
	"github.com/ezcommon/apply-portal/internal/metrics"
	"github.com/ezcommon/apply-portal/internal/model"
	"github.com/ezcommon/apply-portal/internal/notify"
	"github.com/ezcommon/apply-portal/internal/repository"
	"github.com/ezcommon/apply-portal/internal/storage"
)

// Parse errors.
var (
	ErrParseJobNotFound = errors.New("parse job not found")
	ErrUnsupportedFile  = errors.New("unsupported file type")
)

// parseJobTimeout bounds one background parse run end to end.
const parseJobTimeout = 10 * time.Minute

// ParseService orchestrates parse jobs around the docparse pipeline.
type ParseService struct {
	repo     *repository.Repository
	cache    *cache.Cache
	pipeline *docparse.Pipeline
	store    *storage.Store
	notifier *notify.Publisher
	activity *events.Publisher
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// NewParseService creates a new ParseService. notifier and activity may
// be nil in tests.
func NewParseService(repo *repository.Repository, cache *cache.Cache, pipeline *docparse.Pipeline, store *storage.Store, notifier *notify.Publisher, activity *events.Publisher, recorder metrics.Recorder, logger *slog.Logger) *ParseService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &ParseService{
		repo:     repo,
		cache:    cache,
		pipeline: pipeline,
		store:    store,
		notifier: notifier,
		activity: activity,
		metrics:  recorder,
		logger:   logger,
	}
}

// ListParseable lists the user's uploaded files that the pipeline can
// process, across all sections when section is empty.
func (s *ParseService) ListParseable(ctx context.Context, userID, section string) ([]*model.UploadedFile, error) {
	var (
		files []*model.UploadedFile
		err   error
	)
	if section == "" {
		files, err = s.store.ListAll(ctx, userID)
	} else {
		files, err = s.store.ListBySection(ctx, userID, section)
	}
	if err != nil {
		return nil, err
	}

	parseable := make([]*model.UploadedFile, 0, len(files))
	for _, f := range files {
		if docparse.FileTypeFor(f.OriginalFilename) != "" {
			parseable = append(parseable, f)
		}
	}
	return parseable, nil
}

// StartParse creates a parse job for one stored file and runs it in the
// background. Progress is fanned out over Redis pub/sub, so the SSE
// stream can be served from any instance.
func (s *ParseService) StartParse(ctx context.Context, userID, orgID, s3Key string) (*model.ParseJob, error) {
	meta, err := s.store.GetMetadata(ctx, userID, s3Key)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrForbiddenKey):
			return nil, ErrForbiddenKey
		case errors.Is(err, storage.ErrObjectNotFound):
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	if docparse.FileTypeFor(meta.OriginalFilename) == "" {
		return nil, ErrUnsupportedFile
	}

	now := time.Now().UTC()
	job := &model.ParseJob{
		ID:        ulid.Make().String(),
		UserID:    userID,
		S3Key:     s3Key,
		Section:   storage.SectionFromKey(s3Key),
		Status:    model.ParseJobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateParseJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create parse job: %w", err)
	}

	go s.runJob(job, orgID, meta.OriginalFilename)

	return job, nil
}

// runJob executes one parse job in the background. The request context
// is gone by the time this runs; the job gets its own deadline.
func (s *ParseService) runJob(job *model.ParseJob, orgID, filename string) {
	ctx, cancel := context.WithTimeout(context.Background(), parseJobTimeout)
	defer cancel()

	if err := s.repo.MarkParseJobRunning(ctx, job.ID); err != nil {
		s.logger.Error("mark job running failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
		return
	}

	report := func(progress int, message string) {
		if err := s.repo.UpdateParseJobProgress(ctx, job.ID, progress, message); err != nil {
			s.logger.Warn("job progress update failed",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()))
		}
		if err := s.cache.PublishParseProgress(ctx, job.ID, cache.ProgressUpdate{
			Progress: progress,
			Message:  message,
			Stage:    message,
		}); err != nil {
			s.logger.Warn("progress publish failed",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()))
		}
	}

	result, err := s.pipeline.ParseFile(ctx, job.UserID, job.Section, job.S3Key, filename, report)
	if err != nil {
		s.failJob(ctx, job.ID, err)
		return
	}

	if err := s.repo.CompleteParseJob(ctx, job.ID, result.DocumentID, result.ChunkCount); err != nil {
		s.logger.Error("complete job failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		resultJSON = nil
	}
	if err := s.cache.PublishParseProgress(ctx, job.ID, cache.ProgressUpdate{
		Progress: 100,
		Message:  "Parsing complete",
		Done:     true,
		Result:   resultJSON,
	}); err != nil {
		s.logger.Warn("progress publish failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
	}

	s.recordParseSuccess(ctx, job.UserID, orgID, result)
}

// failJob records a terminal job error and pushes the error frame.
func (s *ParseService) failJob(ctx context.Context, jobID string, parseErr error) {
	s.metrics.IncParseJob("error")

	if err := s.repo.FailParseJob(ctx, jobID, parseErr.Error()); err != nil {
		s.logger.Error("fail job update failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
	}
	if err := s.cache.PublishParseProgress(ctx, jobID, cache.ProgressUpdate{
		Done:  true,
		Error: parseErr.Error(),
	}); err != nil {
		s.logger.Warn("progress publish failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
	}
}

// recordParseSuccess emits the metrics, activity event and webhook that
// follow any successful parse, regardless of how it was invoked. The
// duration observed is the per-file wall time measured by the pipeline.
func (s *ParseService) recordParseSuccess(ctx context.Context, userID, orgID string, result *model.ParseResult) {
	s.metrics.IncParseJob("complete")
	s.metrics.ObserveParseDuration(result.Duration)
	s.metrics.AddChunksIndexed(result.ChunkCount)

	if s.activity != nil {
		s.activity.PublishAsync(events.NewPayload(userID, orgID, model.ActivityParse, result.Section, result.DocumentID, int64(result.ChunkCount)))
	}
	if s.notifier != nil {
		eventID := ulid.Make().String()
		if err := s.notifier.PublishParseCompleted(ctx, orgID, eventID, model.ParseCompletedData{
			UserID:     userID,
			DocumentID: result.DocumentID,
			SourceFile: result.SourceFile,
			Section:    result.Section,
			ChunkCount: result.ChunkCount,
		}); err != nil {
			s.logger.Warn("webhook publish failed",
				slog.String("event_type", string(model.EventTypeParseCompleted)),
				slog.String("org_id", orgID),
				slog.String("error", err.Error()))
		}
	}
}

// GetJob loads the user's own parse job.
func (s *ParseService) GetJob(ctx context.Context, userID, jobID string) (*model.ParseJob, error) {
	job, err := s.repo.GetParseJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrParseJobNotFound) {
			return nil, ErrParseJobNotFound
		}
		return nil, err
	}
	// Jobs are private; an existing job owned by someone else looks
	// exactly like a missing one.
	if job.UserID != userID {
		return nil, ErrParseJobNotFound
	}
	return job, nil
}

// ListJobs lists the user's most recent parse jobs.
func (s *ParseService) ListJobs(ctx context.Context, userID string, limit int) ([]*model.ParseJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListUserParseJobs(ctx, userID, limit)
}

// ParseBatch parses every parseable file in the user's section
// synchronously and returns the per-file report.
func (s *ParseService) ParseBatch(ctx context.Context, userID, orgID, section string) (*model.ProcessingReport, error) {
	files, err := s.ListParseable(ctx, userID, section)
	if err != nil {
		return nil, err
	}

	metas := make([]model.FileMetadata, 0, len(files))
	for _, f := range files {
		metas = append(metas, model.FileMetadata{
			Key:              f.Key,
			OriginalFilename: f.OriginalFilename,
		})
	}

	report := s.pipeline.ParseBatch(ctx, userID, section, metas)

	for i := range report.Results {
		s.recordParseSuccess(ctx, userID, orgID, &report.Results[i])
	}
	for range report.Errors {
		s.metrics.IncParseJob("error")
	}

	return report, nil
}

// ParseDirect uploads one file and parses it in the same request.
func (s *ParseService) ParseDirect(ctx context.Context, userID, orgID, section string, upload FileUpload) (*model.ParseResult, error) {
	if docparse.FileTypeFor(upload.Filename) == "" {
		return nil, ErrUnsupportedFile
	}

	file, err := s.store.Upload(ctx, userID, section, upload.Filename, upload.ContentType, upload.Body)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	result, err := s.pipeline.ParseFile(ctx, userID, section, file.Key, file.OriginalFilename, nil)
	if err != nil {
		s.metrics.IncParseJob("error")
		return nil, err
	}

	s.recordParseSuccess(ctx, userID, orgID, result)
	return result, nil
}
