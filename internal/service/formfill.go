package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ezcommon/apply-portal/internal/events"
	"github.com/ezcommon/apply-portal/internal/formfill"
	"github.com/ezcommon/apply-portal/internal/metrics"
	"github.com/ezcommon/apply-portal/internal/model"
	"github.com/ezcommon/apply-portal/internal/repository"
)

// Form fill errors.
var (
	ErrFormOutputNotFound = errors.New("form output not found")
	ErrNoQuestions        = errors.New("no questions provided")
)

// FormFillService wraps field extraction and form filling with output
// persistence.
type FormFillService struct {
	fill     *formfill.Service
	repo     *repository.Repository
	activity *events.Publisher
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// NewFormFillService creates a new FormFillService. activity may be nil
// in tests.
func NewFormFillService(fill *formfill.Service, repo *repository.Repository, activity *events.Publisher, recorder metrics.Recorder, logger *slog.Logger) *FormFillService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &FormFillService{
		fill:     fill,
		repo:     repo,
		activity: activity,
		metrics:  recorder,
		logger:   logger,
	}
}

// FillFields extracts the requested field values from the user's chunks.
func (s *FormFillService) FillFields(ctx context.Context, userID string, defs []model.FieldDefinition, section string, useOptimization bool) (*formfill.FillReport, error) {
	if len(defs) == 0 {
		return nil, ErrNoQuestions
	}

	report, err := s.fill.FillFields(ctx, userID, defs, section, useOptimization)
	if err != nil {
		return nil, err
	}

	for i := 0; i < report.FoundFields; i++ {
		s.metrics.IncFieldExtraction("found")
	}
	for i := 0; i < report.NotFoundFields; i++ {
		s.metrics.IncFieldExtraction("not_found")
	}

	return report, nil
}

// FillSchoolForm answers a school's question set and persists the
// result so the student can reload it later.
func (s *FormFillService) FillSchoolForm(ctx context.Context, userID, orgID, schoolID string, questions []model.FormQuestion, useOptimization bool) (*formfill.SchoolFillReport, error) {
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	report, err := s.fill.FillQuestions(ctx, userID, schoolID, questions, useOptimization)
	if err != nil {
		return nil, err
	}

	s.recordFill(ctx, userID, orgID, schoolID, report)
	return report, nil
}

// FillGeneralQuestions answers the built-in general question set,
// optionally narrowed to one section.
func (s *FormFillService) FillGeneralQuestions(ctx context.Context, userID, orgID, section string, useOptimization bool) (*formfill.SchoolFillReport, error) {
	questions := formfill.GeneralQuestions()
	if section != "" {
		questions = formfill.GeneralQuestionsBySection(section)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	report, err := s.fill.FillQuestions(ctx, userID, "", questions, useOptimization)
	if err != nil {
		return nil, err
	}

	s.recordFill(ctx, userID, orgID, "", report)
	return report, nil
}

// recordFill persists the filled form and emits fill telemetry.
func (s *FormFillService) recordFill(ctx context.Context, userID, orgID, schoolID string, report *formfill.SchoolFillReport) {
	for i := 0; i < report.FilledCount; i++ {
		s.metrics.IncFieldExtraction("found")
	}
	for i := 0; i < report.TotalQuestions-report.FilledCount; i++ {
		s.metrics.IncFieldExtraction("not_found")
	}

	if report.TotalQuestions == 0 {
		return // Nothing was answered, nothing to persist
	}

	now := time.Now().UTC()
	out := &model.FormOutput{
		ID:          formOutputID(userID, schoolID),
		UserID:      userID,
		SchoolID:    schoolID,
		Answers:     report.FilledQuestions,
		FilledCount: report.FilledCount,
		SuccessRate: report.FillPercentage,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.SaveFormOutput(ctx, out); err != nil {
		s.logger.Warn("form output save failed",
			slog.String("user_id", userID),
			slog.String("school_id", schoolID),
			slog.String("error", err.Error()))
	}

	if s.activity != nil {
		s.activity.PublishAsync(events.NewPayload(userID, orgID, model.ActivityFormFill, "", out.ID, 0))
	}
}

// GeneralQuestions exposes the built-in question set.
func (s *FormFillService) GeneralQuestions(section string) []model.FormQuestion {
	if section != "" {
		return formfill.GeneralQuestionsBySection(section)
	}
	return formfill.GeneralQuestions()
}

// QuestionSections lists the sections of the built-in question set.
func (s *FormFillService) QuestionSections() []string {
	return formfill.QuestionSections()
}

// GetOutput loads one persisted filled form.
func (s *FormFillService) GetOutput(ctx context.Context, userID, schoolID string) (*model.FormOutput, error) {
	out, err := s.repo.GetFormOutput(ctx, userID, schoolID)
	if err != nil {
		if errors.Is(err, repository.ErrFormOutputNotFound) {
			return nil, ErrFormOutputNotFound
		}
		return nil, err
	}
	return out, nil
}

// ListOutputs lists the user's persisted filled forms.
func (s *FormFillService) ListOutputs(ctx context.Context, userID string) ([]*model.FormOutput, error) {
	return s.repo.ListFormOutputs(ctx, userID)
}

// DeleteOutput removes one persisted filled form.
func (s *FormFillService) DeleteOutput(ctx context.Context, userID, schoolID string) error {
	if err := s.repo.DeleteFormOutput(ctx, userID, schoolID); err != nil {
		if errors.Is(err, repository.ErrFormOutputNotFound) {
			return ErrFormOutputNotFound
		}
		return err
	}
	return nil
}

// formOutputID names a persisted form output.
func formOutputID(userID, schoolID string) string {
	if schoolID == "" {
		return fmt.Sprintf("filled_form_user_%s_general", userID)
	}
	return fmt.Sprintf("filled_form_user_%s_school_%s", userID, schoolID)
}
