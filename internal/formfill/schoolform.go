package formfill

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ezcommon/apply-portal/internal/llm"
	"github.com/ezcommon/apply-portal/internal/model"
)

// SchoolFillReport is the result of filling a school's question set.
type SchoolFillReport struct {
	Status          string               `json:"status"`
	Message         string               `json:"message,omitempty"`
	UserID          string               `json:"user_id"`
	SchoolID        string               `json:"school_id,omitempty"`
	TotalQuestions  int                  `json:"total_questions"`
	FilledCount     int                  `json:"filled_count"`
	RequiredFilled  int                  `json:"required_filled"`
	RequiredTotal   int                  `json:"required_total"`
	FillPercentage  float64              `json:"fill_percentage"`
	FilledQuestions []model.FilledAnswer `json:"filled_questions"`
}

// FillQuestions answers a question set from the user's chunks. Free
// text questions get a generated answer; select questions are matched
// against their options.
func (s *Service) FillQuestions(ctx context.Context, userID, schoolID string, questions []model.FormQuestion, useOptimization bool) (*SchoolFillReport, error) {
	chunks, err := s.index.GetUserChunks(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("load user chunks: %w", err)
	}
	if len(chunks) == 0 {
		return &SchoolFillReport{
			Status:          "warning",
			Message:         "No document chunks found for user",
			UserID:          userID,
			SchoolID:        schoolID,
			FilledQuestions: []model.FilledAnswer{},
		}, nil
	}

	report := &SchoolFillReport{
		Status:          "success",
		UserID:          userID,
		SchoolID:        schoolID,
		FilledQuestions: make([]model.FilledAnswer, 0, len(questions)),
	}

	for _, q := range questions {
		if q.ID == "" {
			continue
		}
		report.TotalQuestions++

		// The question label doubles as the category hint.
		optimized := OptimizeChunks(chunks, q.Label, maxChunksPerField, useOptimization)

		var answer string
		switch q.Type {
		case model.QuestionShortAnswer, model.QuestionLongAnswer:
			answer = s.generateAnswer(ctx, q, optimized)
		case model.QuestionSingleSelect, model.QuestionMultiSelect:
			answer = s.matchOptions(ctx, q, optimized)
		default:
			answer = notFound
		}

		filled := answer != notFound
		var sources []string
		if filled {
			sources = SourceFiles(optimized)
		}

		report.FilledQuestions = append(report.FilledQuestions, model.FilledAnswer{
			QuestionID:  q.ID,
			Label:       q.Label,
			Answer:      answer,
			Filled:      filled,
			SourceFiles: sources,
		})

		if filled {
			report.FilledCount++
		}
		if q.Required {
			report.RequiredTotal++
			if filled {
				report.RequiredFilled++
			}
		}
	}

	if report.TotalQuestions > 0 {
		report.FillPercentage = round2(float64(report.FilledCount) / float64(report.TotalQuestions) * 100)
	}
	return report, nil
}

// generateAnswer produces a free-text answer. Unlike strict field
// extraction this runs warm (0.3) and may synthesize across chunks.
func (s *Service) generateAnswer(ctx context.Context, q model.FormQuestion, chunks []*model.DocumentChunk) string {
	if len(chunks) == 0 {
		return notFound
	}

	prompt := fmt.Sprintf(`You are an application form filler. Based on the provided information from user documents, answer the following question.

## Question:
%s

## Available Information:
%s

## Instructions:
1. Answer based on the provided documents
2. If exact information is not available, make the best inference using the context provided
3. Only return "NOT FOUND" if absolutely no relevant information exists
4. Keep the answer concise and relevant
5. For essays, synthesize information from multiple chunks if needed

## Answer:`, q.Label, buildChunksContext(limitChunks(chunks)))

	answer, err := s.provider.ChatCompletion(ctx, []llm.Message{
		{Role: "user", Content: prompt},
	}, llm.ChatOptions{Temperature: 0.3, MaxTokens: 1000})
	if err != nil {
		s.logger.Warn("answer generation failed",
			slog.String("question_id", q.ID),
			slog.String("error", err.Error()))
		return notFound
	}

	answer = strings.TrimSpace(answer)
	if answer == "" || strings.EqualFold(answer, notFound) {
		return notFound
	}
	return answer
}

// matchOptions picks the option best supported by the user's chunks,
// verifying the model's pick against the option list with a fuzzy
// fallback.
func (s *Service) matchOptions(ctx context.Context, q model.FormQuestion, chunks []*model.DocumentChunk) string {
	if len(q.Options) == 0 || len(chunks) == 0 {
		return notFound
	}

	var options strings.Builder
	for _, opt := range q.Options {
		fmt.Fprintf(&options, "- %s\n", opt)
	}

	prompt := fmt.Sprintf(`You are matching user information to form options.

## Question:
%s

## Available Options:
%s
## User Information:
%s

## Instructions:
1. Find the best matching option based on user information
2. Return ONLY the option text that matches best
3. If no exact match, select the most reasonable option based on context
4. Only return "NOT FOUND" if no options seem relevant at all
5. Do not explain, just return the option

## Best Match:`, q.Label, options.String(), buildChunksContext(limitChunks(chunks)))

	answer, err := s.provider.ChatCompletion(ctx, []llm.Message{
		{Role: "user", Content: prompt},
	}, llm.ChatOptions{Temperature: 0.0, MaxTokens: 200})
	if err != nil {
		s.logger.Warn("option matching failed",
			slog.String("question_id", q.ID),
			slog.String("error", err.Error()))
		return notFound
	}

	return MatchOption(strings.TrimSpace(answer), q.Options)
}

// MatchOption validates a model answer against the allowed options.
// Exact match wins; otherwise a case-insensitive containment match in
// either direction; otherwise NOT FOUND.
func MatchOption(answer string, options []string) string {
	if answer == "" {
		return notFound
	}

	for _, opt := range options {
		if answer == opt {
			return opt
		}
	}

	answerLower := strings.ToLower(answer)
	for _, opt := range options {
		optLower := strings.ToLower(opt)
		if strings.Contains(optLower, answerLower) || strings.Contains(answerLower, optLower) {
			return opt
		}
	}

	return notFound
}

func limitChunks(chunks []*model.DocumentChunk) []*model.DocumentChunk {
	if len(chunks) > extractChunkLimit {
		return chunks[:extractChunkLimit]
	}
	return chunks
}
