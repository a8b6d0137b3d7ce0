// Package formfill extracts form field values and fills school
// application questions from a user's indexed document chunks.
package formfill

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/ezcommon/apply-portal/internal/llm"
	"github.com/ezcommon/apply-portal/internal/model"
	"github.com/ezcommon/apply-portal/internal/search"
)

// notFound is the strict sentinel the extraction protocol uses for
// missing information.
const notFound = "NOT FOUND"

// extractChunkLimit caps how many chunks go into one extraction prompt.
const extractChunkLimit = 30

// Service runs field extraction against the chunk index.
type Service struct {
	index    *search.Client
	provider llm.Provider
	logger   *slog.Logger
}

// NewService creates a Service.
func NewService(index *search.Client, provider llm.Provider, logger *slog.Logger) *Service {
	return &Service{index: index, provider: provider, logger: logger}
}

// FillReport summarizes a multi-field extraction run.
type FillReport struct {
	Status          string            `json:"status"`
	Message         string            `json:"message,omitempty"`
	TotalFields     int               `json:"total_fields"`
	FoundFields     int               `json:"found_fields"`
	NotFoundFields  int               `json:"not_found_fields"`
	SuccessRate     float64           `json:"success_rate"`
	ChunksAvailable int               `json:"total_chunks_available"`
	Results         map[string]string `json:"results"`
}

// FillFields extracts every requested field from the user's chunks.
func (s *Service) FillFields(ctx context.Context, userID string, defs []model.FieldDefinition, section string, useOptimization bool) (*FillReport, error) {
	chunks, err := s.index.GetUserChunks(ctx, userID, section)
	if err != nil {
		return nil, fmt.Errorf("load user chunks: %w", err)
	}
	if len(chunks) == 0 {
		return &FillReport{
			Status:  "error",
			Message: "No document chunks found for user",
			Results: map[string]string{},
		}, nil
	}

	report := &FillReport{
		Status:          "success",
		ChunksAvailable: len(chunks),
		Results:         make(map[string]string, len(defs)),
	}

	for _, def := range defs {
		if def.Name == "" {
			continue
		}
		report.TotalFields++

		optimized := OptimizeChunks(chunks, def.Category, maxChunksPerField, useOptimization)
		value := s.ExtractFieldValue(ctx, def, optimized)
		report.Results[def.Name] = value

		if IsFound(value) {
			report.FoundFields++
		} else {
			report.NotFoundFields++
		}
	}

	if report.TotalFields > 0 {
		report.SuccessRate = round2(float64(report.FoundFields) / float64(report.TotalFields) * 100)
	}
	return report, nil
}

// ExtractFieldValue pulls one field's value out of the chunks, or a
// "NOT FOUND" message when the information is absent.
func (s *Service) ExtractFieldValue(ctx context.Context, def model.FieldDefinition, chunks []*model.DocumentChunk) string {
	if len(chunks) > extractChunkLimit {
		chunks = chunks[:extractChunkLimit]
	}
	if len(chunks) == 0 {
		return notFound + " - No document chunks available"
	}

	prompt := buildExtractionPrompt(def, buildChunksContext(chunks))

	value, err := s.provider.ChatCompletion(ctx, []llm.Message{
		{Role: "user", Content: prompt},
	}, llm.ChatOptions{Temperature: 0.0, MaxTokens: 1024})
	if err != nil {
		s.logger.Warn("field extraction failed",
			slog.String("field", def.Name),
			slog.String("error", err.Error()))
		return fmt.Sprintf("%s - Error: %v", notFound, err)
	}

	return strings.TrimSpace(value)
}

// IsFound reports whether an extracted value is real information rather
// than a "NOT FOUND" response.
func IsFound(value string) bool {
	return !strings.Contains(strings.ToUpper(value), notFound)
}

// SourceFiles returns the distinct source files of the top chunks, used
// to attribute a filled answer. At most 3 chunks contribute.
func SourceFiles(chunks []*model.DocumentChunk) []string {
	seen := make(map[string]bool)
	var files []string
	for i, chunk := range chunks {
		if i >= 3 {
			break
		}
		if chunk.SourceFile != "" && !seen[chunk.SourceFile] {
			seen[chunk.SourceFile] = true
			files = append(files, chunk.SourceFile)
		}
	}
	return files
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// buildChunksContext renders chunks for a prompt, numbered with their
// provenance.
func buildChunksContext(chunks []*model.DocumentChunk) string {
	var b strings.Builder
	for i, chunk := range chunks {
		category := orUnknown(chunk.Category)
		chunkType := orUnknown(chunk.ChunkType)
		source := orUnknown(chunk.SourceFile)
		section := orUnknown(chunk.Section)
		fmt.Fprintf(&b, "Chunk %d:\n  Category: %s\n  Type: %s\n  Source: %s (%s)\n  Content: %s\n\n",
			i+1, category, chunkType, source, section, chunk.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func buildExtractionPrompt(def model.FieldDefinition, contextStr string) string {
	return fmt.Sprintf(`# Form Field Auto-Fill Assistant

You are a form field auto-fill assistant. Your task is to extract precise information from documents to fill specific form fields.

## Extraction Guidelines:

### 1. Semantic Matching:
- The category names in documents may differ from the expected category - use semantic understanding
- Look for information that conceptually matches what the field is asking for
- Consider variations in terminology (e.g., "personal_information" = "Personal Information" = "Contact Details")

### 2. Precision Rules:
- Extract ONLY the specific value needed, not the entire chunk
- Return the exact data point requested, nothing more

### 3. If Information Not Found:
- If the requested information is not in the documents, return exactly: "NOT FOUND"
- Do not make up or infer information

### 4. Format Rules:
Return ONLY the extracted value, nothing else.
- Do NOT include the field name
- Do NOT include labels or prefixes
- Do NOT include explanations
- Do NOT include checkmarks, symbols, or special characters
- Just the pure value

## Current Field to Fill:

**Field Name**: %s
**Information Category**: %s
**Suggested Information Source**: %s

## Available Information from Documents:

%s

## EXTRACTED VALUE:`, def.Name, def.Category, def.Source, contextStr)
}
