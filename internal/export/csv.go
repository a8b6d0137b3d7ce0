// Package export renders a user's indexed chunks as CSV downloads and
// aggregate statistics.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ezcommon/apply-portal/internal/model"
	"github.com/ezcommon/apply-portal/internal/search"
)

// Service reads the chunk index and produces exports.
type Service struct {
	index *search.Client
}

// NewService creates a Service.
func NewService(index *search.Client) *Service {
	return &Service{index: index}
}

// CSVExport is a generated CSV with its metadata envelope.
type CSVExport struct {
	Status          string   `json:"status"`
	Message         string   `json:"message,omitempty"`
	CSVContent      string   `json:"csv_content"`
	TotalDocuments  int      `json:"total_documents"`
	TotalChunks     int      `json:"total_chunks,omitempty"`
	TotalCategories int      `json:"total_categories,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	Section         string   `json:"section"`
	GeneratedAt     string   `json:"generated_at"`
}

var summaryHeader = []string{"Source File", "File Type", "Section", "Category", "Chunk Type", "Content", "Extraction Date"}

// SummaryCSV renders one row per chunk with full provenance.
func (s *Service) SummaryCSV(ctx context.Context, userID, section string) (*CSVExport, error) {
	chunks, err := s.index.GetUserChunks(ctx, userID, section)
	if err != nil {
		return nil, fmt.Errorf("load user chunks: %w", err)
	}
	if len(chunks) == 0 {
		return emptyExport(section), nil
	}

	records := [][]string{summaryHeader}
	for _, c := range chunks {
		records = append(records, []string{
			orValue(c.SourceFile, "Unknown"),
			orValue(c.FileType, "Unknown"),
			orValue(c.Section, "Unknown"),
			c.Category,
			c.ChunkType,
			c.Content,
			c.ExtractionDate,
		})
	}

	content, err := writeCSV(records)
	if err != nil {
		return nil, err
	}

	return &CSVExport{
		Status:         "success",
		CSVContent:     content,
		TotalDocuments: countDocuments(chunks),
		TotalChunks:    len(chunks),
		Section:        sectionLabel(section),
		GeneratedAt:    time.Now().UTC().Format(time.RFC3339),
	}, nil
}

var categorizedHeader = []string{"Category", "Information", "Source File", "Section"}

// CategorizedCSV renders chunks grouped by category.
func (s *Service) CategorizedCSV(ctx context.Context, userID, section string) (*CSVExport, error) {
	chunks, err := s.index.GetUserChunks(ctx, userID, section)
	if err != nil {
		return nil, fmt.Errorf("load user chunks: %w", err)
	}
	if len(chunks) == 0 {
		return emptyExport(section), nil
	}

	byCategory := make(map[string][]*model.DocumentChunk)
	for _, c := range chunks {
		category := orValue(c.Category, "uncategorized")
		byCategory[category] = append(byCategory[category], c)
	}

	categories := make([]string, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	records := [][]string{categorizedHeader}
	for _, category := range categories {
		for _, c := range byCategory[category] {
			records = append(records, []string{
				category,
				c.Content,
				orValue(c.SourceFile, "Unknown"),
				orValue(c.Section, "Unknown"),
			})
		}
	}

	content, err := writeCSV(records)
	if err != nil {
		return nil, err
	}

	return &CSVExport{
		Status:          "success",
		CSVContent:      content,
		TotalDocuments:  countDocuments(chunks),
		TotalCategories: len(categories),
		Categories:      categories,
		Section:         sectionLabel(section),
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func emptyExport(section string) *CSVExport {
	return &CSVExport{
		Status:      "error",
		Message:     "No documents found for this user",
		Section:     sectionLabel(section),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

func writeCSV(records [][]string) (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.WriteAll(records); err != nil {
		return "", fmt.Errorf("write csv: %w", err)
	}
	w.Flush()
	return b.String(), w.Error()
}

// countDocuments counts distinct source files among chunks.
func countDocuments(chunks []*model.DocumentChunk) int {
	seen := make(map[string]bool)
	for _, c := range chunks {
		seen[orValue(c.SourceFile, "Unknown")] = true
	}
	return len(seen)
}

func sectionLabel(section string) string {
	if section == "" {
		return "all"
	}
	return section
}

func orValue(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
