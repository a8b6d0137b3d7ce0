package export

import (
	"context"
	"fmt"
	"sort"
)

// Stats summarizes a user's indexed documents.
type Stats struct {
	TotalDocuments int      `json:"total_documents"`
	TotalChunks    int      `json:"total_chunks"`
	Categories     []string `json:"categories"`
	Sections       []string `json:"sections"`
	FileTypes      []string `json:"file_types"`
}

// Statistics aggregates over the user's chunks, optionally limited to
// one section.
func (s *Service) Statistics(ctx context.Context, userID, section string) (*Stats, error) {
	chunks, err := s.index.GetUserChunks(ctx, userID, section)
	if err != nil {
		return nil, fmt.Errorf("load user chunks: %w", err)
	}

	stats := &Stats{
		Categories: []string{},
		Sections:   []string{},
		FileTypes:  []string{},
	}
	if len(chunks) == 0 {
		return stats, nil
	}

	categories := make(map[string]bool)
	sections := make(map[string]bool)
	fileTypes := make(map[string]bool)

	for _, c := range chunks {
		categories[orValue(c.Category, "uncategorized")] = true
		sections[orValue(c.Section, "Unknown")] = true
		fileTypes[orValue(c.FileType, "Unknown")] = true
	}

	stats.TotalDocuments = countDocuments(chunks)
	stats.TotalChunks = len(chunks)
	stats.Categories = sortedKeys(categories)
	stats.Sections = sortedKeys(sections)
	stats.FileTypes = sortedKeys(fileTypes)
	return stats, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
