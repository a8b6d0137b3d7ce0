package formfill

import (
	"sort"
	"strings"

	"github.com/ezcommon/apply-portal/internal/model"
)

// maxChunksPerField caps how many chunks are considered for one field.
const maxChunksPerField = 200

// OptimizeChunks orders chunks for one field: category matches ahead of
// the rest, then longest content first, capped at maxChunks. With
// useOptimization false the input order is kept, only capped.
func OptimizeChunks(chunks []*model.DocumentChunk, fieldCategory string, maxChunks int, useOptimization bool) []*model.DocumentChunk {
	if maxChunks <= 0 {
		maxChunks = maxChunksPerField
	}

	if !useOptimization {
		if len(chunks) > maxChunks {
			return chunks[:maxChunks]
		}
		return chunks
	}

	fieldLower := strings.ToLower(fieldCategory)

	var matches, others []*model.DocumentChunk
	for _, chunk := range chunks {
		chunkCategory := strings.ToLower(chunk.Category)
		if chunkCategory != "" && fieldLower != "" &&
			(strings.Contains(chunkCategory, fieldLower) || strings.Contains(fieldLower, chunkCategory)) {
			matches = append(matches, chunk)
		} else {
			others = append(others, chunk)
		}
	}

	optimized := make([]*model.DocumentChunk, 0, len(chunks))
	optimized = append(optimized, matches...)
	optimized = append(optimized, others...)

	// Stable sort keeps category matches ahead among equal lengths.
	sort.SliceStable(optimized, func(i, j int) bool {
		return len(optimized[i].Content) > len(optimized[j].Content)
	})

	if len(optimized) > maxChunks {
		optimized = optimized[:maxChunks]
	}
	return optimized
}
