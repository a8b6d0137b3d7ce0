package model

import "time"

// BlockType classifies a semantic block extracted from a document.
type BlockType string

const (
	BlockPersonalProfile          BlockType = "PERSONAL_PROFILE"
	BlockAcademicPerformance      BlockType = "ACADEMIC_PERFORMANCE"
	BlockStandardizedTesting      BlockType = "STANDARDIZED_TESTING"
	BlockResearchExperience       BlockType = "RESEARCH_EXPERIENCE"
	BlockAwardHonorRecognition    BlockType = "AWARD_HONOR_RECOGNITION"
	BlockExtracurricularActivity  BlockType = "EXTRACURRICULAR_ACTIVITY"
	BlockWorkExperience           BlockType = "WORK_EXPERIENCE"
	BlockFamilyBackground         BlockType = "FAMILY_BACKGROUND"
	BlockEssaysWriting            BlockType = "ESSAYS_WRITING"
	BlockInstitutionalPreferences BlockType = "INSTITUTIONAL_PREFERENCES"
	BlockApplicationMetadata      BlockType = "APPLICATION_METADATA"
	BlockUnknown                  BlockType = "UNKNOWN"
)

// BlockTypes lists every classifiable block type in prompt order.
var BlockTypes = []BlockType{
	BlockPersonalProfile,
	BlockAcademicPerformance,
	BlockStandardizedTesting,
	BlockResearchExperience,
	BlockAwardHonorRecognition,
	BlockExtracurricularActivity,
	BlockWorkExperience,
	BlockFamilyBackground,
	BlockEssaysWriting,
	BlockInstitutionalPreferences,
	BlockApplicationMetadata,
}

// CategoryCustom is the fallback storage category for content that does
// not map to a known block type.
const CategoryCustom = "custom_documentation"

// blockCategories maps a block type to its storage category.
var blockCategories = map[BlockType]string{
	BlockPersonalProfile:          "personal_info",
	BlockAcademicPerformance:      "academic_performance",
	BlockStandardizedTesting:      "test_scores",
	BlockResearchExperience:       "research",
	BlockAwardHonorRecognition:    "award",
	BlockExtracurricularActivity:  "activity",
	BlockWorkExperience:           "work",
	BlockFamilyBackground:         "family",
	BlockEssaysWriting:            "writing",
	BlockInstitutionalPreferences: "education",
	BlockApplicationMetadata:      "metadata",
}

// Category returns the storage category for the block type.
func (t BlockType) Category() string {
	if c, ok := blockCategories[t]; ok {
		return c
	}
	return CategoryCustom
}

// DocumentChunk is a unit of extracted document content as stored in the
// chunk index.
type DocumentChunk struct {
	BlockID              string   `json:"block_id"`
	UserID               string   `json:"user_id"`
	Section              string   `json:"section"`
	SourceFile           string   `json:"source_file"`
	FileType             string   `json:"file_type"`
	Category             string   `json:"category"`
	ChunkType            string   `json:"chunk_type"`
	BlockType            string   `json:"block_type,omitempty"`
	Summary              string   `json:"summary,omitempty"`
	Sources              []string `json:"sources,omitempty"`
	Priority             string   `json:"priority,omitempty"`
	ContainsPersonalData bool     `json:"contains_personal_data"`
	Content              string   `json:"content"`
	IsOverlapChunk       bool     `json:"is_overlap_chunk,omitempty"`
	ExtractionDate       string   `json:"extraction_date"`
}

// ParseResult is the outcome of parsing a single document.
type ParseResult struct {
	DocumentID string          `json:"document_id"`
	SourceFile string          `json:"source_file"`
	Section    string          `json:"section"`
	FileType   string          `json:"file_type"`
	ChunkCount int             `json:"chunk_count"`
	Chunks     []DocumentChunk `json:"chunks,omitempty"`

	// Duration is the wall time spent parsing this one file. Internal,
	// feeds the parse duration metric.
	Duration time.Duration `json:"-"`
}

// ProcessingReport summarizes a batch parse run.
type ProcessingReport struct {
	TotalFiles  int           `json:"total_files"`
	Successful  int           `json:"successful"`
	Failed      int           `json:"failed"`
	TotalChunks int           `json:"total_chunks"`
	Results     []ParseResult `json:"results,omitempty"`
	Errors      []string      `json:"errors,omitempty"`
}
