package docparse

import (
	"context"
	"strings"
	"testing"

	"github.com/ezcommon/apply-portal/internal/llm"
	"github.com/ezcommon/apply-portal/internal/model"
)

const sampleResponse = `---BLOCK_START---
BLOCK_TYPE: PERSONAL_PROFILE
SUMMARY: Applicant identity and contact details
SOURCES: resume.pdf, profile.pdf
PRIORITY: high
CONTAINS_PERSONAL_DATA: true
CONTENT:
Name: Alex Doe
Email: alex@example.com
---BLOCK_END---

---BLOCK_START---
BLOCK_TYPE: STANDARDIZED_TESTING
SUMMARY: SAT results
SOURCES: scores.pdf
PRIORITY: medium
CONTAINS_PERSONAL_DATA: false
CONTENT:
SAT total 1510 (March 2025).
---BLOCK_END---`

func TestExtractBlocksPrimaryFormat(t *testing.T) {
	blocks := extractBlocks(sampleResponse)
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}

	first := blocks[0]
	if first.BlockType != "PERSONAL_PROFILE" {
		t.Errorf("block_type = %q", first.BlockType)
	}
	if first.Summary != "Applicant identity and contact details" {
		t.Errorf("summary = %q", first.Summary)
	}
	if len(first.Sources) != 2 || first.Sources[0] != "resume.pdf" {
		t.Errorf("sources = %v", first.Sources)
	}
	if first.Priority != "high" {
		t.Errorf("priority = %q", first.Priority)
	}
	if !first.ContainsPersonalData {
		t.Error("contains_personal_data should be true")
	}
	if !strings.Contains(first.Content, "alex@example.com") {
		t.Errorf("content = %q", first.Content)
	}

	if blocks[1].ContainsPersonalData {
		t.Error("second block should not contain personal data")
	}
}

func TestExtractBlocksAlternateSeparators(t *testing.T) {
	response := `### BLOCK START ###
BLOCK_TYPE: WORK_EXPERIENCE
SUMMARY: Summer internship
CONTENT:
Software intern at a local company.
### BLOCK END ###`

	blocks := extractBlocks(response)
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	if blocks[0].BlockType != "WORK_EXPERIENCE" {
		t.Errorf("block_type = %q", blocks[0].BlockType)
	}
}

func TestExtractBlocksBlockTypeSplit(t *testing.T) {
	response := `BLOCK_TYPE: ACADEMIC_PERFORMANCE
SUMMARY: GPA details
CONTENT:
GPA 3.9 unweighted.
BLOCK_TYPE: EXTRACURRICULAR_ACTIVITY
SUMMARY: Robotics club
CONTENT:
Team captain for two years.`

	blocks := extractBlocks(response)
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	if blocks[0].BlockType != "ACADEMIC_PERFORMANCE" || blocks[1].BlockType != "EXTRACURRICULAR_ACTIVITY" {
		t.Errorf("block types = %q, %q", blocks[0].BlockType, blocks[1].BlockType)
	}
}

func TestExtractBlocksWholeResponseFallback(t *testing.T) {
	response := `SUMMARY: Everything at once
CONTENT:
The applicant won a national scholarship award.`

	blocks := extractBlocks(response)
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	// No BLOCK_TYPE given, so the type is inferred from keywords.
	if blocks[0].BlockType != string(model.BlockAwardHonorRecognition) {
		t.Errorf("inferred block_type = %q", blocks[0].BlockType)
	}
}

func TestExtractBlocksSkipsEmptyContent(t *testing.T) {
	response := `---BLOCK_START---
BLOCK_TYPE: ESSAYS_WRITING
SUMMARY: nothing here
CONTENT:
---BLOCK_END---`

	if blocks := extractBlocks(response); len(blocks) != 0 {
		t.Errorf("got %d blocks, want 0 for empty content", len(blocks))
	}
}

func TestParseBlockEqualsSeparator(t *testing.T) {
	block, ok := parseBlock(`BLOCK_TYPE=FAMILY_BACKGROUND
CONTENT=Two siblings, parents both teachers.`)
	if !ok {
		t.Fatal("parseBlock() returned not ok")
	}
	if block.BlockType != "FAMILY_BACKGROUND" {
		t.Errorf("block_type = %q", block.BlockType)
	}
}

func TestInferBlockType(t *testing.T) {
	tests := []struct {
		name    string
		summary string
		content string
		want    model.BlockType
	}{
		{"testing keywords", "scores", "SAT 1500 and TOEFL 110", model.BlockStandardizedTesting},
		{"research keywords", "", "Research project with a mentor, one publication", model.BlockResearchExperience},
		{"no keywords", "", "zzz qqq", model.BlockUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inferBlockType(tt.summary, tt.content); got != tt.want {
				t.Errorf("inferBlockType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFitsContext(t *testing.T) {
	if !fitsContext("short text") {
		t.Error("short text should fit")
	}
	huge := strings.Repeat("a", (contextLimitTokens-promptOverhead)*4+100)
	if fitsContext(huge) {
		t.Error("oversized text should not fit")
	}
}

type fakeProvider struct {
	response string
	err      error
	gotTemp  float64
}

func (f *fakeProvider) ChatCompletion(_ context.Context, _ []llm.Message, opts llm.ChatOptions) (string, error) {
	f.gotTemp = opts.Temperature
	return f.response, f.err
}

func (f *fakeProvider) VisionAnalysis(context.Context, string, string) (string, error) {
	return f.response, f.err
}

func (f *fakeProvider) Name() string { return "fake" }

func TestFormStampsBlockIDs(t *testing.T) {
	provider := &fakeProvider{response: sampleResponse}
	former := NewFormer(provider)

	chunks, err := former.Form(context.Background(), "u1", "profile", []RawText{
		{SourceFile: "resume.pdf", FileType: "pdf", Content: "raw text"},
	})
	if err != nil {
		t.Fatalf("Form() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}

	if provider.gotTemp != 0.0 {
		t.Errorf("temperature = %v, want 0", provider.gotTemp)
	}

	first := chunks[0]
	if !strings.HasPrefix(first.BlockID, "u1_profile_block_0_") {
		t.Errorf("block_id = %q", first.BlockID)
	}
	if first.Category != "personal_info" {
		t.Errorf("category = %q", first.Category)
	}
	if first.ChunkType != "semantic_block" {
		t.Errorf("chunk_type = %q", first.ChunkType)
	}
	if first.SourceFile != "resume.pdf" {
		t.Errorf("source_file = %q", first.SourceFile)
	}

	if chunks[1].Category != "test_scores" {
		t.Errorf("second category = %q", chunks[1].Category)
	}
}

func TestFormContextGuard(t *testing.T) {
	former := NewFormer(&fakeProvider{})
	huge := strings.Repeat("a", (contextLimitTokens-promptOverhead)*4+100)

	_, err := former.Form(context.Background(), "u1", "profile", []RawText{
		{SourceFile: "big.pdf", FileType: "pdf", Content: huge},
	})
	if err == nil || !strings.Contains(err.Error(), "context length") {
		t.Errorf("error = %v, want context length guard", err)
	}
}
