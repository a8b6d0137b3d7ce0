package docparse

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ezcommon/apply-portal/internal/llm"
	"github.com/ezcommon/apply-portal/internal/model"
)

// contextLimitTokens is the safe prompt budget. Tokens are estimated at
// one per four characters plus a fixed overhead for the instructions.
const (
	contextLimitTokens = 100000
	promptOverhead     = 2000
)

// ErrContextTooLarge means the combined documents exceed the safe
// prompt budget and must be split before forming.
var ErrContextTooLarge = fmt.Errorf("combined documents exceed safe context length")

// RawText is the extracted content of one document, ready for semantic
// forming.
type RawText struct {
	SourceFile string
	FileType   string
	Content    string
}

// Former reorganizes raw extracted text into semantic blocks with an
// LLM and parses the structured text protocol it answers in.
type Former struct {
	provider llm.Provider
}

// NewFormer creates a Former.
func NewFormer(provider llm.Provider) *Former {
	return &Former{provider: provider}
}

// parsedBlock is a block as parsed off the wire, before it is stamped
// with IDs and user context.
type parsedBlock struct {
	BlockType            string
	Summary              string
	Content              string
	Sources              []string
	Priority             string
	ContainsPersonalData bool
}

// Form sends the documents to the LLM and returns the semantic chunks
// to index, stamped with block IDs {user}_{section}_block_{i}_{ts}.
func (f *Former) Form(ctx context.Context, userID, section string, texts []RawText) ([]*model.DocumentChunk, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var combined strings.Builder
	for i, t := range texts {
		if i > 0 {
			combined.WriteString("\n\n")
		}
		combined.WriteString(t.Content)
	}
	if !fitsContext(combined.String()) {
		return nil, ErrContextTooLarge
	}

	prompt := buildFormationPrompt(texts)

	response, err := f.provider.ChatCompletion(ctx, []llm.Message{
		{Role: "user", Content: prompt},
	}, llm.ChatOptions{Temperature: 0.0})
	if err != nil {
		return nil, fmt.Errorf("semantic chunk formation failed: %w", err)
	}

	blocks := extractBlocks(response)

	now := time.Now().UTC()
	ts := now.Unix()
	chunks := make([]*model.DocumentChunk, 0, len(blocks))
	for i, b := range blocks {
		blockType := model.BlockType(b.BlockType)
		chunks = append(chunks, &model.DocumentChunk{
			BlockID:              fmt.Sprintf("%s_%s_block_%d_%d", userID, section, i, ts),
			UserID:               userID,
			Section:              section,
			SourceFile:           firstSource(b.Sources, texts),
			FileType:             fileTypeFor(b.Sources, texts),
			Category:             blockType.Category(),
			ChunkType:            "semantic_block",
			BlockType:            b.BlockType,
			Summary:              b.Summary,
			Sources:              b.Sources,
			Priority:             b.Priority,
			ContainsPersonalData: b.ContainsPersonalData,
			Content:              b.Content,
			ExtractionDate:       now.Format(time.RFC3339),
		})
	}

	return chunks, nil
}

// fitsContext estimates whether the text fits the prompt budget.
func fitsContext(text string) bool {
	estimated := len(text)/4 + promptOverhead
	return estimated <= contextLimitTokens
}

func firstSource(sources []string, texts []RawText) string {
	if len(sources) > 0 {
		return sources[0]
	}
	if len(texts) > 0 {
		return texts[0].SourceFile
	}
	return "unknown"
}

func fileTypeFor(sources []string, texts []RawText) string {
	source := firstSource(sources, texts)
	for _, t := range texts {
		if t.SourceFile == source {
			return t.FileType
		}
	}
	if len(texts) > 0 {
		return texts[0].FileType
	}
	return "unknown"
}

const formationPromptHeader = `You are an expert at restructuring college application documents into semantic blocks.

TASK: Reorganize the provided documents into meaningful semantic blocks. Each block should represent one complete unit of related information that belongs together.

THE 11 SEMANTIC BLOCK TYPES YOU MUST USE:
1. PERSONAL_PROFILE - Identity, contact info, biographical data (name, DOB, address, etc.)
2. ACADEMIC_PERFORMANCE - Academic standing (GPA, class rank, high school, graduation date)
3. STANDARDIZED_TESTING - Test scores (SAT, ACT, AP exams with dates and scores)
4. RESEARCH_EXPERIENCE - Research projects with mentors, methods, outcomes, publications
5. AWARD_HONOR_RECOGNITION - Individual awards and honors with dates and reasons
6. EXTRACURRICULAR_ACTIVITY - Clubs, activities with roles, time commitment, impact
7. WORK_EXPERIENCE - Jobs and employment with responsibilities and outcomes
8. FAMILY_BACKGROUND - Family information (parents, siblings, household context)
9. ESSAYS_WRITING - Complete essays and writing samples with prompts
10. INSTITUTIONAL_PREFERENCES - College preferences, majors, admission plans
11. APPLICATION_METADATA - Administrative info (submission status, fees, consents)`

const formationPromptRules = `RESTRUCTURING RULES:
- Group all related information from multiple documents into single blocks
- If a topic is not present in documents, do NOT create an empty block
- Each block should be complete and self-contained
- Preserve exact information but reorganize for clarity
- Track which source files contributed to each block
- Keep original data accuracy - do not infer or add information
- When extracting content, clearly attribute facts to their source files

RESPONSE FORMAT:
Return the blocks in plain text format (NOT JSON). Use this structure for each block:

---BLOCK_START---
BLOCK_TYPE: PERSONAL_PROFILE
SUMMARY: One sentence summary of what this block contains
SOURCES: source_file_1, source_file_2
PRIORITY: high/medium/low
CONTAINS_PERSONAL_DATA: true/false
CONTENT:
The reorganized and grouped content for this block goes here.
Include all relevant information in readable text format.
---BLOCK_END---

[Continue with more blocks as needed. Only include blocks that have content in the documents.]`

func buildFormationPrompt(texts []RawText) string {
	var inventory strings.Builder
	for _, t := range texts {
		fmt.Fprintf(&inventory, "- %s (%s, %d chars)\n", t.SourceFile, t.FileType, len(t.Content))
	}

	var marked strings.Builder
	for i, t := range texts {
		fmt.Fprintf(&marked, `
================================================================================
[DOCUMENT %d] Source: %s | Type: %s
================================================================================
%s
================================================================================
[END %s]
================================================================================
`, i+1, t.SourceFile, t.FileType, t.Content, t.SourceFile)
	}

	return fmt.Sprintf(`%s

SOURCE DOCUMENTS:
%s
%s

DOCUMENTS TO RESTRUCTURE (Each document is marked with its source file name):
%s

Now restructure these documents into semantic blocks:`,
		formationPromptHeader, strings.TrimRight(inventory.String(), "\n"), formationPromptRules, marked.String())
}

var (
	blockPattern = regexp.MustCompile(`(?s)---BLOCK_START---(.*?)---BLOCK_END---`)

	// Alternate separators the model sometimes improvises.
	altSeparators = []*regexp.Regexp{
		regexp.MustCompile(`(?is)#+\s*BLOCK\s*START\s*#+(.*?)#+\s*BLOCK\s*END\s*#+`),
		regexp.MustCompile(`(?is)==+\s*BLOCK\s*START\s*==+(.*?)==+\s*BLOCK\s*END\s*==+`),
		regexp.MustCompile(`(?is)--+\s*BLOCK\s*START\s*--+(.*?)--+\s*BLOCK\s*END\s*--+`),
	}

	blockTypeLine = regexp.MustCompile(`(?m)^BLOCK_TYPE:`)
)

// extractBlocks parses the text protocol, degrading through fallback
// formats when the model drifts from the requested markers.
func extractBlocks(response string) []parsedBlock {
	if matches := blockPattern.FindAllStringSubmatch(response, -1); len(matches) > 0 {
		return parseMatches(matches)
	}

	for _, sep := range altSeparators {
		if matches := sep.FindAllStringSubmatch(response, -1); len(matches) > 0 {
			return parseMatches(matches)
		}
	}

	// No separators at all: split on BLOCK_TYPE: lines.
	if starts := blockTypeLine.FindAllStringIndex(response, -1); len(starts) > 0 {
		var blocks []parsedBlock
		for i, loc := range starts {
			end := len(response)
			if i+1 < len(starts) {
				end = starts[i+1][0]
			}
			if b, ok := parseBlock(response[loc[0]:end]); ok {
				blocks = append(blocks, b)
			}
		}
		return blocks
	}

	// Last resort: the whole response as one block.
	if b, ok := parseBlock(response); ok {
		return []parsedBlock{b}
	}
	return nil
}

func parseMatches(matches [][]string) []parsedBlock {
	var blocks []parsedBlock
	for _, m := range matches {
		if b, ok := parseBlock(m[1]); ok {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// parseBlock parses one block body. Returns false when the block has no
// content.
func parseBlock(text string) (parsedBlock, bool) {
	block := parsedBlock{
		BlockType: string(model.BlockUnknown),
		Priority:  "medium",
	}

	if strings.TrimSpace(text) == "" {
		return block, false
	}

	var (
		contentStarted bool
		contentLines   []string
	)

	for _, original := range strings.Split(text, "\n") {
		line := strings.TrimSpace(original)
		if line == "" {
			if contentStarted {
				contentLines = append(contentLines, "")
			}
			continue
		}

		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "block_type"):
			if v := fieldValue(line); v != "" {
				block.BlockType = v
			}
		case strings.HasPrefix(lower, "summary"):
			block.Summary = fieldValue(line)
		case strings.HasPrefix(lower, "source"):
			for _, s := range strings.Split(fieldValue(line), ",") {
				if s = strings.TrimSpace(s); s != "" {
					block.Sources = append(block.Sources, s)
				}
			}
		case strings.HasPrefix(lower, "priority"):
			switch p := strings.ToLower(fieldValue(line)); p {
			case "high", "medium", "low":
				block.Priority = p
			}
		case strings.HasPrefix(lower, "contains_personal_data"), strings.HasPrefix(lower, "personal_data"):
			switch strings.ToLower(fieldValue(line)) {
			case "true", "yes", "1", "t", "y":
				block.ContainsPersonalData = true
			}
		case strings.HasPrefix(lower, "content"):
			contentStarted = true
			if v := fieldValue(line); v != "" {
				contentLines = append(contentLines, v)
			}
		case contentStarted:
			contentLines = append(contentLines, strings.TrimRight(original, " \t"))
		}
	}

	block.Content = strings.TrimSpace(strings.Join(contentLines, "\n"))
	if block.Content == "" {
		return block, false
	}

	if block.BlockType == string(model.BlockUnknown) {
		block.BlockType = string(inferBlockType(block.Summary, block.Content))
	}

	return block, true
}

// fieldValue extracts the value of a "FIELD: value" or "FIELD=value" line.
func fieldValue(line string) string {
	if i := strings.Index(line, ":"); i >= 0 {
		return strings.TrimSpace(line[i+1:])
	}
	if i := strings.Index(line, "="); i >= 0 {
		return strings.TrimSpace(line[i+1:])
	}
	return ""
}

// typeKeywords scores block types when the model omits BLOCK_TYPE.
var typeKeywords = map[model.BlockType][]string{
	model.BlockPersonalProfile:          {"name", "contact", "email", "phone", "birthdate", "address", "personal"},
	model.BlockAcademicPerformance:      {"gpa", "grade", "transcript", "academic", "school", "class rank"},
	model.BlockStandardizedTesting:      {"sat", "act", "ap exam", "test score", "toefl", "ielts"},
	model.BlockResearchExperience:       {"research", "project", "experiment", "publication", "mentor"},
	model.BlockAwardHonorRecognition:    {"award", "honor", "recognition", "scholarship", "dean's list"},
	model.BlockExtracurricularActivity:  {"club", "activity", "volunteer", "sport", "team", "leadership"},
	model.BlockWorkExperience:           {"job", "work", "employment", "internship", "company", "position"},
	model.BlockFamilyBackground:         {"family", "parent", "sibling", "household", "brother", "sister"},
	model.BlockEssaysWriting:            {"essay", "writing", "prompt", "statement", "personal statement"},
	model.BlockInstitutionalPreferences: {"college", "university", "major", "program", "admission"},
	model.BlockApplicationMetadata:      {"application", "submission", "deadline", "fee", "status"},
}

// inferBlockType keyword-scores the summary and content. Ties resolve
// to the first type in prompt order.
func inferBlockType(summary, content string) model.BlockType {
	combined := strings.ToLower(summary + " " + content)

	best := model.BlockUnknown
	bestScore := 0
	for _, blockType := range model.BlockTypes {
		score := 0
		for _, kw := range typeKeywords[blockType] {
			if strings.Contains(combined, kw) {
				score++
			}
		}
		if score > bestScore {
			best = blockType
			bestScore = score
		}
	}
	return best
}
