// Package docparse implements the document parsing pipeline: S3
// download, text extraction (PDF, OCR, vision), semantic chunk forming
// and indexing into the chunk store.
package docparse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ezcommon/apply-portal/internal/llm"
	"github.com/ezcommon/apply-portal/internal/model"
	"github.com/ezcommon/apply-portal/internal/search"
	"github.com/ezcommon/apply-portal/internal/storage"
)

// ProgressFunc receives progress milestones while a file is parsed.
type ProgressFunc func(progress int, message string)

// Pipeline runs the full parse flow for uploaded documents.
type Pipeline struct {
	store       *storage.Store
	index       *search.Client
	provider    llm.Provider
	extractor   *Extractor
	former      *Former
	logger      *slog.Logger
	parallelism int
}

// NewPipeline creates a Pipeline. parallelism bounds batch parsing.
func NewPipeline(store *storage.Store, index *search.Client, provider llm.Provider, extractor *Extractor, logger *slog.Logger, parallelism int) *Pipeline {
	if parallelism <= 0 {
		parallelism = 3
	}
	return &Pipeline{
		store:       store,
		index:       index,
		provider:    provider,
		extractor:   extractor,
		former:      NewFormer(provider),
		logger:      logger,
		parallelism: parallelism,
	}
}

// ParseFile processes one uploaded file end to end and returns the
// indexed result. report may be nil.
func (p *Pipeline) ParseFile(ctx context.Context, userID, section, s3Key, filename string, report ProgressFunc) (*model.ParseResult, error) {
	if report == nil {
		report = func(int, string) {}
	}
	start := time.Now()

	fileType := FileTypeFor(filename)
	if fileType == "" {
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(filename))
	}

	report(10, fmt.Sprintf("Downloading %s...", filename))
	localPath, err := p.downloadToTemp(ctx, userID, s3Key, filename)
	if err != nil {
		return nil, err
	}
	defer os.Remove(localPath)

	report(25, "Analyzing document structure...")

	var extracted string
	switch fileType {
	case FileTypePDF:
		report(40, "Extracting text from PDF...")
		extracted, err = p.extractor.ExtractPDF(ctx, localPath)
	case FileTypeImage:
		report(40, "Processing image with AI Vision...")
		extracted, err = p.extractImage(ctx, localPath, filename)
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(extracted) == "" {
		return nil, fmt.Errorf("no text could be extracted from the document")
	}

	report(60, "Forming semantic blocks from extracted content...")

	documentID := generateDocumentID(filename, userID)
	texts := []RawText{{SourceFile: filename, FileType: fileType, Content: extracted}}

	chunks, err := p.former.Form(ctx, userID, section, texts)
	if err != nil {
		p.logger.Warn("semantic forming failed, falling back to text chunks",
			slog.String("user_id", userID),
			slog.String("source_file", filename),
			slog.String("error", err.Error()))
	}
	if len(chunks) == 0 {
		chunks = p.fallbackChunks(userID, section, filename, fileType, documentID, extracted)
	}

	if err := p.index.IndexChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}

	report(95, "Finalizing...")

	result := &model.ParseResult{
		DocumentID: documentID,
		SourceFile: filename,
		Section:    section,
		FileType:   fileType,
		ChunkCount: len(chunks),
		Duration:   time.Since(start),
	}
	for _, c := range chunks {
		result.Chunks = append(result.Chunks, *c)
	}
	return result, nil
}

// ParseBatch parses several files with bounded parallelism and returns
// a per-file report. Individual failures do not abort the batch.
func (p *Pipeline) ParseBatch(ctx context.Context, userID, section string, files []model.FileMetadata) *model.ProcessingReport {
	report := &model.ProcessingReport{TotalFiles: len(files)}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)

	for _, file := range files {
		file := file
		g.Go(func() error {
			result, err := p.ParseFile(ctx, userID, section, file.Key, file.OriginalFilename, nil)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", file.OriginalFilename, err))
				return nil
			}
			report.Successful++
			report.TotalChunks += result.ChunkCount
			result.Chunks = nil // keep the batch summary light
			report.Results = append(report.Results, *result)
			return nil
		})
	}

	g.Wait()
	return report
}

func (p *Pipeline) downloadToTemp(ctx context.Context, userID, s3Key, filename string) (string, error) {
	body, err := p.store.Download(ctx, userID, s3Key)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", filename, err)
	}
	defer body.Close()

	tmp, err := os.CreateTemp("", "parse-*"+strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return tmp.Name(), nil
}

const visionExtractionPrompt = `Analyze this document image and extract all relevant information.

Return the information as a JSON object with the following structure:
{
    "information_chunks": [
        {
            "text": "extracted text or information",
            "category": "category name (e.g., personal_info, education, activity, test_scores, etc.)",
            "chunk_type": "type of information (e.g., text_field, date, score, etc.)"
        }
    ]
}

Extract as much structured information as possible. Be thorough and accurate.`

type visionChunk struct {
	Text      string `json:"text"`
	Category  string `json:"category"`
	ChunkType string `json:"chunk_type"`
}

// extractImage runs the vision model over an image and flattens the
// structured answer into readable text for semantic forming.
func (p *Pipeline) extractImage(ctx context.Context, path, filename string) (string, error) {
	imageBase64, err := EncodeImageBase64(path)
	if err != nil {
		return "", err
	}

	content, err := p.provider.VisionAnalysis(ctx, imageBase64, visionExtractionPrompt)
	if err != nil {
		return "", fmt.Errorf("vision analysis of %s: %w", filename, err)
	}

	chunks := parseVisionResponse(content)
	return formatVisionChunks(chunks), nil
}

// parseVisionResponse pulls the information_chunks JSON out of the
// model answer, falling back to one raw_extraction chunk when the
// answer is not parseable JSON.
func parseVisionResponse(content string) []visionChunk {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		var parsed struct {
			InformationChunks []visionChunk `json:"information_chunks"`
		}
		if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err == nil && len(parsed.InformationChunks) > 0 {
			return parsed.InformationChunks
		}
	}

	return []visionChunk{{
		Text:      content,
		Category:  model.CategoryCustom,
		ChunkType: "raw_extraction",
	}}
}

// formatVisionChunks renders chunks as plain sections. JSON is kept out
// of the text so it cannot confuse downstream prompt parsing.
func formatVisionChunks(chunks []visionChunk) string {
	var parts []string
	for i, c := range chunks {
		category := c.Category
		if category == "" {
			category = "general"
		}
		parts = append(parts, fmt.Sprintf("[Section %d - %s]\n%s", i+1, category, c.Text))
	}
	return strings.Join(parts, "\n\n")
}

// fallbackChunks naively chunks extracted text when semantic forming
// yields nothing.
func (p *Pipeline) fallbackChunks(userID, section, filename, fileType, documentID, text string) []*model.DocumentChunk {
	now := time.Now().UTC()
	pieces := SplitText(text)

	chunks := make([]*model.DocumentChunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, &model.DocumentChunk{
			BlockID:        fmt.Sprintf("%s_chunk_%d", documentID, i),
			UserID:         userID,
			Section:        section,
			SourceFile:     filename,
			FileType:       fileType,
			Category:       model.CategoryCustom,
			ChunkType:      "document_content",
			Sources:        []string{filename},
			Content:        piece.Text,
			IsOverlapChunk: piece.IsOverlap,
			ExtractionDate: now.Format(time.RFC3339),
		})
	}
	return chunks
}

// generateDocumentID builds doc_{user}_{stem}_{timestamp}.
func generateDocumentID(filename, userID string) string {
	now := time.Now().UTC()
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	stem = strings.ReplaceAll(stem, " ", "_")
	ts := fmt.Sprintf("%s_%06d", now.Format("20060102_150405"), now.Nanosecond()/1000)
	return fmt.Sprintf("doc_%s_%s_%s", userID, stem, ts)
}
