package docparse

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// minPageTextLen is the threshold below which a PDF page is considered
// scanned and sent through OCR instead.
const minPageTextLen = 50

// File types the pipeline understands.
const (
	FileTypePDF   = "pdf"
	FileTypeImage = "image"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	".tiff": true,
}

// FileTypeFor classifies a filename by extension. Returns "" for
// unsupported types.
func FileTypeFor(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == ".pdf":
		return FileTypePDF
	case imageExtensions[ext]:
		return FileTypeImage
	default:
		return ""
	}
}

// Extractor pulls text out of documents. The OCR engine is optional;
// without it, scanned pages contribute nothing.
type Extractor struct {
	ocr *OCREngine
}

// NewExtractor creates an Extractor. ocr may be nil to disable the
// scanned-page fallback.
func NewExtractor(ocr *OCREngine) *Extractor {
	return &Extractor{ocr: ocr}
}

// ExtractPDF extracts per-page text, each page prefixed with a
// "--- Page N ---" header. Pages yielding fewer than minPageTextLen
// characters fall back to OCR when an engine is configured.
func (e *Extractor) ExtractPDF(ctx context.Context, path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var parts []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text := ""
		if extracted, err := page.GetPlainText(nil); err == nil {
			text = strings.TrimSpace(extracted)
		}

		if len(text) < minPageTextLen && e.ocr != nil {
			if ocrText, err := e.ocr.RecognizePDFPage(ctx, path, pageNum); err == nil && len(ocrText) > len(text) {
				text = ocrText
			}
		}

		if text != "" {
			parts = append(parts, fmt.Sprintf("--- Page %d ---\n%s", pageNum, text))
		}
	}

	return strings.Join(parts, "\n\n"), nil
}

// EncodeImageBase64 reads an image file and returns its base64 payload
// for the vision API.
func EncodeImageBase64(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
