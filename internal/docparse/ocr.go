package docparse

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// OCREngine runs tesseract over images and rasterized PDF pages.
type OCREngine struct {
	languages []string
}

// NewOCREngine creates an OCREngine. languages are tesseract language
// codes ("eng", "spa", ...).
func NewOCREngine(languages []string) *OCREngine {
	return &OCREngine{languages: languages}
}

// RecognizeImage OCRs raw image bytes.
func (e *OCREngine) RecognizeImage(data []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if len(e.languages) > 0 {
		if err := client.SetLanguage(e.languages...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// RecognizePDFPage rasterizes one PDF page with pdftoppm and OCRs the
// result. Page numbers are 1-based.
func (e *OCREngine) RecognizePDFPage(ctx context.Context, pdfPath string, page int) (string, error) {
	tmpDir, err := os.MkdirTemp("", "ocr-page-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outPrefix := filepath.Join(tmpDir, "page")
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-r", "300",
		"-png",
		pdfPath, outPrefix,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("rasterize page %d: %w: %s", page, err, out)
	}

	matches, err := filepath.Glob(outPrefix + "*.png")
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("rasterize page %d: no output image", page)
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		return "", fmt.Errorf("read rasterized page: %w", err)
	}

	return e.RecognizeImage(data)
}
