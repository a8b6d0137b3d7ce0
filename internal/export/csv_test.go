package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ezcommon/apply-portal/internal/search"
)

func newIndex(t *testing.T, sources []map[string]any) *search.Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits := make([]any, 0, len(sources))
		for _, src := range sources {
			hits = append(hits, map[string]any{"_id": src["block_id"], "_source": src})
		}
		json.NewEncoder(w).Encode(map[string]any{"hits": map[string]any{"hits": hits}})
	}))
	t.Cleanup(srv.Close)

	return search.New(search.Options{BaseURL: srv.URL, Index: "document_chunks"})
}

var testChunks = []map[string]any{
	{"block_id": "b1", "user_id": "u1", "section": "education", "source_file": "transcript.pdf", "file_type": "pdf", "category": "academic_performance", "chunk_type": "semantic_block", "content": "GPA 3.9", "extraction_date": "2026-08-01T10:00:00Z"},
	{"block_id": "b2", "user_id": "u1", "section": "education", "source_file": "transcript.pdf", "file_type": "pdf", "category": "test_scores", "chunk_type": "semantic_block", "content": "SAT 1510", "extraction_date": "2026-08-01T10:00:00Z"},
	{"block_id": "b3", "user_id": "u1", "section": "activity", "source_file": "resume.pdf", "file_type": "pdf", "category": "activity", "chunk_type": "semantic_block", "content": "Robotics, with \"quotes\"", "extraction_date": "2026-08-02T10:00:00Z"},
}

func TestSummaryCSV(t *testing.T) {
	svc := NewService(newIndex(t, testChunks))

	out, err := svc.SummaryCSV(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("SummaryCSV() error = %v", err)
	}

	if out.Status != "success" {
		t.Errorf("status = %q", out.Status)
	}
	if out.TotalDocuments != 2 || out.TotalChunks != 3 {
		t.Errorf("documents/chunks = %d/%d, want 2/3", out.TotalDocuments, out.TotalChunks)
	}
	if out.Section != "all" {
		t.Errorf("section = %q, want all", out.Section)
	}

	records, err := csv.NewReader(strings.NewReader(out.CSVContent)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("got %d rows, want header + 3", len(records))
	}

	wantHeader := "Source File,File Type,Section,Category,Chunk Type,Content,Extraction Date"
	if strings.Join(records[0], ",") != wantHeader {
		t.Errorf("header = %v", records[0])
	}
	if records[1][0] != "transcript.pdf" || records[1][3] != "academic_performance" {
		t.Errorf("first row = %v", records[1])
	}
	// Quoted content must round-trip.
	if records[3][5] != "Robotics, with \"quotes\"" {
		t.Errorf("quoted content = %q", records[3][5])
	}
}

func TestSummaryCSVEmpty(t *testing.T) {
	svc := NewService(newIndex(t, nil))

	out, err := svc.SummaryCSV(context.Background(), "u1", "education")
	if err != nil {
		t.Fatalf("SummaryCSV() error = %v", err)
	}
	if out.Status != "error" || out.CSVContent != "" {
		t.Errorf("empty export = %+v", out)
	}
	if out.Section != "education" {
		t.Errorf("section = %q", out.Section)
	}
}

func TestCategorizedCSV(t *testing.T) {
	svc := NewService(newIndex(t, testChunks))

	out, err := svc.CategorizedCSV(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("CategorizedCSV() error = %v", err)
	}

	if out.TotalCategories != 3 {
		t.Errorf("total_categories = %d, want 3", out.TotalCategories)
	}
	want := []string{"academic_performance", "activity", "test_scores"}
	for i, category := range want {
		if out.Categories[i] != category {
			t.Errorf("categories[%d] = %q, want %q", i, out.Categories[i], category)
		}
	}

	records, err := csv.NewReader(strings.NewReader(out.CSVContent)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if strings.Join(records[0], ",") != "Category,Information,Source File,Section" {
		t.Errorf("header = %v", records[0])
	}
	// Rows ordered by category.
	if records[1][0] != "academic_performance" || records[3][0] != "test_scores" {
		t.Errorf("rows out of category order: %v", records[1:])
	}
}

func TestStatistics(t *testing.T) {
	svc := NewService(newIndex(t, testChunks))

	stats, err := svc.Statistics(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("Statistics() error = %v", err)
	}

	if stats.TotalDocuments != 2 || stats.TotalChunks != 3 {
		t.Errorf("documents/chunks = %d/%d", stats.TotalDocuments, stats.TotalChunks)
	}
	if len(stats.Categories) != 3 || stats.Categories[0] != "academic_performance" {
		t.Errorf("categories = %v", stats.Categories)
	}
	if len(stats.Sections) != 2 || stats.Sections[0] != "activity" {
		t.Errorf("sections = %v", stats.Sections)
	}
	if len(stats.FileTypes) != 1 || stats.FileTypes[0] != "pdf" {
		t.Errorf("file_types = %v", stats.FileTypes)
	}
}

func TestStatisticsEmpty(t *testing.T) {
	svc := NewService(newIndex(t, nil))

	stats, err := svc.Statistics(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("Statistics() error = %v", err)
	}
	if stats.TotalDocuments != 0 || len(stats.Categories) != 0 {
		t.Errorf("stats = %+v, want zero values", stats)
	}
}
