package formfill

import (
	"strings"
	"testing"

	"github.com/ezcommon/apply-portal/internal/model"
)

func chunk(category, content string) *model.DocumentChunk {
	return &model.DocumentChunk{Category: category, Content: content}
}

func TestOptimizeChunksCategoryFirst(t *testing.T) {
	chunks := []*model.DocumentChunk{
		chunk("activity", "aaa"),
		chunk("test_scores", "bbb"),
		chunk("personal_info", "ccc"),
	}

	got := OptimizeChunks(chunks, "test_scores", 10, true)
	if len(got) != 3 {
		t.Fatalf("got %d chunks, want 3", len(got))
	}
	// All contents are equal length, so the stable sort keeps the
	// category match in front.
	if got[0].Category != "test_scores" {
		t.Errorf("first chunk category = %q, want test_scores", got[0].Category)
	}
}

func TestOptimizeChunksPartialCategoryMatch(t *testing.T) {
	chunks := []*model.DocumentChunk{
		chunk("activity", "xx"),
		chunk("personal_info", "yy"),
	}

	// "personal" is a substring of "personal_info".
	got := OptimizeChunks(chunks, "personal", 10, true)
	if got[0].Category != "personal_info" {
		t.Errorf("first chunk category = %q, want personal_info", got[0].Category)
	}
}

func TestOptimizeChunksLengthSort(t *testing.T) {
	chunks := []*model.DocumentChunk{
		chunk("education", "short"),
		chunk("education", strings.Repeat("long", 50)),
		chunk("education", strings.Repeat("mid", 10)),
	}

	got := OptimizeChunks(chunks, "education", 10, true)
	if len(got[0].Content) < len(got[1].Content) || len(got[1].Content) < len(got[2].Content) {
		t.Error("chunks not sorted by content length descending")
	}
}

func TestOptimizeChunksCap(t *testing.T) {
	var chunks []*model.DocumentChunk
	for i := 0; i < 250; i++ {
		chunks = append(chunks, chunk("education", "content"))
	}

	if got := OptimizeChunks(chunks, "education", 200, true); len(got) != 200 {
		t.Errorf("got %d chunks, want cap of 200", len(got))
	}
}

func TestOptimizeChunksBypass(t *testing.T) {
	chunks := []*model.DocumentChunk{
		chunk("b", "1"),
		chunk("a", "22"),
	}

	got := OptimizeChunks(chunks, "a", 10, false)
	// Optimization disabled keeps input order.
	if got[0].Category != "b" {
		t.Errorf("first chunk category = %q, want original order", got[0].Category)
	}
}
