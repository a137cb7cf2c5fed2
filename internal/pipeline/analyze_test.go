package pipeline

import (
	"fmt"
	"testing"

	"github.com/jmylchreest/devlens/internal/models"
)

func chunk(path, lang string, start, end int, content string) *models.CodeChunk {
	return &models.CodeChunk{
		ID:        fmt.Sprintf("%s:%d", path, start),
		Path:      path,
		Language:  lang,
		StartLine: start,
		EndLine:   end,
		Content:   content,
	}
}

func TestComputeLanguageBreakdown_SortsDescByShareThenName(t *testing.T) {
	chunks := []*models.CodeChunk{
		chunk("a.go", "go", 1, 10, "0123456789"),           // 10 bytes
		chunk("b.py", "python", 1, 10, "0123456789012345"), // 16 bytes
	}
	out := computeLanguageBreakdown(chunks)
	if len(out) != 2 {
		t.Fatalf("expected 2 languages, got %d", len(out))
	}
	if out[0].Language != "python" {
		t.Fatalf("expected python first (larger share), got %q", out[0].Language)
	}
	total := out[0].Share + out[1].Share
	if total < 99.98 || total > 100.02 {
		t.Fatalf("expected shares to sum to ~100, got %v", total)
	}
}

func TestComputeLanguageBreakdown_Empty(t *testing.T) {
	out := computeLanguageBreakdown(nil)
	if len(out) != 0 {
		t.Fatalf("expected no entries for empty input, got %+v", out)
	}
}

func TestDetectTechDebt_LongFunctionsCappedAt50(t *testing.T) {
	var chunks []*models.CodeChunk
	for i := 0; i < 60; i++ {
		chunks = append(chunks, chunk("f.go", "go", 1, 200, "short"))
	}
	debt := detectTechDebt(chunks)
	if len(debt.LongFunctions) != maxLongFunctions {
		t.Fatalf("expected long_functions capped at %d, got %d", maxLongFunctions, len(debt.LongFunctions))
	}
}

func TestDetectTechDebt_TodoAndFixmeCountedCaseInsensitive(t *testing.T) {
	chunks := []*models.CodeChunk{
		chunk("a.go", "go", 1, 5, "// todo: fix this\n// FIXME later\nfunc x() {}"),
	}
	debt := detectTechDebt(chunks)
	if debt.TodoCount != 2 {
		t.Fatalf("expected 2 todo/fixme matches, got %d", debt.TodoCount)
	}
}

func TestDetectTechDebt_MissingTestsWhenNoTestPath(t *testing.T) {
	chunks := []*models.CodeChunk{
		chunk("pkg/a.go", "go", 1, 5, "package pkg"),
		chunk("pkg/b.go", "go", 1, 5, "package pkg"),
	}
	debt := detectTechDebt(chunks)
	if len(debt.MissingTests) != 2 {
		t.Fatalf("expected both paths flagged missing tests, got %+v", debt.MissingTests)
	}
}

func TestDetectTechDebt_NoMissingTestsWhenTestPathPresent(t *testing.T) {
	chunks := []*models.CodeChunk{
		chunk("pkg/a.go", "go", 1, 5, "package pkg"),
		chunk("tests/a_test.go", "go", 1, 5, "package pkg"),
	}
	debt := detectTechDebt(chunks)
	if len(debt.MissingTests) != 0 {
		t.Fatalf("expected no missing-tests flag, got %+v", debt.MissingTests)
	}
}

func TestComputeQualityScore_PenaltiesCapAtTheirIndividualMaximums(t *testing.T) {
	debt := models.TechDebtFlags{
		TodoCount:     100,                         // min(30, 100) = 30
		LongFunctions: make([]models.ChunkRef, 100), // min(30, 200) = 30
		MissingTests:  []string{"a.go"},             // flat 20
	}
	score := computeQualityScore(debt, map[string]models.FileTreeEntry{})
	// 100 - 30 - 30 - 20 = 20; the spec caps each penalty individually, so
	// the floor is 20, not 0, when no README bonus applies.
	if score != 20 {
		t.Fatalf("expected score 20 (individually capped penalties), got %d", score)
	}
	if score < 0 || score > 100 {
		t.Fatalf("score must stay within [0,100], got %d", score)
	}
}

func TestComputeQualityScore_ReadmeBonusAndMissingTestsPenalty(t *testing.T) {
	debt := models.TechDebtFlags{MissingTests: []string{"pkg/a.go"}}
	tree := map[string]models.FileTreeEntry{"README.md": {}}
	score := computeQualityScore(debt, tree)
	// 100 - 20 (missing tests) + 5 (README) = 85
	if score != 85 {
		t.Fatalf("expected score 85, got %d", score)
	}
}

func TestComputeQualityScore_PerfectScore(t *testing.T) {
	score := computeQualityScore(models.TechDebtFlags{}, map[string]models.FileTreeEntry{})
	if score != 100 {
		t.Fatalf("expected perfect score 100, got %d", score)
	}
}

func TestBuildFileTree_AggregatesPerPath(t *testing.T) {
	chunks := []*models.CodeChunk{
		chunk("a.go", "go", 1, 10, "x"),
		chunk("a.go", "go", 11, 20, "y"),
	}
	tree := buildFileTree(chunks)
	entry, ok := tree["a.go"]
	if !ok {
		t.Fatal("expected a.go in file tree")
	}
	if entry.Chunks != 2 {
		t.Fatalf("expected 2 chunks aggregated, got %d", entry.Chunks)
	}
	if entry.Lines != 20 {
		t.Fatalf("expected 20 total lines (10+10), got %d", entry.Lines)
	}
}
