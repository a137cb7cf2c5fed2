package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/devlens/internal/depgraph"
	"github.com/jmylchreest/devlens/internal/githubclient"
	"github.com/jmylchreest/devlens/internal/llm"
	"github.com/jmylchreest/devlens/internal/models"
	"github.com/jmylchreest/devlens/internal/repository"
)

// AnalyzeDeps is what the analysis stage needs from the outside world.
type AnalyzeDeps struct {
	Jobs         repository.JobRepository
	Chunks       repository.ChunkRepository
	Results      repository.ResultRepository
	Repos        repository.RepositoryRepository
	GitHub       *githubclient.Client
	Orchestrator *llm.Orchestrator
	Logger       *slog.Logger
}

var todoFixmePattern = regexp.MustCompile(`(?i)\b(TODO|FIXME)\b`)
var testPathPattern = regexp.MustCompile(`(?i)(^tests/|/tests/|test_)`)

const longFunctionLineThreshold = 50
const maxLongFunctions = 50
const maxMissingTestPaths = 20
const maxRepresentativePaths = 25

// RunAnalyze computes the language breakdown, tech-debt flags, file tree,
// contributor stats, and architecture summary for a repository, then marks
// the job and repository done.
func RunAnalyze(ctx context.Context, deps AnalyzeDeps, job *models.AnalysisJob, repo *models.Repository) error {
	if err := deps.Jobs.UpdateProgress(ctx, job.ID, 10, "loading chunks"); err != nil {
		deps.Logger.Warn("update progress failed", "job_id", job.ID, "error", err)
	}

	chunks, err := deps.Chunks.GetAllByRepository(ctx, repo.ID)
	if err != nil {
		return NewStageError("UNEXPECTED_LOAD_CHUNKS", fmt.Sprintf("load chunks: %v", err))
	}

	languageBreakdown := computeLanguageBreakdown(chunks)
	techDebt := detectTechDebt(chunks)
	fileTree := buildFileTree(chunks)
	contributors := contributorStats(ctx, deps.GitHub, repo)

	if err := deps.Jobs.UpdateProgress(ctx, job.ID, 50, "building dependency graph"); err != nil {
		deps.Logger.Warn("update progress failed", "job_id", job.ID, "error", err)
	}
	depEdges := buildDependencyGraph(chunks)

	summary, provider := architectureSummary(ctx, deps.Orchestrator, repo, languageBreakdown, fileTree)
	score := computeQualityScore(techDebt, fileTree)

	if err := deps.Jobs.UpdateProgress(ctx, job.ID, 80, "storing analysis result"); err != nil {
		deps.Logger.Warn("update progress failed", "job_id", job.ID, "error", err)
	}

	langJSON, _ := json.Marshal(languageBreakdown)
	contribJSON, _ := json.Marshal(contributors)
	debtJSON, _ := json.Marshal(techDebt)
	treeJSON, _ := json.Marshal(fileTree)
	depJSON, _ := json.Marshal(depEdges)

	result := &models.AnalysisResult{
		ID:                  ulid.Make().String(),
		JobID:               job.ID,
		RepositoryID:         repo.ID,
		Commit:              job.Commit,
		CacheKey:            repo.ID + "@" + job.Commit,
		Summary:             summary,
		QualityScore:        score,
		LanguageBreakdown:   string(langJSON),
		ContributorStats:    string(contribJSON),
		TechDebtFlags:       string(debtJSON),
		FileTree:            string(treeJSON),
		DependencyGraphJSON: string(depJSON),
		FileCount:           len(fileTree),
		ChunkCount:          len(chunks),
		LLMProvider:         provider,
		CreatedAt:           time.Now().UTC(),
	}
	if err := deps.Results.Upsert(ctx, result); err != nil {
		return NewStageError("UNEXPECTED_STORE_RESULT", fmt.Sprintf("store analysis result: %v", err))
	}

	if err := deps.Jobs.MarkDone(ctx, job.ID); err != nil {
		return NewStageError("UNEXPECTED_MARK_DONE", fmt.Sprintf("mark job done: %v", err))
	}
	if err := deps.Repos.MarkAnalyzed(ctx, repo.ID, time.Now().UTC()); err != nil {
		deps.Logger.Warn("mark repository analyzed failed", "repository_id", repo.ID, "error", err)
	}
	return nil
}

// computeLanguageBreakdown sums chunk content byte length per language,
// sorts desc by raw size, then converts to a 2-decimal percentage share.
func computeLanguageBreakdown(chunks []*models.CodeChunk) []models.LanguageShare {
	sizes := make(map[string]int)
	total := 0
	for _, c := range chunks {
		lang := strings.ToLower(c.Language)
		if lang == "" {
			lang = "unknown"
		}
		sizes[lang] += len(c.Content)
		total += len(c.Content)
	}

	type entry struct {
		lang string
		size int
	}
	entries := make([]entry, 0, len(sizes))
	for lang, size := range sizes {
		entries = append(entries, entry{lang, size})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].size != entries[j].size {
			return entries[i].size > entries[j].size
		}
		return entries[i].lang < entries[j].lang
	})

	out := make([]models.LanguageShare, 0, len(entries))
	for _, e := range entries {
		share := 0.0
		if total > 0 {
			share = round2(float64(e.size) / float64(total) * 100)
		}
		out = append(out, models.LanguageShare{Language: e.lang, Share: share})
	}
	return out
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

// detectTechDebt flags chunks whose span exceeds the long-function
// threshold (capped), counts TODO/FIXME occurrences, and lists source files
// with no corresponding test path.
func detectTechDebt(chunks []*models.CodeChunk) models.TechDebtFlags {
	var longFunctions []models.ChunkRef
	todoCount := 0
	pathsSeen := make(map[string]struct{})
	testedPaths := false

	for _, c := range chunks {
		span := c.EndLine - c.StartLine + 1
		if span > longFunctionLineThreshold && len(longFunctions) < maxLongFunctions {
			longFunctions = append(longFunctions, models.ChunkRef{
				ChunkID: c.ID, Path: c.Path, StartLine: c.StartLine, EndLine: c.EndLine,
			})
		}
		todoCount += len(todoFixmePattern.FindAllString(c.Content, -1))
		pathsSeen[c.Path] = struct{}{}
		if testPathPattern.MatchString(c.Path) {
			testedPaths = true
		}
	}

	var missingTests []string
	if !testedPaths {
		for p := range pathsSeen {
			missingTests = append(missingTests, p)
		}
		sort.Strings(missingTests)
		if len(missingTests) > maxMissingTestPaths {
			missingTests = missingTests[:maxMissingTestPaths]
		}
	}

	return models.TechDebtFlags{
		LongFunctions: longFunctions,
		TodoCount:     todoCount,
		MissingTests:  missingTests,
	}
}

// buildFileTree aggregates per-path chunk/line/language stats.
func buildFileTree(chunks []*models.CodeChunk) map[string]models.FileTreeEntry {
	tree := make(map[string]models.FileTreeEntry)
	for _, c := range chunks {
		entry := tree[c.Path]
		entry.Chunks++
		entry.Lines += c.EndLine - c.StartLine + 1
		entry.Language = c.Language
		tree[c.Path] = entry
	}
	return tree
}

// buildDependencyGraph feeds every chunk's content through the import-graph
// builder, keyed by path since chunk boundaries don't affect import
// statements (those live at the top of a file, in the first chunk).
func buildDependencyGraph(chunks []*models.CodeChunk) []depgraph.Edge {
	byPath := make(map[string]*strings.Builder)
	lang := make(map[string]string)
	order := make([]string, 0)
	for _, c := range chunks {
		if _, ok := byPath[c.Path]; !ok {
			byPath[c.Path] = &strings.Builder{}
			lang[c.Path] = c.Language
			order = append(order, c.Path)
		}
		byPath[c.Path].WriteString(c.Content)
		byPath[c.Path].WriteString("\n")
	}
	files := make([]depgraph.File, 0, len(order))
	for _, p := range order {
		files = append(files, depgraph.File{Path: p, Language: lang[p], Content: byPath[p].String()})
	}
	return depgraph.Build(files)
}

// contributorStats degrades to an empty list with an error code on any
// upstream GitHub failure rather than failing the whole analysis.
func contributorStats(ctx context.Context, gh *githubclient.Client, repo *models.Repository) models.ContributorStats {
	contributors, err := gh.TopContributors(ctx, repo.Owner, repo.Name, 10)
	if err != nil {
		return models.ContributorStats{TopContributors: []models.ContributorStat{}, Error: "CONTRIBUTORS_UNAVAILABLE"}
	}
	out := make([]models.ContributorStat, 0, len(contributors))
	for _, c := range contributors {
		out = append(out, models.ContributorStat{Login: c.Login, Commits: c.Commits})
	}
	return models.ContributorStats{TopContributors: out}
}

// architectureSummary tries the LLM orchestrator first and falls back to a
// deterministic template built from structural chunk metadata.
func architectureSummary(ctx context.Context, orch *llm.Orchestrator, repo *models.Repository, languages []models.LanguageShare, tree map[string]models.FileTreeEntry) (summary, provider string) {
	paths := make([]string, 0, len(tree))
	for p := range tree {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	sample := paths
	if len(sample) > maxRepresentativePaths {
		sample = sample[:maxRepresentativePaths]
	}

	chunkCount := 0
	for _, entry := range tree {
		chunkCount += entry.Chunks
	}

	if orch != nil {
		prompt := buildSummaryPrompt(repo, languages, sample)
		if text, name := orch.Summarize(ctx, prompt); text != "" {
			return text, name
		}
	}

	return deterministicSummary(repo, languages, len(tree), chunkCount, sample), "deterministic"
}

func buildSummaryPrompt(repo *models.Repository, languages []models.LanguageShare, samplePaths []string) string {
	var langParts []string
	for _, l := range languages {
		langParts = append(langParts, fmt.Sprintf("%s %.2f%%", l.Language, l.Share))
	}
	return fmt.Sprintf(
		"Repository: %s\nDefault branch: %s\nLanguage breakdown: %s\nRepresentative file paths:\n%s\n\n"+
			"Write a 3-5 sentence architecture summary for developers joining this project. "+
			"Do not invent files or technologies not present in this context.",
		repo.FullName(), repo.DefaultBranch, strings.Join(langParts, ", "), strings.Join(samplePaths, "\n"),
	)
}

func deterministicSummary(repo *models.Repository, languages []models.LanguageShare, fileCount, chunkCount int, samplePaths []string) string {
	topLang := "an unidentified language"
	if len(languages) > 0 {
		topLang = languages[0].Language
	}
	sample := strings.Join(samplePaths, ", ")
	return fmt.Sprintf(
		"Repository %s (branch %s) is primarily %s. The parse/index stage identified %d source files and %d chunks. "+
			"Representative paths include: %s. This summary is generated from structural chunk metadata and should be refined with LLM synthesis in later stages.",
		repo.FullName(), repo.DefaultBranch, topLang, fileCount, chunkCount, sample,
	)
}

// computeQualityScore starts at 100 and penalizes tech-debt signals,
// rewarding the presence of a README.
func computeQualityScore(debt models.TechDebtFlags, tree map[string]models.FileTreeEntry) int {
	score := 100
	score -= min(30, debt.TodoCount)
	score -= min(30, 2*len(debt.LongFunctions))
	if len(debt.MissingTests) > 0 {
		score -= 20
	}
	for path := range tree {
		if strings.HasSuffix(strings.ToLower(path), "readme.md") {
			score += 5
			break
		}
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
