package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/devlens/internal/config"
	"github.com/jmylchreest/devlens/internal/models"
	"github.com/jmylchreest/devlens/internal/repository"
)

var skipDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	".venv":        {},
	"venv":         {},
	"dist":         {},
	"build":        {},
	"__pycache__":  {},
}

// extensionLanguages maps a source file extension to the canonical language
// name depgraph's import patterns and the tech-debt/language-breakdown
// reporting expect, not the raw extension.
var extensionLanguages = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".go":   "go",
	".java": "java",
	".cpp":  "cpp",
	".c":    "c",
	".h":    "c",
	".hpp":  "cpp",
	".rs":   "rust",
	".php":  "php",
	".rb":   "ruby",
	".cs":   "csharp",
}

// ParseDeps is what the parsing stage needs from the outside world.
type ParseDeps struct {
	Cfg    *config.Config
	Jobs   repository.JobRepository
	Chunks repository.ChunkRepository
	Logger *slog.Logger
}

// RunParse shallow-clones the repository at job.Commit, chunks every
// allowed source file, replaces the repository's chunk set, and advances
// the job to embedding.
func RunParse(ctx context.Context, deps ParseDeps, job *models.AnalysisJob, repo *models.Repository) error {
	tmpdir, err := os.MkdirTemp("", "devlens-clone-*")
	if err != nil {
		return NewStageError("UNEXPECTED_TMPDIR", fmt.Sprintf("create scratch dir: %v", err))
	}
	defer os.RemoveAll(tmpdir)

	if err := deps.Jobs.UpdateProgress(ctx, job.ID, 10, "cloning repository"); err != nil {
		deps.Logger.Warn("update progress failed", "job_id", job.ID, "error", err)
	}

	if err := shallowClone(ctx, deps.Cfg.ParseCloneTimeout, repo.CanonicalURL, job.Commit, tmpdir); err != nil {
		return err
	}

	if err := deps.Jobs.UpdateProgress(ctx, job.ID, 30, "walking source tree"); err != nil {
		deps.Logger.Warn("update progress failed", "job_id", job.ID, "error", err)
	}

	files, err := collectFiles(tmpdir, deps.Cfg.ParseMaxFiles)
	if err != nil {
		return err
	}

	chunks, err := chunkFiles(files, repo.ID, job.Commit, deps.Cfg.ParseChunkLines, deps.Cfg.ParseChunkOverlapLines, deps.Cfg.ParseMaxChunks)
	if err != nil {
		return err
	}

	if err := deps.Chunks.ReplaceAll(ctx, repo.ID, chunks); err != nil {
		return NewStageError("UNEXPECTED_CHUNK_WRITE", fmt.Sprintf("replace chunks: %v", err))
	}

	if err := deps.Jobs.UpdateProgress(ctx, job.ID, 80, "chunked source tree"); err != nil {
		deps.Logger.Warn("update progress failed", "job_id", job.ID, "error", err)
	}

	if err := deps.Jobs.AdvanceStage(ctx, job.ID, models.JobStatusEmbedding, 0); err != nil {
		return NewStageError("UNEXPECTED_ADVANCE", fmt.Sprintf("advance to embedding: %v", err))
	}
	return nil
}

// shallowClone performs a depth-1 clone of url, then fetches and checks out
// commit, each step bounded by timeout and classified as a clone timeout or
// a clone failure.
func shallowClone(ctx context.Context, timeout time.Duration, url, commit, dest string) error {
	steps := [][]string{
		{"clone", "--depth", "1", url, dest},
		{"fetch", "--depth", "1", "origin", commit},
		{"checkout", commit},
	}
	for i, args := range steps {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		cmd := exec.CommandContext(stepCtx, "git", args...)
		if i > 0 {
			cmd.Dir = dest
		}
		out, err := cmd.CombinedOutput()
		cancel()
		if stepCtx.Err() != nil {
			return NewStageError(CodeCloneTimeout, fmt.Sprintf("git %s timed out: %s", strings.Join(args, " "), string(out)))
		}
		if err != nil {
			return NewStageError(CodeCloneFailed, fmt.Sprintf("git %s failed: %v: %s", strings.Join(args, " "), err, string(out)))
		}
	}
	return nil
}

type sourceFile struct {
	path     string
	language string
	content  string
}

// collectFiles walks dest, skipping vendored/build directories, keeping
// only files whose extension maps to a known language, and reading each as
// UTF-8 with invalid sequences replaced rather than dropped.
func collectFiles(dest string, maxFiles int) ([]sourceFile, error) {
	var files []sourceFile
	err := filepath.Walk(dest, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if _, skip := skipDirs[info.Name()]; skip {
				return filepath.SkipDir
			}
			return nil
		}
		lang, ok := extensionLanguages[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil
		}
		rel, relErr := filepath.Rel(dest, path)
		if relErr != nil {
			rel = path
		}
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		content := raw
		if !utf8.Valid(content) {
			content = []byte(strings.ToValidUTF8(string(content), "�"))
		}
		files = append(files, sourceFile{path: filepath.ToSlash(rel), language: lang, content: string(content)})
		if len(files) > maxFiles {
			return fmt.Errorf("file limit exceeded")
		}
		return nil
	})
	if err != nil {
		if len(files) > maxFiles {
			return nil, NewStageError(CodeFileLimitExceeded, fmt.Sprintf("repository has more than %d source files", maxFiles))
		}
		return nil, NewStageError("UNEXPECTED_WALK", fmt.Sprintf("walk source tree: %v", err))
	}

	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return files, nil
}

// chunkFiles turns every file's lines into overlapping windows of window
// lines stepping by window-overlap, and assigns each a fresh chunk id.
func chunkFiles(files []sourceFile, repoID, commit string, window, overlap, maxChunks int) ([]*models.CodeChunk, error) {
	if window <= overlap {
		return nil, NewStageError(CodeInvalidChunkConfig, fmt.Sprintf("chunk window %d must exceed overlap %d", window, overlap))
	}

	now := time.Now().UTC()
	var chunks []*models.CodeChunk
	for _, f := range files {
		lines := strings.Split(f.content, "\n")
		for _, win := range chunkLines(lines, window, overlap) {
			chunks = append(chunks, &models.CodeChunk{
				ID:           ulid.Make().String(),
				RepositoryID: repoID,
				Commit:       commit,
				Path:         f.path,
				Language:     f.language,
				StartLine:    win.start,
				EndLine:      win.end,
				Content:      strings.Join(lines[win.start-1:win.end], "\n"),
				CreatedAt:    now,
			})
			if len(chunks) > maxChunks {
				return nil, NewStageError(CodeChunkLimitExceeded, fmt.Sprintf("repository produced more than %d chunks", maxChunks))
			}
		}
	}
	return chunks, nil
}

type lineWindow struct {
	start, end int
}

// chunkLines is the sliding-window chunker: windows of `window` lines
// (1-indexed, inclusive) stepping by window-overlap lines, ending exactly
// at the last line.
func chunkLines(lines []string, window, overlap int) []lineWindow {
	total := len(lines)
	if total == 0 {
		return nil
	}
	var windows []lineWindow
	step := window - overlap
	start := 0
	for {
		end := start + window
		if end >= total {
			end = total
			windows = append(windows, lineWindow{start: start + 1, end: end})
			break
		}
		windows = append(windows, lineWindow{start: start + 1, end: end})
		start += step
	}
	return windows
}
