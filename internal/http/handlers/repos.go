package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/devlens/internal/http/apierror"
	"github.com/jmylchreest/devlens/internal/http/mw"
	"github.com/jmylchreest/devlens/internal/models"
	"github.com/jmylchreest/devlens/internal/repository"
	"github.com/jmylchreest/devlens/internal/retrieval"
	"github.com/jmylchreest/devlens/internal/service"
)

// RepoHandlers wires the repository lifecycle surface: kick off analysis,
// stream job progress, serve the dashboard, and run lexical/hybrid search
// over the indexed chunks.
type RepoHandlers struct {
	Jobs   *service.JobService
	Hybrid *retrieval.HybridSearcher
	Lex    *retrieval.LexicalSearcher
	Chunks repository.ChunkRepository
}

// AnalyzeInput is the POST /repos/analyze request.
type AnalyzeInput struct {
	IdempotencyKey string `header:"Idempotency-Key"`
	Body           struct {
		GitHubURL      string `json:"github_url"`
		ForceReanalyze bool   `json:"force_reanalyze,omitempty"`
	}
}

// AnalyzeOutput is the POST /repos/analyze response.
type AnalyzeOutput struct {
	Body service.AnalyzeOutput
}

// Analyze resolves a GitHub repository, applies the dedup rule, and returns
// either the existing job or a freshly queued one.
func (h *RepoHandlers) Analyze(ctx context.Context, in *AnalyzeInput) (*AnalyzeOutput, error) {
	if in.Body.GitHubURL == "" {
		return nil, apierror.BadRequest("github_url is required")
	}

	var userID *string
	if uid, ok := mw.UserID(ctx); ok {
		userID = &uid
	}

	result, err := h.Jobs.Analyze(ctx, service.AnalyzeInput{
		GitHubURL:      in.Body.GitHubURL,
		ForceReanalyze: in.Body.ForceReanalyze,
		IdempotencyKey: in.IdempotencyKey,
		UserID:         userID,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidRepoURL) {
			return nil, apierror.BadRequest("invalid github repository url")
		}
		return nil, apierror.UpstreamError("failed to resolve repository")
	}

	out := &AnalyzeOutput{}
	out.Body = *result
	return out, nil
}

// DashboardOutput is the GET /repos/{id}/dashboard response.
type DashboardOutput struct {
	Body struct {
		Repository *models.Repository     `json:"repository"`
		Result     *models.AnalysisResult `json:"result,omitempty"`
	}
}

// DashboardInput is the GET /repos/{id}/dashboard path parameter.
type DashboardInput struct {
	ID string `path:"id"`
}

// Dashboard returns a repository and its latest analysis result.
func (h *RepoHandlers) Dashboard(ctx context.Context, in *DashboardInput) (*DashboardOutput, error) {
	repo, result, err := h.Jobs.GetDashboard(ctx, in.ID)
	if err != nil {
		return nil, apierror.NotFound("repository not found")
	}
	out := &DashboardOutput{}
	out.Body.Repository = repo
	out.Body.Result = result
	return out, nil
}

// LexicalSearchInput is the GET /repos/{id}/search/lexical query.
type LexicalSearchInput struct {
	ID    string `path:"id"`
	Query string `query:"q"`
	Limit int    `query:"limit"`
}

// SearchHit is one result row shared by the lexical and hybrid endpoints.
type SearchHit struct {
	ChunkID     string  `json:"chunk_id"`
	Path        string  `json:"path"`
	StartLine   int     `json:"start_line"`
	EndLine     int     `json:"end_line"`
	Content     string  `json:"content"`
	Score       float64 `json:"score"`
	RerankScore float64 `json:"rerank_score,omitempty"`
}

// LexicalSearchOutput is the GET /repos/{id}/search/lexical response.
type LexicalSearchOutput struct {
	Body struct {
		RepoID  string      `json:"repo_id"`
		Query   string      `json:"query"`
		Total   int         `json:"total"`
		Results []SearchHit `json:"results"`
	}
}

// Lexical runs the Postgres full-text half of hybrid search on its own.
func (h *RepoHandlers) Lexical(ctx context.Context, in *LexicalSearchInput) (*LexicalSearchOutput, error) {
	if in.Query == "" {
		return nil, apierror.BadRequest("q is required")
	}
	limit := normalizeLimit(in.Limit)

	hits, err := h.Lex.Search(ctx, in.ID, in.Query, limit)
	if err != nil {
		return nil, apierror.NotFound("repository not found")
	}

	ids := make([]string, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ChunkID
	}
	chunks, err := h.Chunks.GetByIDs(ctx, in.ID, ids)
	if err != nil {
		return nil, apierror.Internal("failed to resolve chunks")
	}
	byID := make(map[string]*models.CodeChunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	out := &LexicalSearchOutput{}
	out.Body.RepoID = in.ID
	out.Body.Query = in.Query
	out.Body.Results = make([]SearchHit, 0, len(hits))
	for _, hit := range hits {
		chunk, ok := byID[hit.ChunkID]
		if !ok {
			continue
		}
		out.Body.Results = append(out.Body.Results, SearchHit{
			ChunkID:   chunk.ID,
			Path:      chunk.Path,
			StartLine: chunk.StartLine,
			EndLine:   chunk.EndLine,
			Content:   chunk.Content,
			Score:     hit.Rank,
		})
	}
	out.Body.Total = len(out.Body.Results)
	return out, nil
}

// HybridSearchInput is the GET /repos/{id}/search/hybrid query.
type HybridSearchInput struct {
	ID    string `path:"id"`
	Query string `query:"q"`
	Limit int    `query:"limit"`
}

// HybridSearchOutput is the GET /repos/{id}/search/hybrid response.
type HybridSearchOutput struct {
	Body struct {
		RepoID  string      `json:"repo_id"`
		Query   string      `json:"query"`
		Total   int         `json:"total"`
		Results []SearchHit `json:"results"`
	}
}

// Hybrid runs the dense+lexical rerank and returns the merged ranking.
func (h *RepoHandlers) Hybrid(ctx context.Context, in *HybridSearchInput) (*HybridSearchOutput, error) {
	if in.Query == "" {
		return nil, apierror.BadRequest("q is required")
	}
	limit := normalizeLimit(in.Limit)

	results, chunksByID, err := h.Hybrid.Search(ctx, in.ID, in.Query, limit)
	if err != nil {
		return nil, apierror.UpstreamError("hybrid search failed")
	}

	out := &HybridSearchOutput{}
	out.Body.RepoID = in.ID
	out.Body.Query = in.Query
	out.Body.Results = make([]SearchHit, 0, len(results))
	for _, r := range results {
		chunk, ok := chunksByID[r.ChunkID]
		if !ok {
			continue
		}
		out.Body.Results = append(out.Body.Results, SearchHit{
			ChunkID:     chunk.ID,
			Path:        chunk.Path,
			StartLine:   chunk.StartLine,
			EndLine:     chunk.EndLine,
			Content:     chunk.Content,
			Score:       r.RerankScore,
			RerankScore: r.RerankScore,
		})
	}
	out.Body.Total = len(out.Body.Results)
	return out, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// StatusEvent is emitted on the SSE status stream whenever a job's
// (status, progress, error_message) signature changes.
type StatusEvent struct {
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

const statusPollInterval = time.Second

// Status streams job progress for a repository as Server-Sent Events,
// polling the latest job row roughly once a second and emitting only when
// its (status, progress, error_message) signature changes. once=true
// serves a single snapshot instead of an open stream.
func (h *RepoHandlers) Status(w http.ResponseWriter, r *http.Request) {
	repoID := chi.URLParam(r, "id")
	once := r.URL.Query().Get("once") == "true"

	job, err := h.Jobs.GetJobStatus(r.Context(), repoID)
	if err != nil && !errors.Is(err, service.ErrNoJob) {
		writeJSONError(w, apierror.NotFound("repository not found"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, apierror.Internal("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if rc := http.NewResponseController(w); rc != nil {
		_ = rc.SetWriteDeadline(time.Time{})
	}

	if errors.Is(err, service.ErrNoJob) {
		writeSSE(w, flusher, "error", noJobEvent())
		return
	}

	initialEvent := "progress"
	if job.Status.IsTerminal() {
		initialEvent = "done"
		if job.Status == models.JobStatusFailed {
			initialEvent = "error"
		}
	}
	writeSSE(w, flusher, initialEvent, statusEventFromJob(job))
	if once || job.Status.IsTerminal() {
		return
	}

	lastSig := signature(job)
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-ticker.C:
			job, err = h.Jobs.GetJobStatus(r.Context(), repoID)
			if err != nil {
				return
			}
			sig := signature(job)
			if sig == lastSig {
				continue
			}
			lastSig = sig

			event := "progress"
			if job.Status.IsTerminal() {
				event = "done"
				if job.Status == models.JobStatusFailed {
					event = "error"
				}
			}
			writeSSE(w, flusher, event, statusEventFromJob(job))
			if job.Status.IsTerminal() {
				return
			}
		}
	}
}

func signature(job *models.AnalysisJob) string {
	return string(job.Status) + "|" + strconv.Itoa(job.Progress) + "|" + job.ErrorMessage
}

func noJobEvent() StatusEvent {
	return StatusEvent{Status: "failed", ErrorCode: "NO_JOB", ErrorMessage: "no analysis job exists for this repository"}
}

func statusEventFromJob(job *models.AnalysisJob) StatusEvent {
	return StatusEvent{
		JobID:        job.ID,
		Status:       string(job.Status),
		Progress:     job.Progress,
		ErrorCode:    job.ErrorCode,
		ErrorMessage: job.ErrorMessage,
	}
}

// writeSSE writes a single "event: name\ndata: json\n\n" frame and flushes
// it immediately so the client sees it without proxy buffering delay.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
