package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/devlens/internal/config"
	"github.com/jmylchreest/devlens/internal/githubclient"
	"github.com/jmylchreest/devlens/internal/models"
	"github.com/jmylchreest/devlens/internal/repository"
)

// RepoResolver is the subset of githubclient.Client that Analyze needs,
// narrowed to an interface so tests can substitute a fake instead of hitting
// the real GitHub API.
type RepoResolver interface {
	GetRepository(ctx context.Context, owner, name string) (githubclient.RepoMetadata, error)
	GetHeadCommit(ctx context.Context, owner, name, branch string) (string, error)
}

// JobService implements the analyze() public contract: resolve a source
// repository's canonical identity and head commit, upsert the Repository
// row, then apply the dedup rules that decide whether a fresh AnalysisJob
// is created or an existing one is handed back.
type JobService struct {
	cfg    *config.Config
	repos  *repository.Repositories
	github RepoResolver
	logger *slog.Logger
}

func NewJobService(cfg *config.Config, repos *repository.Repositories, github RepoResolver, logger *slog.Logger) *JobService {
	return &JobService{cfg: cfg, repos: repos, github: github, logger: logger}
}

// AnalyzeInput is the /repos/analyze request body.
type AnalyzeInput struct {
	GitHubURL      string
	ForceReanalyze bool
	IdempotencyKey string
	UserID         *string
}

// AnalyzeOutput is the /repos/analyze response.
type AnalyzeOutput struct {
	JobID     string `json:"job_id"`
	RepoID    string `json:"repo_id"`
	Status    string `json:"status"`
	CacheHit  bool   `json:"cache_hit"`
	CommitSHA string `json:"commit_sha"`
}

// activeStatuses is the dedup rule 3 "active set", jobs still in flight.
var activeStatuses = []models.JobStatus{
	models.JobStatusQueued,
	models.JobStatusParsing,
	models.JobStatusEmbedding,
	models.JobStatusAnalyzing,
}

// Analyze resolves the canonical repository identity and head commit,
// upserts the Repository row, then applies the dedup rules in order:
// force_reanalyze skip, idempotency-key match, active-or-done match,
// otherwise create a fresh queued job.
func (s *JobService) Analyze(ctx context.Context, input AnalyzeInput) (*AnalyzeOutput, error) {
	owner, name, err := githubclient.ParseCanonicalURL(input.GitHubURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRepoURL, err)
	}

	meta, err := s.github.GetRepository(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamRepo, err)
	}
	commit, err := s.github.GetHeadCommit(ctx, owner, name, meta.DefaultBranch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamRepo, err)
	}

	now := time.Now().UTC()
	repo := &models.Repository{
		ID:            ulid.Make().String(),
		Provider:      "github",
		CanonicalURL:  canonicalGitHubURL(owner, name),
		Owner:         owner,
		Name:          name,
		DefaultBranch: meta.DefaultBranch,
		HeadCommit:    commit,
		Description:   meta.Description,
		Language:      meta.Language,
		Stars:         meta.Stars,
		Forks:         meta.Forks,
		SizeKB:        meta.SizeKB,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repos.Repos.Upsert(ctx, repo); err != nil {
		return nil, fmt.Errorf("upsert repository: %w", err)
	}

	if !input.ForceReanalyze {
		if input.IdempotencyKey != "" {
			job, err := s.repos.Jobs.GetLatestByIdempotencyKey(ctx, repo.ID, commit, input.IdempotencyKey)
			if err == nil {
				return jobOutput(repo.ID, commit, job), nil
			}
			if !errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("lookup job by idempotency key: %w", err)
			}
		} else {
			job, err := s.repos.Jobs.GetLatestActiveOrDone(ctx, repo.ID, commit)
			if err == nil {
				return jobOutput(repo.ID, commit, job), nil
			}
			if !errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("lookup active or done job: %w", err)
			}
		}
	}

	var idemKey *string
	if input.IdempotencyKey != "" {
		idemKey = &input.IdempotencyKey
	}
	job := &models.AnalysisJob{
		ID:             ulid.Make().String(),
		RepositoryID:   repo.ID,
		UserID:         input.UserID,
		Commit:         commit,
		Status:         models.JobStatusQueued,
		IdempotencyKey: idemKey,
		ForceReanalyze: input.ForceReanalyze,
		Progress:       0,
		RetryCount:     0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repos.Jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.logger.Info("queued analysis job", "job_id", job.ID, "repo_id", repo.ID, "commit", commit)
	return jobOutput(repo.ID, commit, job), nil
}

func jobOutput(repoID, commit string, job *models.AnalysisJob) *AnalyzeOutput {
	return &AnalyzeOutput{
		JobID:     job.ID,
		RepoID:    repoID,
		Status:    string(job.Status),
		CacheHit:  job.Status == models.JobStatusDone,
		CommitSHA: commit,
	}
}

func canonicalGitHubURL(owner, name string) string {
	return "https://github.com/" + owner + "/" + name
}

// ErrInvalidRepoURL signals a URL that couldn't be parsed as a GitHub repository.
var ErrInvalidRepoURL = errors.New("invalid repository url")

// ErrUpstreamRepo signals a GitHub API failure while resolving repository metadata.
var ErrUpstreamRepo = errors.New("upstream repository lookup failed")

// GetDashboard returns a repository and its latest analysis result.
func (s *JobService) GetDashboard(ctx context.Context, repoID string) (*models.Repository, *models.AnalysisResult, error) {
	repo, err := s.repos.Repos.GetByID(ctx, repoID)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.repos.Results.GetLatestByRepository(ctx, repoID)
	if errors.Is(err, repository.ErrNotFound) {
		return repo, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return repo, result, nil
}

// ErrNoJob distinguishes "repository exists but has never been analyzed"
// from "repository not found" so the SSE handler can emit the spec's single
// NO_JOB error event instead of a 404 for the former.
var ErrNoJob = errors.New("no analysis job for repository")

// GetJobStatus returns the latest job row for a repository, used by the SSE
// status stream's poll loop.
func (s *JobService) GetJobStatus(ctx context.Context, repoID string) (*models.AnalysisJob, error) {
	repo, err := s.repos.Repos.GetByID(ctx, repoID)
	if err != nil {
		return nil, err
	}
	job, err := s.repos.Jobs.GetLatestByRepository(ctx, repo.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoJob
	}
	return job, err
}
