// Package worker runs the three independent pipeline-stage loops (parsing,
// embedding, analyzing) that advance AnalysisJob rows. Each loop polls the
// database for a single eligible job via the at-most-one-worker-advances
// claim primitive, runs the corresponding pipeline stage to completion, and
// applies the shared retry/dead-letter rule on failure. Workers coordinate
// through the job's status column plus a claimed_at lease; no distributed
// lock is needed because claims are SELECT ... FOR UPDATE SKIP LOCKED and
// the lease (not just the status transition) is what a concurrent claim
// checks, which matters for embedding/analyzing whose claim is a
// same-status transition.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/devlens/internal/config"
	"github.com/jmylchreest/devlens/internal/models"
	"github.com/jmylchreest/devlens/internal/observability"
	"github.com/jmylchreest/devlens/internal/pipeline"
	"github.com/jmylchreest/devlens/internal/repository"

	"github.com/oklog/ulid/v2"
)

// Config controls the adaptive poll backoff shared by every stage loop.
type Config struct {
	PollIntervalMin time.Duration
	PollIntervalMax time.Duration
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollIntervalMin <= 0 {
		c.PollIntervalMin = 250 * time.Millisecond
	}
	if c.PollIntervalMax <= 0 {
		c.PollIntervalMax = 5 * time.Second
	}
	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 2 * time.Second
	}
	return c
}

// Worker runs the parsing, embedding, and analyzing stage loops concurrently,
// one goroutine each, until Stop is called or the context is cancelled.
type Worker struct {
	cfg     Config
	jobs    repository.JobRepository
	repos   repository.RepositoryRepository
	dead    repository.DeadLetterRepository
	parse   pipeline.ParseDeps
	embed   pipeline.EmbedDeps
	analyze pipeline.AnalyzeDeps
	logger  *slog.Logger

	stop       chan struct{}
	wg         sync.WaitGroup
	activeJobs int64
}

// Active reports whether any stage loop currently has a job claimed and in
// flight.
func (w *Worker) Active() bool {
	return atomic.LoadInt64(&w.activeJobs) > 0
}

// Deps bundles everything the three pipeline stages need, narrowed to the
// interfaces each stage's *Deps struct already declares.
type Deps struct {
	Jobs    repository.JobRepository
	Repos   repository.RepositoryRepository
	Dead    repository.DeadLetterRepository
	Parse   pipeline.ParseDeps
	Embed   pipeline.EmbedDeps
	Analyze pipeline.AnalyzeDeps
}

// New builds a Worker ready to Start.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		cfg: Config{
			PollIntervalMin:  cfg.WorkerPollIntervalMin,
			PollIntervalMax:  cfg.WorkerPollIntervalMax,
			RetryMaxAttempts: cfg.WorkerRetryMaxAttempts,
			RetryBaseDelay:   cfg.WorkerRetryBaseDelay,
		}.withDefaults(),
		jobs:    deps.Jobs,
		repos:   deps.Repos,
		dead:    deps.Dead,
		parse:   deps.Parse,
		embed:   deps.Embed,
		analyze: deps.Analyze,
		logger:  logger.With("component", "worker"),
		stop:    make(chan struct{}),
	}
}

// stageSpec ties a stage's name, the status transition its claim performs,
// and the pipeline function that processes a claimed job.
type stageSpec struct {
	name string
	from models.JobStatus
	to   models.JobStatus
	run  func(ctx context.Context, w *Worker, job *models.AnalysisJob, repo *models.Repository) error
}

var stages = []stageSpec{
	{
		name: pipeline.StageParsing,
		from: models.JobStatusQueued,
		to:   models.JobStatusParsing,
		run: func(ctx context.Context, w *Worker, job *models.AnalysisJob, repo *models.Repository) error {
			return pipeline.RunParse(ctx, w.parse, job, repo)
		},
	},
	{
		name: pipeline.StageEmbedding,
		from: models.JobStatusEmbedding,
		to:   models.JobStatusEmbedding,
		run: func(ctx context.Context, w *Worker, job *models.AnalysisJob, repo *models.Repository) error {
			return pipeline.RunEmbed(ctx, w.embed, job, repo)
		},
	},
	{
		name: pipeline.StageAnalyzing,
		from: models.JobStatusAnalyzing,
		to:   models.JobStatusAnalyzing,
		run: func(ctx context.Context, w *Worker, job *models.AnalysisJob, repo *models.Repository) error {
			return pipeline.RunAnalyze(ctx, w.analyze, job, repo)
		},
	},
}

// Start launches one polling goroutine per stage.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting", "stages", len(stages), "poll_min", w.cfg.PollIntervalMin, "poll_max", w.cfg.PollIntervalMax)
	for _, spec := range stages {
		spec := spec
		w.wg.Add(1)
		go w.runStageLoop(ctx, spec)
	}
}

// Stop signals every stage loop to exit and waits for in-flight jobs to
// finish their current milestone.
func (w *Worker) Stop() {
	close(w.stop)
	w.wg.Wait()
	w.logger.Info("stopped")
}

func (w *Worker) runStageLoop(ctx context.Context, spec stageSpec) {
	defer w.wg.Done()
	interval := w.cfg.PollIntervalMin
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			found := w.processOne(ctx, spec)
			if found {
				interval = w.cfg.PollIntervalMin
			} else {
				interval *= 2
				if interval > w.cfg.PollIntervalMax {
					interval = w.cfg.PollIntervalMax
				}
			}
			timer.Reset(interval)
		}
	}
}

// processOne claims and runs a single job for the given stage, returning
// true iff a job was claimed (whether it succeeded, retried, or failed).
func (w *Worker) processOne(ctx context.Context, spec stageSpec) bool {
	job, err := w.jobs.ClaimNext(ctx, spec.from, spec.to)
	if err != nil {
		w.logger.Error("claim failed", "stage", spec.name, "error", err)
		return false
	}
	if job == nil {
		return false
	}
	observability.JobsClaimedTotal.WithLabelValues(string(spec.from)).Inc()
	atomic.AddInt64(&w.activeJobs, 1)
	defer atomic.AddInt64(&w.activeJobs, -1)

	logger := w.logger.With("job_id", job.ID, "repo_id", job.RepositoryID, "stage", spec.name)
	repo, err := w.repos.GetByID(ctx, job.RepositoryID)
	if err != nil {
		logger.Error("load repository failed", "error", err)
		w.handleFailure(ctx, spec, job, pipeline.NewStageError("UNEXPECTED_LOAD_REPO", err.Error()))
		return true
	}

	start := time.Now()
	runErr := spec.run(ctx, w, job, repo)
	status := "success"
	if runErr != nil {
		status = "error"
	}
	observability.ObserveStage(spec.name, status, start)

	if runErr == nil {
		logger.Info("stage completed")
		return true
	}

	logger.Warn("stage failed", "error", runErr)
	w.handleFailure(ctx, spec, job, runErr)
	return true
}

// handleFailure classifies a stage error and either schedules a retry with
// exponential backoff or routes the job to the dead-letter sink, matching
// the worker reliability rule exactly once per failure.
func (w *Worker) handleFailure(ctx context.Context, spec stageSpec, job *models.AnalysisJob, runErr error) {
	code, message := classify(runErr)
	retryCount := job.RetryCount + 1

	if pipeline.IsRetriable(spec.name, code) && retryCount <= w.cfg.RetryMaxAttempts {
		nextRetryAt := time.Now().UTC().Add(w.cfg.RetryBaseDelay * time.Duration(1<<uint(job.RetryCount)))
		errMsg := fmt.Sprintf("%s: %s", code, message)
		if err := w.jobs.MarkRetry(ctx, job.ID, spec.from, code, errMsg, retryCount, nextRetryAt); err != nil {
			w.logger.Error("mark retry failed", "job_id", job.ID, "error", err)
		}
		return
	}

	errMsg := fmt.Sprintf("%s: %s", code, message)
	if err := w.jobs.MarkFailed(ctx, job.ID, code, errMsg); err != nil {
		w.logger.Error("mark failed failed", "job_id", job.ID, "error", err)
	}

	dead := &models.DeadLetterJob{
		ID:           ulid.Make().String(),
		JobID:        job.ID,
		RepositoryID: job.RepositoryID,
		Commit:       job.Commit,
		LastStatus:   spec.to,
		ErrorCode:    code,
		ErrorMessage: message,
		RetryCount:   job.RetryCount,
		CreatedAt:    time.Now().UTC(),
	}
	if err := w.dead.Create(ctx, dead); err != nil {
		w.logger.Error("create dead letter failed", "job_id", job.ID, "error", err)
	}
}

// classify extracts the error code a pipeline.StageError carries, or falls
// back to a generic UNEXPECTED_ERROR code for anything that escaped
// classification (a panic recovered upstream, a context cancellation, …).
func classify(err error) (code, message string) {
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		return stageErr.Code, stageErr.Message
	}
	return "UNEXPECTED_ERROR", err.Error()
}
