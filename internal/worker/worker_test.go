package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/devlens/internal/config"
	"github.com/jmylchreest/devlens/internal/models"
	"github.com/jmylchreest/devlens/internal/pipeline"
	"github.com/jmylchreest/devlens/internal/repository"
)

// fakeJobs is a minimal in-memory JobRepository stand-in recording calls the
// worker's retry/dead-letter rule makes against it.
type fakeJobs struct {
	repository.JobRepository
	retries []retryCall
	failed  []failCall
}

type retryCall struct {
	id            string
	fromStatus    models.JobStatus
	code, message string
	retryCount    int
	nextRetryAt   time.Time
}

type failCall struct {
	id, code, message string
}

func (f *fakeJobs) ClaimNext(_ context.Context, _, _ models.JobStatus) (*models.AnalysisJob, error) {
	return nil, nil
}

func (f *fakeJobs) MarkRetry(_ context.Context, id string, fromStatus models.JobStatus, code, message string, retryCount int, nextRetryAt time.Time) error {
	f.retries = append(f.retries, retryCall{id, fromStatus, code, message, retryCount, nextRetryAt})
	return nil
}

func (f *fakeJobs) MarkFailed(_ context.Context, id, code, message string) error {
	f.failed = append(f.failed, failCall{id, code, message})
	return nil
}

type fakeDeadLetters struct {
	created []*models.DeadLetterJob
}

func (f *fakeDeadLetters) Create(_ context.Context, d *models.DeadLetterJob) error {
	f.created = append(f.created, d)
	return nil
}

func newTestWorker(jobs *fakeJobs, dead *fakeDeadLetters) *Worker {
	cfg := &config.Config{
		WorkerRetryMaxAttempts: 3,
		WorkerRetryBaseDelay:   time.Second,
		WorkerPollIntervalMin:  10 * time.Millisecond,
		WorkerPollIntervalMax:  20 * time.Millisecond,
	}
	return New(cfg, Deps{Jobs: jobs, Dead: dead}, nil)
}

func TestClassify_StageError(t *testing.T) {
	err := pipeline.NewStageError(pipeline.CodeEmbedUpsertFailed, "upstream unavailable")
	code, message := classify(err)
	assert.Equal(t, pipeline.CodeEmbedUpsertFailed, code)
	assert.Equal(t, "upstream unavailable", message)
}

func TestClassify_UnexpectedError(t *testing.T) {
	code, message := classify(errors.New("boom"))
	assert.Equal(t, "UNEXPECTED_ERROR", code)
	assert.Equal(t, "boom", message)
}

// TestHandleFailure_RetriableUnderBudget verifies scenario 4 from the spec's
// testable properties: a retriable embedding failure under the retry budget
// schedules a retry rather than dead-lettering the job.
func TestHandleFailure_RetriableUnderBudget(t *testing.T) {
	jobs := &fakeJobs{}
	dead := &fakeDeadLetters{}
	w := newTestWorker(jobs, dead)

	job := &models.AnalysisJob{ID: "job_1", RetryCount: 0}
	spec := stages[1] // embedding
	w.handleFailure(context.Background(), spec, job, pipeline.NewStageError(pipeline.CodeEmbedUpsertFailed, "timeout talking to qdrant"))

	require.Len(t, jobs.retries, 1)
	assert.Equal(t, pipeline.CodeEmbedUpsertFailed, jobs.retries[0].code)
	assert.Equal(t, 1, jobs.retries[0].retryCount)
	assert.Equal(t, models.JobStatusEmbedding, jobs.retries[0].fromStatus)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Second), jobs.retries[0].nextRetryAt, 100*time.Millisecond)
	assert.Empty(t, jobs.failed)
	assert.Empty(t, dead.created)
}

// TestHandleFailure_RetryBudgetExhausted verifies the fourth failure (when
// max_attempts=3) transitions to failed and inserts a dead-letter row.
func TestHandleFailure_RetryBudgetExhausted(t *testing.T) {
	jobs := &fakeJobs{}
	dead := &fakeDeadLetters{}
	w := newTestWorker(jobs, dead)

	job := &models.AnalysisJob{ID: "job_1", RepositoryID: "repo_1", Commit: "abc123", RetryCount: 3}
	spec := stages[1] // embedding
	w.handleFailure(context.Background(), spec, job, pipeline.NewStageError(pipeline.CodeEmbedUpsertFailed, "still failing"))

	assert.Empty(t, jobs.retries)
	require.Len(t, jobs.failed, 1)
	assert.Equal(t, pipeline.CodeEmbedUpsertFailed, jobs.failed[0].code)
	require.Len(t, dead.created, 1)
	assert.Equal(t, "job_1", dead.created[0].JobID)
	assert.Equal(t, 3, dead.created[0].RetryCount)
}

// TestHandleFailure_ParsingRetryUsesQueuedAsFromStatus verifies a retriable
// parsing failure asks the repository to revert status to queued (parsing's
// claim fromStatus), not leave it parked in parsing where no ClaimNext call
// can ever reclaim it.
func TestHandleFailure_ParsingRetryUsesQueuedAsFromStatus(t *testing.T) {
	jobs := &fakeJobs{}
	dead := &fakeDeadLetters{}
	w := newTestWorker(jobs, dead)

	job := &models.AnalysisJob{ID: "job_1", RetryCount: 0}
	spec := stages[0] // parsing
	w.handleFailure(context.Background(), spec, job, pipeline.NewStageError(pipeline.CodeCloneTimeout, "clone timed out"))

	require.Len(t, jobs.retries, 1)
	assert.Equal(t, models.JobStatusQueued, jobs.retries[0].fromStatus)
}

// TestHandleFailure_NonRetriableGoesStraightToDeadLetter verifies a
// non-retriable parsing error (FILE_LIMIT_EXCEEDED) dead-letters immediately
// regardless of retry count, matching scenario 3.
func TestHandleFailure_NonRetriableGoesStraightToDeadLetter(t *testing.T) {
	jobs := &fakeJobs{}
	dead := &fakeDeadLetters{}
	w := newTestWorker(jobs, dead)

	job := &models.AnalysisJob{ID: "job_1", RetryCount: 0}
	spec := stages[0] // parsing
	w.handleFailure(context.Background(), spec, job, pipeline.NewStageError(pipeline.CodeFileLimitExceeded, "too many files"))

	assert.Empty(t, jobs.retries)
	require.Len(t, jobs.failed, 1)
	require.Len(t, dead.created, 1)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 250*time.Millisecond, cfg.PollIntervalMin)
	assert.Equal(t, 5*time.Second, cfg.PollIntervalMax)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.RetryBaseDelay)
}

func TestWorker_StartStop(t *testing.T) {
	jobs := &fakeJobs{}
	dead := &fakeDeadLetters{}
	w := newTestWorker(jobs, dead)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() timed out")
	}
}
