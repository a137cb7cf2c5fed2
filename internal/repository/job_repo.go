package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jmylchreest/devlens/internal/models"
)

type jobRepository struct {
	db *sqlx.DB
}

// NewJobRepository creates a gateway over the analysis_jobs table.
func NewJobRepository(db *sqlx.DB) JobRepository {
	return &jobRepository{db: db}
}

func (r *jobRepository) Create(ctx context.Context, j *models.AnalysisJob) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO analysis_jobs (id, repository_id, user_id, commit_sha, status, idempotency_key,
			force_reanalyze, progress, progress_detail, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, j.ID, j.RepositoryID, j.UserID, j.Commit, j.Status, j.IdempotencyKey,
		j.ForceReanalyze, j.Progress, j.ProgressDetail, j.RetryCount, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (r *jobRepository) GetByID(ctx context.Context, id string) (*models.AnalysisJob, error) {
	var j models.AnalysisJob
	err := r.db.GetContext(ctx, &j, `SELECT * FROM analysis_jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// GetLatestByIdempotencyKey implements analyze() dedup rule 2: the latest job
// sharing (repo, commit, idempotency_key).
func (r *jobRepository) GetLatestByIdempotencyKey(ctx context.Context, repoID, commit, key string) (*models.AnalysisJob, error) {
	var j models.AnalysisJob
	err := r.db.GetContext(ctx, &j, `
		SELECT * FROM analysis_jobs
		WHERE repository_id = $1 AND commit_sha = $2 AND idempotency_key = $3
		ORDER BY created_at DESC LIMIT 1
	`, repoID, commit, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job by idempotency key: %w", err)
	}
	return &j, nil
}

// GetLatestActiveOrDone implements analyze() dedup rule 3: the latest job
// whose status is active (queued/parsing/embedding/analyzing) or done.
func (r *jobRepository) GetLatestActiveOrDone(ctx context.Context, repoID, commit string) (*models.AnalysisJob, error) {
	var j models.AnalysisJob
	err := r.db.GetContext(ctx, &j, `
		SELECT * FROM analysis_jobs
		WHERE repository_id = $1 AND commit_sha = $2
			AND status IN ('queued', 'parsing', 'embedding', 'analyzing', 'done')
		ORDER BY created_at DESC LIMIT 1
	`, repoID, commit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest active-or-done job: %w", err)
	}
	return &j, nil
}

// GetLatestByRepository returns the most recent job for a repository
// regardless of commit or status, used by the SSE status stream.
func (r *jobRepository) GetLatestByRepository(ctx context.Context, repoID string) (*models.AnalysisJob, error) {
	var j models.AnalysisJob
	err := r.db.GetContext(ctx, &j, `
		SELECT * FROM analysis_jobs WHERE repository_id = $1 ORDER BY created_at DESC LIMIT 1
	`, repoID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest job for repository: %w", err)
	}
	return &j, nil
}

// ClaimNext is the at-most-one-worker-advances primitive: a single
// conditional UPDATE picks the earliest eligible job in fromStatus via
// FOR UPDATE SKIP LOCKED, advances it to toStatus, and returns the full row.
// Eligibility also requires an unset claimed_at lease, which this call
// stamps in the same UPDATE. That lease is what makes same-status claims
// (embedding, analyzing both use fromStatus == toStatus) safe: the status
// column alone wouldn't change on such a claim, so a second replica's poll
// would otherwise match the row again before the first replica finishes it.
// Concurrent worker replicas calling this against the same fromStatus never
// observe the same job twice.
func (r *jobRepository) ClaimNext(ctx context.Context, fromStatus, toStatus models.JobStatus) (*models.AnalysisJob, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	var j models.AnalysisJob
	err = tx.GetContext(ctx, &j, `
		UPDATE analysis_jobs
		SET status = $1, claimed_at = $2, updated_at = $2
		WHERE id = (
			SELECT id FROM analysis_jobs
			WHERE status = $3 AND claimed_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= $2)
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`, toStatus, now, fromStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	committed = true
	return &j, nil
}

func (r *jobRepository) UpdateProgress(ctx context.Context, id string, progress int, detail string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE analysis_jobs SET progress = $2, progress_detail = $3, updated_at = $4 WHERE id = $1
	`, id, progress, detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// AdvanceStage moves a job to the next monotonic stage, or to done/failed,
// stamping completed_at when the new status is terminal. It also clears the
// claim lease so the job's next stage can be claimed in turn.
func (r *jobRepository) AdvanceStage(ctx context.Context, id string, next models.JobStatus, progress int) error {
	now := time.Now().UTC()
	var completedAt *time.Time
	if next.IsTerminal() {
		completedAt = &now
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE analysis_jobs SET status = $2, progress = $3, updated_at = $4, completed_at = $5,
			retry_count = 0, next_retry_at = NULL, error_code = '', error_message = '', claimed_at = NULL
		WHERE id = $1
	`, id, next, progress, now, completedAt)
	if err != nil {
		return fmt.Errorf("advance job stage: %w", err)
	}
	return nil
}

// MarkRetry reverts status to fromStatus (the stage that failed) and clears
// the claim lease, so the matching ClaimNext(fromStatus, ...) call can pick
// the job back up once next_retry_at elapses. Without the status revert, a
// job that failed mid-stage would stay parked in its in-flight status
// forever, since no ClaimNext call targets it as a fromStatus.
func (r *jobRepository) MarkRetry(ctx context.Context, id string, fromStatus models.JobStatus, errorCode, errorMessage string, retryCount int, nextRetryAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE analysis_jobs
		SET status = $2, claimed_at = NULL, error_code = $3, error_message = $4, retry_count = $5,
			next_retry_at = $6, updated_at = $7
		WHERE id = $1
	`, id, fromStatus, errorCode, errorMessage, retryCount, nextRetryAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark job retry: %w", err)
	}
	return nil
}

func (r *jobRepository) MarkFailed(ctx context.Context, id string, errorCode, errorMessage string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE analysis_jobs
		SET status = 'failed', progress = 100, error_code = $2, error_message = $3,
			completed_at = $4, updated_at = $4, next_retry_at = NULL, claimed_at = NULL
		WHERE id = $1
	`, id, errorCode, errorMessage, now)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	return nil
}

func (r *jobRepository) MarkDone(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE analysis_jobs SET status = 'done', progress = 100, completed_at = $2, updated_at = $2,
			claimed_at = NULL
		WHERE id = $1
	`, id, now)
	if err != nil {
		return fmt.Errorf("mark job done: %w", err)
	}
	return nil
}
