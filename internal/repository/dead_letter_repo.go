package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jmylchreest/devlens/internal/models"
)

type deadLetterRepository struct {
	db *sqlx.DB
}

// NewDeadLetterRepository creates a gateway over the dead_letter_jobs table.
func NewDeadLetterRepository(db *sqlx.DB) DeadLetterRepository {
	return &deadLetterRepository{db: db}
}

func (r *deadLetterRepository) Create(ctx context.Context, d *models.DeadLetterJob) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dead_letter_jobs (id, job_id, repository_id, commit_sha, last_status, error_code,
			error_message, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, d.ID, d.JobID, d.RepositoryID, d.Commit, d.LastStatus, d.ErrorCode, d.ErrorMessage, d.RetryCount, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("create dead letter job: %w", err)
	}
	return nil
}
