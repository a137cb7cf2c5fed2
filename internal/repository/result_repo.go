package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jmylchreest/devlens/internal/models"
)

type resultRepository struct {
	db *sqlx.DB
}

// NewResultRepository creates a gateway over the analysis_results table.
func NewResultRepository(db *sqlx.DB) ResultRepository {
	return &resultRepository{db: db}
}

func (r *resultRepository) Upsert(ctx context.Context, res *models.AnalysisResult) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO analysis_results (id, job_id, repository_id, commit_sha, cache_key, summary, quality_score,
			language_breakdown_json, contributor_stats_json, tech_debt_flags_json, file_tree_json,
			dependency_graph_json, file_count, chunk_count, llm_provider, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (cache_key) DO UPDATE SET
			job_id = EXCLUDED.job_id,
			summary = EXCLUDED.summary,
			quality_score = EXCLUDED.quality_score,
			language_breakdown_json = EXCLUDED.language_breakdown_json,
			contributor_stats_json = EXCLUDED.contributor_stats_json,
			tech_debt_flags_json = EXCLUDED.tech_debt_flags_json,
			file_tree_json = EXCLUDED.file_tree_json,
			dependency_graph_json = EXCLUDED.dependency_graph_json,
			file_count = EXCLUDED.file_count,
			chunk_count = EXCLUDED.chunk_count,
			llm_provider = EXCLUDED.llm_provider
	`, res.ID, res.JobID, res.RepositoryID, res.Commit, res.CacheKey, res.Summary, res.QualityScore,
		res.LanguageBreakdown, res.ContributorStats, res.TechDebtFlags, res.FileTree,
		res.DependencyGraphJSON, res.FileCount, res.ChunkCount, res.LLMProvider, res.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert analysis result: %w", err)
	}
	return nil
}

func (r *resultRepository) GetLatestByRepository(ctx context.Context, repoID string) (*models.AnalysisResult, error) {
	var res models.AnalysisResult
	err := r.db.GetContext(ctx, &res, `
		SELECT * FROM analysis_results WHERE repository_id = $1 ORDER BY created_at DESC LIMIT 1
	`, repoID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest result: %w", err)
	}
	return &res, nil
}

func (r *resultRepository) GetByJobID(ctx context.Context, jobID string) (*models.AnalysisResult, error) {
	var res models.AnalysisResult
	err := r.db.GetContext(ctx, &res, `SELECT * FROM analysis_results WHERE job_id = $1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result by job: %w", err)
	}
	return &res, nil
}
