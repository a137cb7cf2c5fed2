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

type repositoryRepository struct {
	db *sqlx.DB
}

// NewRepositoryRepository creates a gateway over the repositories table.
func NewRepositoryRepository(db *sqlx.DB) RepositoryRepository {
	return &repositoryRepository{db: db}
}

// Upsert inserts a new repository row or refreshes its metadata/head commit
// when the canonical URL is already registered, matching the "upserted by
// canonical URL each analyze call" lifecycle rule.
func (r *repositoryRepository) Upsert(ctx context.Context, repo *models.Repository) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO repositories (id, provider, canonical_url, owner, name, default_branch, head_commit,
			description, language, stars, forks, size_kb, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (canonical_url) DO UPDATE SET
			default_branch = EXCLUDED.default_branch,
			head_commit = EXCLUDED.head_commit,
			description = EXCLUDED.description,
			language = EXCLUDED.language,
			stars = EXCLUDED.stars,
			forks = EXCLUDED.forks,
			size_kb = EXCLUDED.size_kb,
			updated_at = EXCLUDED.updated_at
	`, repo.ID, repo.Provider, repo.CanonicalURL, repo.Owner, repo.Name, repo.DefaultBranch, repo.HeadCommit,
		repo.Description, repo.Language, repo.Stars, repo.Forks, repo.SizeKB, repo.CreatedAt, repo.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert repository: %w", err)
	}

	// ON CONFLICT DO UPDATE does not return the existing id; re-fetch by the
	// unique canonical_url so callers always get the persisted row id back.
	existing, err := r.GetByCanonicalURL(ctx, repo.CanonicalURL)
	if err != nil {
		return err
	}
	*repo = *existing
	return nil
}

func (r *repositoryRepository) GetByID(ctx context.Context, id string) (*models.Repository, error) {
	var rec models.Repository
	err := r.db.GetContext(ctx, &rec, `SELECT * FROM repositories WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get repository: %w", err)
	}
	return &rec, nil
}

func (r *repositoryRepository) GetByCanonicalURL(ctx context.Context, url string) (*models.Repository, error) {
	var rec models.Repository
	err := r.db.GetContext(ctx, &rec, `SELECT * FROM repositories WHERE canonical_url = $1`, url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get repository by url: %w", err)
	}
	return &rec, nil
}

func (r *repositoryRepository) MarkAnalyzed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE repositories SET last_analyzed_at = $2, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("mark repository analyzed: %w", err)
	}
	return nil
}
