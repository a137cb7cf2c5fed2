package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jmylchreest/devlens/internal/models"
)

type shareTokenRepository struct {
	db *sqlx.DB
}

// NewShareTokenRepository creates a gateway over the share_tokens table.
func NewShareTokenRepository(db *sqlx.DB) ShareTokenRepository {
	return &shareTokenRepository{db: db}
}

func (r *shareTokenRepository) Create(ctx context.Context, t *models.ShareToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO share_tokens (id, jti, repository_id, created_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.JTI, t.RepositoryID, t.CreatedBy, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("create share token: %w", err)
	}
	return nil
}

func (r *shareTokenRepository) GetByJTI(ctx context.Context, jti string) (*models.ShareToken, error) {
	var t models.ShareToken
	err := r.db.GetContext(ctx, &t, `SELECT * FROM share_tokens WHERE jti = $1`, jti)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get share token: %w", err)
	}
	return &t, nil
}

func (r *shareTokenRepository) Revoke(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE share_tokens SET revoked_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("revoke share token: %w", err)
	}
	return nil
}
