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

type apiKeyRepository struct {
	db *sqlx.DB
}

// NewApiKeyRepository creates a gateway over the api_keys table.
func NewApiKeyRepository(db *sqlx.DB) ApiKeyRepository {
	return &apiKeyRepository{db: db}
}

func (r *apiKeyRepository) Create(ctx context.Context, k *models.ApiKey) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, key_last4, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, k.ID, k.UserID, k.Name, k.KeyHash, k.KeyPrefix, k.KeyLast4, k.ExpiresAt, k.CreatedAt)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (r *apiKeyRepository) GetByHash(ctx context.Context, hash string) (*models.ApiKey, error) {
	var k models.ApiKey
	err := r.db.GetContext(ctx, &k, `SELECT * FROM api_keys WHERE key_hash = $1`, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &k, nil
}

func (r *apiKeyRepository) ListByUser(ctx context.Context, userID string) ([]*models.ApiKey, error) {
	var keys []*models.ApiKey
	err := r.db.SelectContext(ctx, &keys, `
		SELECT * FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

func (r *apiKeyRepository) Revoke(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE api_keys SET revoked_at = now() WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *apiKeyRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch api key last used: %w", err)
	}
	return nil
}
