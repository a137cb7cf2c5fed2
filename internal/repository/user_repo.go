package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jmylchreest/devlens/internal/models"
)

// ErrNotFound is returned by gateway lookups when no row matches.
var ErrNotFound = errors.New("not found")

type userRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a gateway over the users table.
func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, u *models.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, github_id, github_login, email, avatar_url, encrypted_access_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.GitHubID, u.GitHubLogin, u.Email, u.AvatarURL, u.EncryptedAccess, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (r *userRepository) GetByGitHubID(ctx context.Context, githubID int64) (*models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE github_id = $1`, githubID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by github id: %w", err)
	}
	return &u, nil
}

func (r *userRepository) Update(ctx context.Context, u *models.User) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET github_login=$2, email=$3, avatar_url=$4, encrypted_access_token=$5, updated_at=$6
		WHERE id=$1
	`, u.ID, u.GitHubLogin, u.Email, u.AvatarURL, u.EncryptedAccess, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}
