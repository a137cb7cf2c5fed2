package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/devlens/internal/crypto"
	"github.com/jmylchreest/devlens/internal/models"
	"github.com/jmylchreest/devlens/internal/repository"
)

// APIKeyService issues and manages long-lived "dlk_" API credentials.
type APIKeyService struct {
	repos  *repository.Repositories
	logger *slog.Logger
}

func NewAPIKeyService(repos *repository.Repositories, logger *slog.Logger) *APIKeyService {
	return &APIKeyService{repos: repos, logger: logger}
}

// CreateKeyInput is the /auth/api-keys request body.
type CreateKeyInput struct {
	Name          string `json:"name"`
	ExpiresInDays *int   `json:"expires_in_days,omitempty"`
}

// CreateKeyOutput returns the raw key exactly once.
type CreateKeyOutput struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	APIKey    string     `json:"api_key"`
	KeyPrefix string     `json:"key_prefix"`
	KeyLast4  string     `json:"key_last4"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CreateKey generates a new credential and persists only its hash.
func (s *APIKeyService) CreateKey(ctx context.Context, userID string, input CreateKeyInput) (*CreateKeyOutput, error) {
	generated, err := crypto.GenerateAPIKey()
	if err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}

	now := time.Now().UTC()
	var expiresAt *time.Time
	if input.ExpiresInDays != nil {
		at := now.AddDate(0, 0, *input.ExpiresInDays)
		expiresAt = &at
	}

	key := &models.ApiKey{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Name:      input.Name,
		KeyHash:   generated.Hash,
		KeyPrefix: generated.Prefix,
		KeyLast4:  generated.Last4,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := s.repos.ApiKeys.Create(ctx, key); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}

	return &CreateKeyOutput{
		ID:        key.ID,
		Name:      key.Name,
		APIKey:    generated.Raw,
		KeyPrefix: generated.Prefix,
		KeyLast4:  generated.Last4,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}, nil
}

// ListKeys returns a user's keys with hashes omitted by the model's json tag.
func (s *APIKeyService) ListKeys(ctx context.Context, userID string) ([]*models.ApiKey, error) {
	return s.repos.ApiKeys.ListByUser(ctx, userID)
}

// RevokeKey revokes a key, scoped to its owner so one user can never revoke
// another's credential even if the id is guessed.
func (s *APIKeyService) RevokeKey(ctx context.Context, userID, keyID string) error {
	return s.repos.ApiKeys.Revoke(ctx, keyID, userID)
}

// Authenticate resolves a raw API key to its owning user id, touching
// last_used_at on success.
func (s *APIKeyService) Authenticate(ctx context.Context, rawKey string) (string, error) {
	key, err := s.repos.ApiKeys.GetByHash(ctx, crypto.HashToken(rawKey))
	if err != nil {
		return "", fmt.Errorf("lookup api key: %w", err)
	}
	if key.RevokedAt != nil {
		return "", fmt.Errorf("api key revoked")
	}
	if key.ExpiresAt != nil && time.Now().UTC().After(*key.ExpiresAt) {
		return "", fmt.Errorf("api key expired")
	}
	_ = s.repos.ApiKeys.TouchLastUsed(ctx, key.ID, time.Now().UTC())
	return key.UserID, nil
}
