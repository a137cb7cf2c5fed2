package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/devlens/internal/config"
	"github.com/jmylchreest/devlens/internal/crypto"
	"github.com/jmylchreest/devlens/internal/models"
	"github.com/jmylchreest/devlens/internal/repository"
)

// Discriminating share-resolution errors, surfaced verbatim in the 401 body
// per the spec's "collapse to 401 with discriminating messages" rule.
var (
	ErrShareInvalid = errors.New("Invalid share token")
	ErrShareRevoked = errors.New("Share token revoked")
	ErrShareExpired = errors.New("Share token expired")
	ErrShareBadPayload = errors.New("Invalid share token payload")
)

// ShareService mints and resolves public, revocable, time-bounded links
// granting read access to a repository's analysis without sign-in.
type ShareService struct {
	cfg    *config.Config
	repos  *repository.Repositories
	tokens *crypto.TokenIssuer
	logger *slog.Logger
}

func NewShareService(cfg *config.Config, repos *repository.Repositories, logger *slog.Logger) *ShareService {
	return &ShareService{
		cfg:    cfg,
		repos:  repos,
		tokens: crypto.NewTokenIssuer(cfg.JWTSecret),
		logger: logger,
	}
}

// CreateOutput is the /export/{repo_id}/share response.
type CreateOutput struct {
	ShareID    string    `json:"share_id"`
	ShareToken string    `json:"share_token"`
	ShareURL   string    `json:"share_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Create mints a new share token for a repository. A ttlDays outside the
// [1,30] range is rejected with an error rather than clamped.
func (s *ShareService) Create(ctx context.Context, repoID, userID string, ttlDays *int) (*CreateOutput, error) {
	if _, err := s.repos.Repos.GetByID(ctx, repoID); err != nil {
		return nil, err
	}

	days := s.cfg.ShareTokenTTLDays
	if ttlDays != nil {
		days = *ttlDays
	}
	if days < 1 || days > 30 {
		return nil, fmt.Errorf("ttl_days must be between 1 and 30")
	}

	shareID := ulid.Make().String()
	now := time.Now().UTC()
	expiresAt := now.AddDate(0, 0, days)

	token, err := s.tokens.MintShareToken(repoID, shareID, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("mint share token: %w", err)
	}

	row := &models.ShareToken{
		ID:           ulid.Make().String(),
		JTI:          shareID,
		RepositoryID: repoID,
		CreatedBy:    userID,
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
	}
	if err := s.repos.ShareTokens.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("persist share token: %w", err)
	}

	return &CreateOutput{
		ShareID:    shareID,
		ShareToken: token,
		ShareURL:   s.cfg.FrontendURL + "/share/" + token,
		ExpiresAt:  expiresAt,
	}, nil
}

// ResolvedShare is the public payload returned by GET /share/{token}.
type ResolvedShare struct {
	Repository *models.Repository
	Result     *models.AnalysisResult
}

// Resolve decodes the JWT, enforces audience/typ, and cross-checks the
// persisted row's revocation/expiry state before serving the public view.
func (s *ShareService) Resolve(ctx context.Context, rawToken string) (*ResolvedShare, error) {
	claims, err := s.tokens.ParseShareToken(rawToken)
	if err != nil {
		return nil, ErrShareBadPayload
	}

	row, err := s.repos.ShareTokens.GetByJTI(ctx, claims.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrShareInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("lookup share token: %w", err)
	}
	if row.RepositoryID != claims.Subject {
		return nil, ErrShareBadPayload
	}
	if row.RevokedAt != nil {
		return nil, ErrShareRevoked
	}
	if time.Now().UTC().After(row.ExpiresAt) {
		return nil, ErrShareExpired
	}

	repo, err := s.repos.Repos.GetByID(ctx, row.RepositoryID)
	if err != nil {
		return nil, fmt.Errorf("lookup shared repository: %w", err)
	}
	result, err := s.repos.Results.GetLatestByRepository(ctx, repo.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup shared result: %w", err)
	}
	return &ResolvedShare{Repository: repo, Result: result}, nil
}
