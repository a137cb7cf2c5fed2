// Package repository holds typed gateways over the relational store,
// one per entity, following the teacher's thin-record-gateway pattern
// with raw SQL reserved for the chunk batch insert and the FTS/rank query.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jmylchreest/devlens/internal/models"
)

// UserRepository persists GitHub-authenticated accounts.
type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*models.User, error)
	Update(ctx context.Context, u *models.User) error
}

// RepositoryRepository persists registered source repositories.
type RepositoryRepository interface {
	Upsert(ctx context.Context, r *models.Repository) error
	GetByID(ctx context.Context, id string) (*models.Repository, error)
	GetByCanonicalURL(ctx context.Context, url string) (*models.Repository, error)
	MarkAnalyzed(ctx context.Context, id string, at time.Time) error
}

// JobRepository persists AnalysisJob rows and implements the
// at-most-one-worker-advances claim pattern.
type JobRepository interface {
	Create(ctx context.Context, j *models.AnalysisJob) error
	GetByID(ctx context.Context, id string) (*models.AnalysisJob, error)
	GetLatestByIdempotencyKey(ctx context.Context, repoID, commit, key string) (*models.AnalysisJob, error)
	GetLatestActiveOrDone(ctx context.Context, repoID, commit string) (*models.AnalysisJob, error)
	// GetLatestByRepository returns the most recently created job for a
	// repository regardless of commit or status, the row the SSE status
	// stream polls against.
	GetLatestByRepository(ctx context.Context, repoID string) (*models.AnalysisJob, error)
	// ClaimNext atomically moves a single job in fromStatus (whose retry
	// clock has elapsed and which carries no unexpired claim lease) to
	// toStatus, stamping claimed_at so a second replica's poll can't match
	// the same row again — including when fromStatus == toStatus, where the
	// status column alone wouldn't change. Returns nil if none is eligible.
	// Safe under multiple concurrent worker replicas.
	ClaimNext(ctx context.Context, fromStatus, toStatus models.JobStatus) (*models.AnalysisJob, error)
	UpdateProgress(ctx context.Context, id string, progress int, detail string) error
	AdvanceStage(ctx context.Context, id string, next models.JobStatus, progress int) error
	// MarkRetry reverts the job to fromStatus (the stage that failed) and
	// clears its claim lease so the matching ClaimNext call can pick it up
	// again once nextRetryAt elapses.
	MarkRetry(ctx context.Context, id string, fromStatus models.JobStatus, errorCode, errorMessage string, retryCount int, nextRetryAt time.Time) error
	MarkFailed(ctx context.Context, id string, errorCode, errorMessage string) error
	MarkDone(ctx context.Context, id string) error
}

// ResultRepository persists AnalysisResult rows, one live row per job.
type ResultRepository interface {
	Upsert(ctx context.Context, r *models.AnalysisResult) error
	GetLatestByRepository(ctx context.Context, repoID string) (*models.AnalysisResult, error)
	GetByJobID(ctx context.Context, jobID string) (*models.AnalysisResult, error)
}

// ChunkRepository persists CodeChunk rows and provides the two
// performance-critical raw-SQL paths: batch insert and FTS rank search.
type ChunkRepository interface {
	// ReplaceAll deletes all chunks for a repository and inserts the given
	// set in a single transaction, matching the parsing-stage contract.
	ReplaceAll(ctx context.Context, repoID string, chunks []*models.CodeChunk) error
	GetAllByRepository(ctx context.Context, repoID string) ([]*models.CodeChunk, error)
	GetByIDs(ctx context.Context, repoID string, ids []string) ([]*models.CodeChunk, error)
	SetVectorPointIDs(ctx context.Context, pointIDsByChunkID map[string]string) error
	// SearchLexical runs plainto_tsquery against the FTS column scoped to
	// repoID, ranked by ts_rank_cd desc, then path asc, then start_line asc.
	SearchLexical(ctx context.Context, repoID, query string, limit int) ([]LexicalHit, error)
}

// LexicalHit is one row returned by ChunkRepository.SearchLexical.
type LexicalHit struct {
	Chunk models.CodeChunk
	Rank  float64
}

// ChatRepository persists ChatSession and ChatMessage rows.
type ChatRepository interface {
	CreateSession(ctx context.Context, s *models.ChatSession) error
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	AppendMessage(ctx context.Context, m *models.ChatMessage) error
	GetMessages(ctx context.Context, sessionID string) ([]*models.ChatMessage, error)
}

// RefreshTokenRepository persists rotating refresh tokens.
type RefreshTokenRepository interface {
	Create(ctx context.Context, t *models.RefreshToken) error
	GetByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	MarkUsed(ctx context.Context, id string, at time.Time) error
	RevokeFamily(ctx context.Context, familyID string) error
}

// ShareTokenRepository persists minted share links.
type ShareTokenRepository interface {
	Create(ctx context.Context, t *models.ShareToken) error
	GetByJTI(ctx context.Context, jti string) (*models.ShareToken, error)
	Revoke(ctx context.Context, id string) error
}

// ApiKeyRepository persists long-lived API credentials.
type ApiKeyRepository interface {
	Create(ctx context.Context, k *models.ApiKey) error
	GetByHash(ctx context.Context, hash string) (*models.ApiKey, error)
	ListByUser(ctx context.Context, userID string) ([]*models.ApiKey, error)
	Revoke(ctx context.Context, id, userID string) error
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

// DeadLetterRepository persists terminally failed job records.
type DeadLetterRepository interface {
	Create(ctx context.Context, d *models.DeadLetterJob) error
}

// Repositories bundles every gateway behind a single constructor, matching
// the teacher's aggregate-root wiring in cmd/refyne-api/main.go.
type Repositories struct {
	Users         UserRepository
	Repos         RepositoryRepository
	Jobs          JobRepository
	Results       ResultRepository
	Chunks        ChunkRepository
	Chats         ChatRepository
	RefreshTokens RefreshTokenRepository
	ShareTokens   ShareTokenRepository
	ApiKeys       ApiKeyRepository
	DeadLetters   DeadLetterRepository
}

// NewRepositories wires every gateway against a shared *sql.DB connection pool.
func NewRepositories(db *sql.DB) *Repositories {
	dbx := sqlx.NewDb(db, "postgres")
	return &Repositories{
		Users:         NewUserRepository(dbx),
		Repos:         NewRepositoryRepository(dbx),
		Jobs:          NewJobRepository(dbx),
		Results:       NewResultRepository(dbx),
		Chunks:        NewChunkRepository(dbx),
		Chats:         NewChatRepository(dbx),
		RefreshTokens: NewRefreshTokenRepository(dbx),
		ShareTokens:   NewShareTokenRepository(dbx),
		ApiKeys:       NewApiKeyRepository(dbx),
		DeadLetters:   NewDeadLetterRepository(dbx),
	}
}
