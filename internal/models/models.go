// Package models defines the persistent domain entities for devlens.
package models

import "time"

// JobStatus represents the lifecycle state of an AnalysisJob.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusParsing   JobStatus = "parsing"
	JobStatusEmbedding JobStatus = "embedding"
	JobStatusAnalyzing JobStatus = "analyzing"
	JobStatusDone      JobStatus = "done"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the status will never transition again.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// User is an account created via GitHub OAuth.
type User struct {
	ID              string    `db:"id" json:"id"`
	GitHubID        int64     `db:"github_id" json:"github_id"`
	GitHubLogin     string    `db:"github_login" json:"github_login"`
	Email           string    `db:"email" json:"email"`
	AvatarURL       string    `db:"avatar_url" json:"avatar_url"`
	EncryptedAccess string    `db:"encrypted_access_token" json:"-"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Repository is a source-hosting repository that has been registered for analysis.
type Repository struct {
	ID             string     `db:"id" json:"id"`
	Provider       string     `db:"provider" json:"provider"` // currently always "github"
	CanonicalURL   string     `db:"canonical_url" json:"canonical_url"`
	Owner          string     `db:"owner" json:"owner"`
	Name           string     `db:"name" json:"name"`
	DefaultBranch  string     `db:"default_branch" json:"default_branch"`
	HeadCommit     string     `db:"head_commit" json:"head_commit"`
	Description    string     `db:"description" json:"description"`
	Language       string     `db:"language" json:"language"`
	Stars          int        `db:"stars" json:"stars"`
	Forks          int        `db:"forks" json:"forks"`
	SizeKB         int        `db:"size_kb" json:"size_kb"`
	LastAnalyzedAt *time.Time `db:"last_analyzed_at" json:"last_analyzed_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName returns "owner/name".
func (r *Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// AnalysisJob tracks a single run of the parse/embed/analyze pipeline against
// a (repository, commit) pair.
type AnalysisJob struct {
	ID             string     `db:"id" json:"id"`
	RepositoryID   string     `db:"repository_id" json:"repository_id"`
	UserID         *string    `db:"user_id" json:"user_id,omitempty"`
	Commit         string     `db:"commit_sha" json:"commit_sha"`
	Status         JobStatus  `db:"status" json:"status"`
	IdempotencyKey *string    `db:"idempotency_key" json:"idempotency_key,omitempty"`
	ForceReanalyze bool       `db:"force_reanalyze" json:"force_reanalyze"`
	Progress       int        `db:"progress" json:"progress"`
	ProgressDetail string     `db:"progress_detail" json:"progress_detail"`
	ErrorCode      string     `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage   string     `db:"error_message" json:"error_message,omitempty"`
	RetryCount     int        `db:"retry_count" json:"retry_count"`
	NextRetryAt    *time.Time `db:"next_retry_at" json:"next_retry_at,omitempty"`
	// ClaimedAt is the in-flight lease a worker holds while processing this
	// job's current stage. ClaimNext sets it atomically with the status
	// transition so a second replica's poll can't re-claim the same row
	// before the first has finished (or retried/failed) it, even for
	// stages whose claim is a same-status transition (embedding, analyzing).
	ClaimedAt   *time.Time `db:"claimed_at" json:"claimed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// AnalysisResult is the final architecture report produced for a completed job.
// The *JSON columns are kept opaque at the gateway layer (per the design note
// on dynamic JSON blobs) and only typed at the HTTP renderer.
type AnalysisResult struct {
	ID                  string    `db:"id" json:"id"`
	JobID               string    `db:"job_id" json:"job_id"`
	RepositoryID        string    `db:"repository_id" json:"repository_id"`
	Commit              string    `db:"commit_sha" json:"commit_sha"`
	CacheKey            string    `db:"cache_key" json:"cache_key"`
	Summary             string    `db:"summary" json:"summary"`
	QualityScore        int       `db:"quality_score" json:"quality_score"`
	LanguageBreakdown   string    `db:"language_breakdown_json" json:"language_breakdown_json"`
	ContributorStats    string    `db:"contributor_stats_json" json:"contributor_stats_json"`
	TechDebtFlags       string    `db:"tech_debt_flags_json" json:"tech_debt_flags_json"`
	FileTree            string    `db:"file_tree_json" json:"file_tree_json"`
	DependencyGraphJSON string    `db:"dependency_graph_json" json:"dependency_graph_json"`
	FileCount           int       `db:"file_count" json:"file_count"`
	ChunkCount          int       `db:"chunk_count" json:"chunk_count"`
	LLMProvider         string    `db:"llm_provider" json:"llm_provider"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// LanguageShare is one entry in a language breakdown, sorted desc by Share.
type LanguageShare struct {
	Language string  `json:"language"`
	Share    float64 `json:"share"`
}

// ContributorStat is a best-effort per-contributor commit count.
type ContributorStat struct {
	Login   string `json:"login"`
	Commits int    `json:"commits"`
}

// ContributorStats is the contributors view embedded in an AnalysisResult,
// degrading to an empty list + error code on upstream failure.
type ContributorStats struct {
	TopContributors []ContributorStat `json:"top_contributors"`
	Error           string            `json:"error,omitempty"`
}

// TechDebtFlags summarizes maintainability signals surfaced during analysis.
type TechDebtFlags struct {
	LongFunctions []ChunkRef `json:"long_functions"`
	TodoCount     int        `json:"todo_count"`
	MissingTests  []string   `json:"missing_tests"`
}

// ChunkRef is a lightweight pointer to a chunk used in tech-debt reporting.
type ChunkRef struct {
	ChunkID   string `json:"chunk_id"`
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// FileTreeEntry aggregates per-path chunk/line/language stats.
type FileTreeEntry struct {
	Chunks   int    `json:"chunks"`
	Lines    int    `json:"lines"`
	Language string `json:"language"`
}

// CodeChunk is a lexically and semantically indexed slice of source text.
type CodeChunk struct {
	ID            string    `db:"id" json:"id"`
	RepositoryID  string    `db:"repository_id" json:"repository_id"`
	Commit        string    `db:"commit_sha" json:"commit_sha"`
	Path          string    `db:"path" json:"path"`
	Language      string    `db:"language" json:"language"`
	StartLine     int       `db:"start_line" json:"start_line"`
	EndLine       int       `db:"end_line" json:"end_line"`
	Content       string    `db:"content" json:"content"`
	VectorPointID string    `db:"vector_point_id" json:"vector_point_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// ChatSession groups a sequence of question/answer turns scoped to a repository commit.
type ChatSession struct {
	ID           string    `db:"id" json:"id"`
	RepositoryID string    `db:"repository_id" json:"repository_id"`
	Commit       string    `db:"commit_sha" json:"commit_sha"`
	UserID       *string   `db:"user_id" json:"user_id,omitempty"`
	ShareTokenID *string   `db:"share_token_id" json:"share_token_id,omitempty"`
	Title        *string   `db:"title" json:"title,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Citation ties a claim in a chat answer back to a concrete chunk of source.
// Absence of any citation is communicated separately (see ChatService's
// MessageEvent.NoCitation), never by a sentinel element in a citations list.
type Citation struct {
	ChunkID   string  `json:"chunk_id"`
	Path      string  `json:"path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Anchor    string  `json:"anchor,omitempty"`
	Score     float64 `json:"score"`
}

// ChatMessage is a single turn (question or answer) within a ChatSession.
type ChatMessage struct {
	ID            string    `db:"id" json:"id"`
	SessionID     string    `db:"session_id" json:"session_id"`
	Role          string    `db:"role" json:"role"` // "user" or "assistant"
	Content       string    `db:"content" json:"content"`
	CitationsJSON string    `db:"citations_json" json:"citations_json,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// RefreshToken is a single-use rotating token backing the session cookie.
type RefreshToken struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	TokenHash string     `db:"token_hash" json:"-"`
	FamilyID  string     `db:"family_id" json:"family_id"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	UsedAt    *time.Time `db:"used_at" json:"used_at,omitempty"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// ShareToken records a minted, revocable, time-bounded link granting read access
// to a repository's analysis and chat history without requiring sign-in.
type ShareToken struct {
	ID           string     `db:"id" json:"id"`
	JTI          string     `db:"jti" json:"jti"`
	RepositoryID string     `db:"repository_id" json:"repository_id"`
	CreatedBy    string     `db:"created_by" json:"created_by"`
	ExpiresAt    time.Time  `db:"expires_at" json:"expires_at"`
	RevokedAt    *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// ApiKey is a long-lived credential (prefix "dlk_") for programmatic API access.
type ApiKey struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	Name       string     `db:"name" json:"name"`
	KeyHash    string     `db:"key_hash" json:"-"`
	KeyPrefix  string     `db:"key_prefix" json:"key_prefix"`
	KeyLast4   string     `db:"key_last4" json:"key_last4"`
	ExpiresAt  *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// DeadLetterJob preserves a terminally failed AnalysisJob's context for inspection.
type DeadLetterJob struct {
	ID           string    `db:"id" json:"id"`
	JobID        string    `db:"job_id" json:"job_id"`
	RepositoryID string    `db:"repository_id" json:"repository_id"`
	Commit       string    `db:"commit_sha" json:"commit_sha"`
	LastStatus   JobStatus `db:"last_status" json:"last_status"`
	ErrorCode    string    `db:"error_code" json:"error_code"`
	ErrorMessage string    `db:"error_message" json:"error_message"`
	RetryCount   int       `db:"retry_count" json:"retry_count"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
