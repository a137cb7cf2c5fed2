package service

import (
	"context"
	"sync"
	"time"

	"github.com/jmylchreest/devlens/internal/models"
	"github.com/jmylchreest/devlens/internal/repository"
)

// The fakes below are minimal in-memory stand-ins for the repository
// interfaces, enough to exercise the service layer's branching without a
// real database. They're not meant to model concurrency correctness, just
// the lookup semantics the services depend on.

type fakeUserRepo struct {
	mu       sync.Mutex
	byID     map[string]*models.User
	byGithub map[int64]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: map[string]*models.User{}, byGithub: map[int64]*models.User{}}
}

func (f *fakeUserRepo) Create(ctx context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *u
	f.byID[u.ID] = &cp
	f.byGithub[u.GitHubID] = &cp
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) GetByGitHubID(ctx context.Context, githubID int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byGithub[githubID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) Update(ctx context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *u
	f.byID[u.ID] = &cp
	f.byGithub[u.GitHubID] = &cp
	return nil
}

type fakeRefreshTokenRepo struct {
	mu     sync.Mutex
	byHash map[string]*models.RefreshToken
}

func newFakeRefreshTokenRepo() *fakeRefreshTokenRepo {
	return &fakeRefreshTokenRepo{byHash: map[string]*models.RefreshToken{}}
}

func (f *fakeRefreshTokenRepo) Create(ctx context.Context, t *models.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.byHash[t.TokenHash] = &cp
	return nil
}

func (f *fakeRefreshTokenRepo) GetByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byHash[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeRefreshTokenRepo) MarkUsed(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.byHash {
		if t.ID == id {
			t.UsedAt = &at
		}
	}
	return nil
}

func (f *fakeRefreshTokenRepo) RevokeFamily(ctx context.Context, familyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	for _, t := range f.byHash {
		if t.FamilyID == familyID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

type fakeApiKeyRepo struct {
	mu     sync.Mutex
	byID   map[string]*models.ApiKey
	byHash map[string]*models.ApiKey
}

func newFakeApiKeyRepo() *fakeApiKeyRepo {
	return &fakeApiKeyRepo{byID: map[string]*models.ApiKey{}, byHash: map[string]*models.ApiKey{}}
}

func (f *fakeApiKeyRepo) Create(ctx context.Context, k *models.ApiKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *k
	f.byID[k.ID] = &cp
	f.byHash[k.KeyHash] = &cp
	return nil
}

func (f *fakeApiKeyRepo) GetByHash(ctx context.Context, hash string) (*models.ApiKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.byHash[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *k
	return &cp, nil
}

func (f *fakeApiKeyRepo) ListByUser(ctx context.Context, userID string) ([]*models.ApiKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ApiKey
	for _, k := range f.byID {
		if k.UserID == userID {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeApiKeyRepo) Revoke(ctx context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.byID[id]
	if !ok || k.UserID != userID {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	k.RevokedAt = &now
	return nil
}

func (f *fakeApiKeyRepo) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if k, ok := f.byID[id]; ok {
		k.LastUsedAt = &at
	}
	return nil
}

type fakeRepositoryRepo struct {
	mu      sync.Mutex
	byID    map[string]*models.Repository
	byURL   map[string]*models.Repository
}

func newFakeRepositoryRepo() *fakeRepositoryRepo {
	return &fakeRepositoryRepo{byID: map[string]*models.Repository{}, byURL: map[string]*models.Repository{}}
}

func (f *fakeRepositoryRepo) Upsert(ctx context.Context, r *models.Repository) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.byURL[r.CanonicalURL]; ok {
		r.ID = existing.ID
	}
	cp := *r
	f.byID[r.ID] = &cp
	f.byURL[r.CanonicalURL] = &cp
	return nil
}

func (f *fakeRepositoryRepo) GetByID(ctx context.Context, id string) (*models.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRepositoryRepo) GetByCanonicalURL(ctx context.Context, url string) (*models.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byURL[url]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRepositoryRepo) MarkAnalyzed(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.byID[id]; ok {
		r.LastAnalyzedAt = &at
	}
	return nil
}

type fakeJobRepo struct {
	mu   sync.Mutex
	byID map[string]*models.AnalysisJob
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{byID: map[string]*models.AnalysisJob{}}
}

func (f *fakeJobRepo) Create(ctx context.Context, j *models.AnalysisJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *j
	f.byID[j.ID] = &cp
	return nil
}

func (f *fakeJobRepo) GetByID(ctx context.Context, id string) (*models.AnalysisJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobRepo) GetLatestByIdempotencyKey(ctx context.Context, repoID, commit, key string) (*models.AnalysisJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.AnalysisJob
	for _, j := range f.byID {
		if j.RepositoryID != repoID || j.Commit != commit || j.IdempotencyKey == nil || *j.IdempotencyKey != key {
			continue
		}
		if latest == nil || j.CreatedAt.After(latest.CreatedAt) {
			latest = j
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeJobRepo) GetLatestActiveOrDone(ctx context.Context, repoID, commit string) (*models.AnalysisJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.AnalysisJob
	for _, j := range f.byID {
		if j.RepositoryID != repoID || j.Commit != commit {
			continue
		}
		if j.Status == models.JobStatusFailed {
			continue
		}
		if latest == nil || j.CreatedAt.After(latest.CreatedAt) {
			latest = j
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeJobRepo) GetLatestByRepository(ctx context.Context, repoID string) (*models.AnalysisJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.AnalysisJob
	for _, j := range f.byID {
		if j.RepositoryID != repoID {
			continue
		}
		if latest == nil || j.CreatedAt.After(latest.CreatedAt) {
			latest = j
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeJobRepo) ClaimNext(ctx context.Context, fromStatus, toStatus models.JobStatus) (*models.AnalysisJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	var earliest *models.AnalysisJob
	for _, j := range f.byID {
		if j.Status != fromStatus {
			continue
		}
		if j.ClaimedAt != nil {
			continue
		}
		if j.NextRetryAt != nil && j.NextRetryAt.After(now) {
			continue
		}
		if earliest == nil || j.CreatedAt.Before(earliest.CreatedAt) {
			earliest = j
		}
	}
	if earliest == nil {
		return nil, nil
	}
	earliest.Status = toStatus
	earliest.ClaimedAt = &now
	earliest.UpdatedAt = now
	cp := *earliest
	return &cp, nil
}

func (f *fakeJobRepo) UpdateProgress(ctx context.Context, id string, progress int, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.byID[id]; ok {
		j.Progress = progress
		j.ProgressDetail = detail
	}
	return nil
}

func (f *fakeJobRepo) AdvanceStage(ctx context.Context, id string, next models.JobStatus, progress int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	j.Status = next
	j.Progress = progress
	j.RetryCount = 0
	j.NextRetryAt = nil
	j.ErrorCode = ""
	j.ErrorMessage = ""
	j.ClaimedAt = nil
	now := time.Now().UTC()
	j.UpdatedAt = now
	if next.IsTerminal() {
		j.CompletedAt = &now
	}
	return nil
}

func (f *fakeJobRepo) MarkRetry(ctx context.Context, id string, fromStatus models.JobStatus, errorCode, errorMessage string, retryCount int, nextRetryAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	j.Status = fromStatus
	j.ClaimedAt = nil
	j.ErrorCode = errorCode
	j.ErrorMessage = errorMessage
	j.RetryCount = retryCount
	j.NextRetryAt = &nextRetryAt
	return nil
}

func (f *fakeJobRepo) MarkFailed(ctx context.Context, id string, errorCode, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	j.Status = models.JobStatusFailed
	j.Progress = 100
	j.ErrorCode = errorCode
	j.ErrorMessage = errorMessage
	j.CompletedAt = &now
	j.UpdatedAt = now
	j.NextRetryAt = nil
	j.ClaimedAt = nil
	return nil
}

func (f *fakeJobRepo) MarkDone(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	j.Status = models.JobStatusDone
	j.Progress = 100
	j.CompletedAt = &now
	j.UpdatedAt = now
	j.ClaimedAt = nil
	return nil
}

type fakeResultRepo struct {
	mu        sync.Mutex
	byJobID   map[string]*models.AnalysisResult
	byCacheKey map[string]*models.AnalysisResult
}

func newFakeResultRepo() *fakeResultRepo {
	return &fakeResultRepo{byJobID: map[string]*models.AnalysisResult{}, byCacheKey: map[string]*models.AnalysisResult{}}
}

func (f *fakeResultRepo) Upsert(ctx context.Context, r *models.AnalysisResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	f.byJobID[r.JobID] = &cp
	f.byCacheKey[r.CacheKey] = &cp
	return nil
}

func (f *fakeResultRepo) GetLatestByRepository(ctx context.Context, repoID string) (*models.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.AnalysisResult
	for _, r := range f.byJobID {
		if r.RepositoryID != repoID {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeResultRepo) GetByJobID(ctx context.Context, jobID string) (*models.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byJobID[jobID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

type fakeShareTokenRepo struct {
	mu    sync.Mutex
	byID  map[string]*models.ShareToken
	byJTI map[string]*models.ShareToken
}

func newFakeShareTokenRepo() *fakeShareTokenRepo {
	return &fakeShareTokenRepo{byID: map[string]*models.ShareToken{}, byJTI: map[string]*models.ShareToken{}}
}

func (f *fakeShareTokenRepo) Create(ctx context.Context, t *models.ShareToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.byID[t.ID] = &cp
	f.byJTI[t.JTI] = &cp
	return nil
}

func (f *fakeShareTokenRepo) GetByJTI(ctx context.Context, jti string) (*models.ShareToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byJTI[jti]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeShareTokenRepo) Revoke(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	t.RevokedAt = &now
	if jtiTok, ok := f.byJTI[t.JTI]; ok {
		jtiTok.RevokedAt = &now
	}
	return nil
}

type fakeChatRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.ChatSession
	messages map[string][]*models.ChatMessage
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{sessions: map[string]*models.ChatSession{}, messages: map[string][]*models.ChatMessage{}}
}

func (f *fakeChatRepo) CreateSession(ctx context.Context, s *models.ChatSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeChatRepo) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeChatRepo) AppendMessage(ctx context.Context, m *models.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *m
	f.messages[m.SessionID] = append(f.messages[m.SessionID], &cp)
	return nil
}

func (f *fakeChatRepo) GetMessages(ctx context.Context, sessionID string) ([]*models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[sessionID], nil
}

func newFakeRepositories() *repository.Repositories {
	return &repository.Repositories{
		Users:         newFakeUserRepo(),
		Repos:         newFakeRepositoryRepo(),
		Jobs:          newFakeJobRepo(),
		Results:       newFakeResultRepo(),
		Chats:         newFakeChatRepo(),
		RefreshTokens: newFakeRefreshTokenRepo(),
		ShareTokens:   newFakeShareTokenRepo(),
		ApiKeys:       newFakeApiKeyRepo(),
	}
}
