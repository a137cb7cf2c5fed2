package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/oauth2"
	ghoauth "golang.org/x/oauth2/github"

	"github.com/jmylchreest/devlens/internal/config"
	"github.com/jmylchreest/devlens/internal/crypto"
	"github.com/jmylchreest/devlens/internal/githubclient"
	"github.com/jmylchreest/devlens/internal/models"
	"github.com/jmylchreest/devlens/internal/repository"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrOriginMismatch   = errors.New("origin mismatch")
	ErrCSRFMismatch     = errors.New("csrf token mismatch")
	ErrRefreshNotFound  = errors.New("refresh token not found")
	ErrRefreshRevoked   = errors.New("refresh token revoked")
)

// AuthService drives the GitHub OAuth round trip and the refresh-token
// rotation that backs the session cookie, grounded on the spec's
// "Auth flow" state machine rather than any third-party identity provider.
type AuthService struct {
	cfg        *config.Config
	repos      *repository.Repositories
	logger     *slog.Logger
	tokens     *crypto.TokenIssuer
	encryptor  *crypto.Encryptor
	oauthConf  *oauth2.Config
}

func NewAuthService(cfg *config.Config, repos *repository.Repositories, logger *slog.Logger) (*AuthService, error) {
	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("build encryptor: %w", err)
	}
	return &AuthService{
		cfg:       cfg,
		repos:     repos,
		logger:    logger,
		tokens:    crypto.NewTokenIssuer(cfg.JWTSecret),
		encryptor: encryptor,
		oauthConf: &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubOAuthRedirectURI,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     ghoauth.Endpoint,
		},
	}, nil
}

// AuthorizeURL returns the provider authorization URL and the signed state
// parameter to round-trip, binding the post-login redirect path.
func (s *AuthService) AuthorizeURL(next string) (redirectURL, state string) {
	if !strings.HasPrefix(next, "/") {
		next = "/"
	}
	state = crypto.SignOAuthState(s.cfg.JWTSecret, next, time.Now().UTC())
	return s.oauthConf.AuthCodeURL(state), state
}

// SessionTokens is everything the callback/refresh handlers need to set as
// cookies and return in the response body.
type SessionTokens struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
	CSRFToken    string
	NextPath     string
}

// HandleCallback exchanges the authorization code, resolves the GitHub
// profile, upserts the local user (encrypting the provider access token at
// rest), and mints a fresh session.
func (s *AuthService) HandleCallback(ctx context.Context, code, state string) (*SessionTokens, error) {
	nextPath, err := crypto.VerifyOAuthState(s.cfg.JWTSecret, state, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("invalid oauth state: %w", err)
	}

	providerToken, err := s.oauthConf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange oauth code: %w", err)
	}

	gh := githubclient.New(ctx, providerToken.AccessToken)
	profile, err := gh.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch github profile: %w", err)
	}

	encryptedAccess, err := s.encryptor.Encrypt(providerToken.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt provider token: %w", err)
	}

	user, err := s.repos.Users.GetByGitHubID(ctx, profile.ID)
	now := time.Now().UTC()
	switch {
	case errors.Is(err, repository.ErrNotFound):
		user = &models.User{
			ID:              ulid.Make().String(),
			GitHubID:        profile.ID,
			GitHubLogin:     profile.Login,
			Email:           profile.Email,
			AvatarURL:       profile.AvatarURL,
			EncryptedAccess: encryptedAccess,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.repos.Users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("lookup user: %w", err)
	default:
		user.GitHubLogin = profile.Login
		user.Email = profile.Email
		user.AvatarURL = profile.AvatarURL
		user.EncryptedAccess = encryptedAccess
		user.UpdatedAt = now
		if err := s.repos.Users.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
	}

	session, err := s.issueSession(ctx, user, "")
	if err != nil {
		return nil, err
	}
	session.NextPath = nextPath
	return session, nil
}

// issueSession mints an access token plus a fresh refresh+CSRF pair and
// persists the refresh row. An empty familyID starts a new token family;
// a rotation passes the old row's family so reuse detection can revoke it.
func (s *AuthService) issueSession(ctx context.Context, user *models.User, familyID string) (*SessionTokens, error) {
	if familyID == "" {
		familyID = ulid.Make().String()
	}
	accessToken, err := s.tokens.MintAccessToken(user.ID, s.cfg.JWTAccessTTL)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}

	refreshRaw, refreshHash, err := crypto.GenerateRefreshSecret()
	if err != nil {
		return nil, fmt.Errorf("generate refresh secret: %w", err)
	}
	csrfToken, err := crypto.GenerateCSRFToken()
	if err != nil {
		return nil, fmt.Errorf("generate csrf token: %w", err)
	}

	now := time.Now().UTC()
	row := &models.RefreshToken{
		ID:        ulid.Make().String(),
		UserID:    user.ID,
		TokenHash: refreshHash,
		FamilyID:  familyID,
		ExpiresAt: now.Add(s.cfg.JWTRefreshTTL),
		CreatedAt: now,
	}
	if err := s.repos.RefreshTokens.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}

	return &SessionTokens{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshRaw,
		CSRFToken:    csrfToken,
	}, nil
}

// CheckOrigin validates the Origin header (falling back to Referer) against
// the configured frontend URL, the first of the two state-mutating gates
// every /refresh and /logout call must pass.
func (s *AuthService) CheckOrigin(origin, referer string) error {
	candidate := origin
	if candidate == "" {
		candidate = referer
	}
	if candidate == "" {
		return ErrOriginMismatch
	}
	u, err := url.Parse(candidate)
	if err != nil {
		return ErrOriginMismatch
	}
	front, err := url.Parse(s.cfg.FrontendURL)
	if err != nil {
		return ErrOriginMismatch
	}
	if !strings.EqualFold(u.Scheme, front.Scheme) || !strings.EqualFold(u.Host, front.Host) {
		return ErrOriginMismatch
	}
	return nil
}

// CheckCSRF performs the double-submit comparison between the CSRF cookie
// and the x-csrf-token header.
func (s *AuthService) CheckCSRF(cookie, header string) error {
	if cookie == "" || header == "" || !crypto.ConstantTimeEqual(cookie, header) {
		return ErrCSRFMismatch
	}
	return nil
}

// Refresh rotates a presented refresh token: the old row is marked used and
// a new refresh+CSRF pair plus access token are issued in the same family.
// Presenting a used token again revokes that family. The rotation happens
// unconditionally so a stolen-and-replayed old token is rejected by the
// single-use check on its next use.
func (s *AuthService) Refresh(ctx context.Context, refreshRaw string) (*SessionTokens, error) {
	hash := crypto.HashToken(refreshRaw)
	row, err := s.repos.RefreshTokens.GetByHash(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRefreshNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	now := time.Now().UTC()
	if row.RevokedAt != nil {
		return nil, ErrRefreshRevoked
	}
	if row.UsedAt != nil {
		// Reuse of an already-rotated token signals theft: burn the whole family.
		_ = s.repos.RefreshTokens.RevokeFamily(ctx, row.FamilyID)
		return nil, ErrRefreshRevoked
	}
	if now.After(row.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	if err := s.repos.RefreshTokens.MarkUsed(ctx, row.ID, now); err != nil {
		return nil, fmt.Errorf("mark refresh token used: %w", err)
	}

	user, err := s.repos.Users.GetByID(ctx, row.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup refresh token owner: %w", err)
	}
	return s.issueSession(ctx, user, row.FamilyID)
}

// Logout best-effort revokes the presented refresh token's family; callers
// clear cookies regardless of whether the row still existed.
func (s *AuthService) Logout(ctx context.Context, refreshRaw string) error {
	row, err := s.repos.RefreshTokens.GetByHash(ctx, crypto.HashToken(refreshRaw))
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup refresh token: %w", err)
	}
	return s.repos.RefreshTokens.RevokeFamily(ctx, row.FamilyID)
}

// ParseBearer validates an access token and returns the subject user id.
func (s *AuthService) ParseBearer(raw string) (string, error) {
	userID, err := s.tokens.ParseAccessToken(raw)
	if err != nil {
		return "", ErrInvalidToken
	}
	return userID, nil
}

// Me returns the authenticated user's profile.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	return s.repos.Users.GetByID(ctx, userID)
}
