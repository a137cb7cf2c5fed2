// Package githubclient wraps google/go-github for the metadata, head-commit,
// and contributor lookups devlens needs, grounded on the Repositories and
// Commits service calls used elsewhere in the example pack's GitHub
// automation code.
package githubclient

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
)

// Client wraps *github.Client with the narrow surface devlens calls.
type Client struct {
	gh *github.Client
}

// New builds an unauthenticated client (subject to GitHub's anonymous rate
// limit) or, when token is non-empty, one authenticated as the user whose
// OAuth token was cached on their account row.
func New(ctx context.Context, token string) *Client {
	if token == "" {
		return &Client{gh: github.NewClient(http.DefaultClient)}
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Client{gh: github.NewClient(oauth2.NewClient(ctx, ts))}
}

// RepoMetadata is the subset of repository fields devlens persists.
type RepoMetadata struct {
	Owner         string
	Name          string
	DefaultBranch string
	Description   string
	Language      string
	Stars         int
	Forks         int
	SizeKB        int
}

// Contributor is a best-effort per-author commit tally.
type Contributor struct {
	Login   string
	Commits int
}

var githubURLPattern = regexp.MustCompile(`^https?://github\.com/([^/]+)/([^/]+?)(?:\.git)?/?$`)

// ParseCanonicalURL extracts owner/name from a github.com URL, trimming a
// trailing .git the way a clone URL and a browser URL both resolve to the
// same canonical repository identity.
func ParseCanonicalURL(url string) (owner, name string, err error) {
	m := githubURLPattern.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return "", "", fmt.Errorf("not a recognized github repository url: %s", url)
	}
	return m[1], m[2], nil
}

// AuthenticatedUser is the subset of a GitHub account devlens persists on
// first sign-in.
type AuthenticatedUser struct {
	ID        int64
	Login     string
	Email     string
	AvatarURL string
}

// CurrentUser fetches the profile of the user the client is authenticated
// as, used once on the OAuth callback to populate the local account row.
func (c *Client) CurrentUser(ctx context.Context) (AuthenticatedUser, error) {
	user, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return AuthenticatedUser{}, fmt.Errorf("fetch authenticated user: %w", err)
	}
	return AuthenticatedUser{
		ID:        user.GetID(),
		Login:     user.GetLogin(),
		Email:     user.GetEmail(),
		AvatarURL: user.GetAvatarURL(),
	}, nil
}

// GetRepository fetches repository metadata.
func (c *Client) GetRepository(ctx context.Context, owner, name string) (RepoMetadata, error) {
	repo, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return RepoMetadata{}, fmt.Errorf("fetch repository %s/%s: %w", owner, name, err)
	}
	return RepoMetadata{
		Owner:         owner,
		Name:          name,
		DefaultBranch: repo.GetDefaultBranch(),
		Description:   repo.GetDescription(),
		Language:      repo.GetLanguage(),
		Stars:         repo.GetStargazersCount(),
		Forks:         repo.GetForksCount(),
		SizeKB:        repo.GetSize(),
	}, nil
}

// GetHeadCommit resolves the current HEAD SHA of the repository's default branch.
func (c *Client) GetHeadCommit(ctx context.Context, owner, name, branch string) (string, error) {
	ref, _, err := c.gh.Git.GetRef(ctx, owner, name, "refs/heads/"+branch)
	if err != nil {
		return "", fmt.Errorf("resolve head commit for %s/%s@%s: %w", owner, name, branch, err)
	}
	return ref.Object.GetSHA(), nil
}

// TopContributors returns up to limit contributors ranked by commit count.
// On upstream failure it returns an error the caller degrades into the
// ContributorStats.Error field rather than failing the whole analysis.
func (c *Client) TopContributors(ctx context.Context, owner, name string, limit int) ([]Contributor, error) {
	contributors, _, err := c.gh.Repositories.ListContributors(ctx, owner, name, &github.ListContributorsOptions{
		ListOptions: github.ListOptions{PerPage: limit},
	})
	if err != nil {
		return nil, fmt.Errorf("list contributors for %s/%s: %w", owner, name, err)
	}
	out := make([]Contributor, 0, len(contributors))
	for _, contrib := range contributors {
		out = append(out, Contributor{Login: contrib.GetLogin(), Commits: contrib.GetContributions()})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
