// Package platforms looks up candidate profiles on external coding platforms.
package platforms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v58/github"

	"github.com/jonathan/onboarding-survey/internal/survey"
	"github.com/jonathan/onboarding-survey/internal/types"
)

var githubLogin = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9]|-[A-Za-z0-9]){0,38}$`)

// GitHubConnector resolves GitHub usernames through the REST API.
type GitHubConnector struct {
	client *github.Client
}

// GitHubOptions configures NewGitHubConnector. All fields are optional.
type GitHubOptions struct {
	Token      string
	BaseURL    string // API root, for GitHub Enterprise or tests
	HTTPClient *http.Client
}

// NewGitHubConnector builds a connector. Anonymous access works but is rate limited.
func NewGitHubConnector(opts GitHubOptions) (*GitHubConnector, error) {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	client := github.NewClient(hc)
	if opts.Token != "" {
		client = client.WithAuthToken(opts.Token)
	}
	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid github base url: %w", err)
		}
		client.BaseURL = u
	}
	return &GitHubConnector{client: client}, nil
}

func (g *GitHubConnector) Platform() types.Platform { return types.PlatformGitHub }

// Lookup fetches the public profile for username.
func (g *GitHubConnector) Lookup(ctx context.Context, username string) (types.PlatformConnection, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if !githubLogin.MatchString(username) {
		return types.PlatformConnection{}, &survey.HTTPError{
			Status:  http.StatusBadRequest,
			Message: "Enter a valid GitHub username",
		}
	}

	user, _, err := g.client.Users.Get(ctx, username)
	if err != nil {
		return types.PlatformConnection{}, classifyGitHubError(username, err)
	}

	return types.PlatformConnection{
		Username: user.GetLogin(),
		UserID:   strconv.FormatInt(user.GetID(), 10),
		Avatar:   user.GetAvatarURL(),
		Profile: map[string]any{
			"name":         user.GetName(),
			"url":          user.GetHTMLURL(),
			"bio":          user.GetBio(),
			"public_repos": user.GetPublicRepos(),
			"followers":    user.GetFollowers(),
			"following":    user.GetFollowing(),
			"created_at":   user.GetCreatedAt().Format(time.RFC3339),
		},
	}, nil
}

func classifyGitHubError(username string, err error) error {
	var (
		rateErr  *github.RateLimitError
		abuseErr *github.AbuseRateLimitError
		respErr  *github.ErrorResponse
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &survey.TimeoutError{Operation: "github lookup", Cause: err}
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		return &survey.HTTPError{
			Status:  http.StatusTooManyRequests,
			Message: "GitHub is rate limiting requests. Please try again later.",
		}
	case errors.As(err, &respErr) && respErr.Response != nil:
		status := respErr.Response.StatusCode
		if status == http.StatusNotFound {
			return &survey.HTTPError{Status: status, Message: fmt.Sprintf("GitHub user %q not found", username)}
		}
		if status >= 500 {
			return &survey.ServerError{Status: status, Message: respErr.Message}
		}
		return &survey.HTTPError{Status: status, Message: respErr.Message}
	}
	return fmt.Errorf("github lookup failed: %w", err)
}
