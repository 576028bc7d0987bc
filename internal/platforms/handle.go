package platforms

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/jonathan/onboarding-survey/internal/survey"
	"github.com/jonathan/onboarding-survey/internal/types"
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,30}$`)

// profileURLs are the public profile pages of platforms without a lookup API.
var profileURLs = map[types.Platform]string{
	types.PlatformCodeSignal: "https://app.codesignal.com/profile/%s",
	types.PlatformHackerRank: "https://www.hackerrank.com/profile/%s",
}

// HandleConnector records a self-reported handle after a format check. It serves the
// platforms that offer no public profile API.
type HandleConnector struct {
	platform types.Platform
}

// NewHandleConnector returns a connector for CodeSignal or HackerRank.
func NewHandleConnector(p types.Platform) (*HandleConnector, error) {
	if _, ok := profileURLs[p]; !ok {
		return nil, fmt.Errorf("no handle connector for platform %q", p)
	}
	return &HandleConnector{platform: p}, nil
}

func (h *HandleConnector) Platform() types.Platform { return h.platform }

func (h *HandleConnector) Lookup(_ context.Context, username string) (types.PlatformConnection, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if !handlePattern.MatchString(username) {
		return types.PlatformConnection{}, &survey.HTTPError{
			Status:  http.StatusBadRequest,
			Message: "Usernames are 3-30 letters, digits, dots, dashes or underscores",
		}
	}
	return types.PlatformConnection{
		Username: username,
		UserID:   strings.ToLower(username),
		Profile: map[string]any{
			"url":      fmt.Sprintf(profileURLs[h.platform], username),
			"verified": false,
		},
	}, nil
}

// Default returns the standard connector set: GitHub through the API plus handle
// connectors for the rest.
func Default(gh GitHubOptions) ([]survey.PlatformConnector, error) {
	ghc, err := NewGitHubConnector(gh)
	if err != nil {
		return nil, err
	}
	out := []survey.PlatformConnector{ghc}
	for _, p := range []types.Platform{types.PlatformCodeSignal, types.PlatformHackerRank} {
		c, err := NewHandleConnector(p)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
