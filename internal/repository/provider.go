package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// Provider walks and reads one repository on a hosting service.
type Provider interface {
	// ResolveDefaultBranch returns the repository's default branch name.
	ResolveDefaultBranch(ctx context.Context) (string, error)

	// ListTree returns every blob reachable from branch, recursively.
	ListTree(ctx context.Context, branch string) ([]TreeEntry, error)

	// FetchFileContent returns the decoded bytes of one blob.
	FetchFileContent(ctx context.Context, branch string, entry TreeEntry) ([]byte, error)
}

// ProviderFactory builds a Provider for a repository and access token.
type ProviderFactory func(repository, token string) (Provider, error)

// splitRepository validates "owner/name". GitLab allows nested groups.
func splitRepository(kind Kind, repository string) (string, string, error) {
	repository = strings.Trim(strings.TrimSpace(repository), "/")
	parts := strings.Split(repository, "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("%w: %q (expected owner/name)", ErrInvalidRepository, repository)
	}
	for _, p := range parts {
		if p == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidRepository, repository)
		}
	}
	if kind == ProviderGitHub && len(parts) != 2 {
		return "", "", fmt.Errorf("%w: %q (expected owner/name)", ErrInvalidRepository, repository)
	}
	name := parts[len(parts)-1]
	owner := strings.Join(parts[:len(parts)-1], "/")
	return owner, name, nil
}

// isRetryable classifies provider errors for structural calls. Client errors
// other than rate limiting are permanent.
func isRetryable(err error) bool {
	if errors.Is(err, ErrInvalidRepository) {
		return false
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return retryableStatus(ghErr.Response.StatusCode)
	}

	var glErr *gitlab.ErrorResponse
	if errors.As(err, &glErr) && glErr.Response != nil {
		return retryableStatus(glErr.Response.StatusCode)
	}

	return true
}

func retryableStatus(code int) bool {
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return true
	case code >= 400 && code < 500:
		return false
	default:
		return true
	}
}
