// Package git inspects local Git checkouts: which hosted repository the
// origin remote points at, and which branch is checked out.
package git

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

var (
	// ErrNotGitRepo indicates no repository was found at or above the path.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrNoOrigin indicates the repository has no usable origin remote.
	ErrNoOrigin = errors.New("origin remote not configured")

	// ErrUnknownHost indicates the remote host is neither GitHub nor GitLab.
	ErrUnknownHost = errors.New("remote host is not a known provider")
)

// Remote is a hosted repository parsed from a remote URL.
type Remote struct {
	// Provider is "github" or "gitlab".
	Provider string
	Host     string
	// Repository is the owner/name path, with nested groups for GitLab.
	Repository string
}

// ParseRemoteURL parses HTTPS, ssh:// and scp-style (git@host:path) remote
// URLs. Hosts containing "github" or "gitlab" select the provider, which
// covers Enterprise and self-managed instances with conventional names.
func ParseRemoteURL(raw string) (Remote, error) {
	raw = strings.TrimSpace(raw)
	var host, p string

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return Remote{}, fmt.Errorf("parse remote url: %w", err)
		}
		host, p = u.Hostname(), u.Path
	} else if at := strings.Index(raw, "@"); at >= 0 && strings.Contains(raw[at:], ":") {
		rest := raw[at+1:]
		colon := strings.Index(rest, ":")
		host, p = rest[:colon], rest[colon+1:]
	} else {
		return Remote{}, fmt.Errorf("unrecognized remote url %q", raw)
	}

	p = strings.TrimSuffix(strings.Trim(p, "/"), ".git")
	if strings.Count(p, "/") < 1 {
		return Remote{}, fmt.Errorf("remote url %q has no owner/name path", raw)
	}

	r := Remote{Host: host, Repository: p}
	switch lower := strings.ToLower(host); {
	case strings.Contains(lower, "github"):
		r.Provider = "github"
	case strings.Contains(lower, "gitlab"):
		r.Provider = "gitlab"
	default:
		return r, fmt.Errorf("%w: %s", ErrUnknownHost, host)
	}
	return r, nil
}

func open(path string) (*gogit.Repository, error) {
	repo, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: %s", ErrNotGitRepo, path)
	}
	return repo, err
}

// DetectRemote parses the origin remote of the repository containing path.
func DetectRemote(path string) (Remote, error) {
	repo, err := open(path)
	if err != nil {
		return Remote{}, err
	}

	origin, err := repo.Remote("origin")
	if err != nil {
		return Remote{}, fmt.Errorf("%w: %v", ErrNoOrigin, err)
	}
	urls := origin.Config().URLs
	if len(urls) == 0 {
		return Remote{}, ErrNoOrigin
	}
	return ParseRemoteURL(urls[0])
}

// DetectBranch returns the checked-out branch of the repository containing
// path, or "detached" when HEAD points at a commit. Unborn branches (no
// commits yet) are reported by name.
func DetectBranch(path string) (string, error) {
	repo, err := open(path)
	if err != nil {
		return "", err
	}

	head, err := repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	if head.Type() == plumbing.SymbolicReference && head.Target().IsBranch() {
		return head.Target().Short(), nil
	}
	return "detached", nil
}
