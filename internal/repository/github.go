package repository

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type githubProvider struct {
	client *github.Client
	owner  string
	name   string
	logger *zap.Logger
}

// NewGitHubFactory returns a factory for GitHub providers. An empty baseURL
// targets api.github.com; Enterprise installs pass their API root
// (https://ghe.example.com/api/v3/).
func NewGitHubFactory(baseURL string, httpClient *http.Client, logger *zap.Logger) ProviderFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(repository, token string) (Provider, error) {
		owner, name, err := splitRepository(ProviderGitHub, repository)
		if err != nil {
			return nil, err
		}

		ctx := context.Background()
		if httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		}
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		client := github.NewClient(oauth2.NewClient(ctx, ts))

		if baseURL != "" {
			u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
			if err != nil {
				return nil, fmt.Errorf("invalid GitHub base URL: %w", err)
			}
			client.BaseURL = u
		}

		return &githubProvider{
			client: client,
			owner:  owner,
			name:   name,
			logger: logger,
		}, nil
	}
}

func (p *githubProvider) ResolveDefaultBranch(ctx context.Context) (string, error) {
	repo, _, err := p.client.Repositories.Get(ctx, p.owner, p.name)
	if err != nil {
		return "", fmt.Errorf("get repository: %w", err)
	}
	branch := repo.GetDefaultBranch()
	if branch == "" {
		return "", fmt.Errorf("repository has no default branch")
	}
	return branch, nil
}

func (p *githubProvider) ListTree(ctx context.Context, branch string) ([]TreeEntry, error) {
	ref, _, err := p.client.Git.GetRef(ctx, p.owner, p.name, "heads/"+branch)
	if err != nil {
		return nil, fmt.Errorf("get ref heads/%s: %w", branch, err)
	}
	sha := ref.GetObject().GetSHA()

	tree, _, err := p.client.Git.GetTree(ctx, p.owner, p.name, sha, true)
	if err != nil {
		return nil, fmt.Errorf("get tree %s: %w", sha, err)
	}
	if tree.GetTruncated() {
		p.logger.Warn("GitHub tree listing truncated",
			zap.String("repository", p.owner+"/"+p.name),
			zap.Int("entries", len(tree.Entries)),
		)
	}

	entries := make([]TreeEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		if e.GetType() != "blob" {
			continue
		}
		entries = append(entries, TreeEntry{
			Path: e.GetPath(),
			SHA:  e.GetSHA(),
			Size: int64(e.GetSize()),
		})
	}
	return entries, nil
}

func (p *githubProvider) FetchFileContent(ctx context.Context, _ string, entry TreeEntry) ([]byte, error) {
	blob, _, err := p.client.Git.GetBlob(ctx, p.owner, p.name, entry.SHA)
	if err != nil {
		return nil, fmt.Errorf("get blob %s: %w", entry.Path, err)
	}

	switch enc := blob.GetEncoding(); enc {
	case "base64":
		// GitHub wraps base64 content at 60 columns.
		raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(blob.GetContent(), "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("decode blob %s: %w", entry.Path, err)
		}
		return raw, nil
	case "utf-8", "":
		return []byte(blob.GetContent()), nil
	default:
		return nil, fmt.Errorf("blob %s: unsupported encoding %q", entry.Path, enc)
	}
}
