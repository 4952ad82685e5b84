package repository

import (
	"context"
	"fmt"
	"net/http"

	gitlab "gitlab.com/gitlab-org/api/client-go"
	"go.uber.org/zap"
)

const gitlabTreePageSize = 100

type gitlabProvider struct {
	client  *gitlab.Client
	project string
	logger  *zap.Logger
}

// NewGitLabFactory returns a factory for GitLab providers. An empty baseURL
// targets gitlab.com; self-managed instances pass their root URL.
func NewGitLabFactory(baseURL string, httpClient *http.Client, logger *zap.Logger) ProviderFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(repository, token string) (Provider, error) {
		owner, name, err := splitRepository(ProviderGitLab, repository)
		if err != nil {
			return nil, err
		}

		// Structural calls are retried by the indexer.
		opts := []gitlab.ClientOptionFunc{gitlab.WithCustomRetryMax(0)}
		if baseURL != "" {
			opts = append(opts, gitlab.WithBaseURL(baseURL))
		}
		if httpClient != nil {
			opts = append(opts, gitlab.WithHTTPClient(httpClient))
		}

		client, err := gitlab.NewOAuthClient(token, opts...)
		if err != nil {
			return nil, fmt.Errorf("create GitLab client: %w", err)
		}

		return &gitlabProvider{
			client:  client,
			project: owner + "/" + name,
			logger:  logger,
		}, nil
	}
}

func (p *gitlabProvider) ResolveDefaultBranch(ctx context.Context) (string, error) {
	project, _, err := p.client.Projects.GetProject(p.project, nil, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("get project: %w", err)
	}
	if project.DefaultBranch == "" {
		return "", fmt.Errorf("project has no default branch")
	}
	return project.DefaultBranch, nil
}

func (p *gitlabProvider) ListTree(ctx context.Context, branch string) ([]TreeEntry, error) {
	var entries []TreeEntry
	page := 1
	for {
		opt := &gitlab.ListTreeOptions{
			ListOptions: gitlab.ListOptions{PerPage: gitlabTreePageSize, Page: page},
			Ref:         gitlab.Ptr(branch),
			Recursive:   gitlab.Ptr(true),
		}
		nodes, resp, err := p.client.Repositories.ListTree(p.project, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("list tree page %d: %w", page, err)
		}

		for _, n := range nodes {
			if n.Type != "blob" {
				continue
			}
			entries = append(entries, TreeEntry{Path: n.Path, SHA: n.ID})
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		page = resp.NextPage
	}

	p.logger.Debug("listed GitLab tree",
		zap.String("project", p.project),
		zap.Int("blobs", len(entries)),
	)
	return entries, nil
}

func (p *gitlabProvider) FetchFileContent(ctx context.Context, branch string, entry TreeEntry) ([]byte, error) {
	raw, _, err := p.client.RepositoryFiles.GetRawFile(p.project, entry.Path,
		&gitlab.GetRawFileOptions{Ref: gitlab.Ptr(branch)},
		gitlab.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("get raw file %s: %w", entry.Path, err)
	}
	return raw, nil
}
