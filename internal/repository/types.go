package repository

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/repolens/internal/chunking"
)

// Kind selects the hosting provider.
type Kind string

const (
	ProviderGitHub Kind = "github"
	ProviderGitLab Kind = "gitlab"
)

// ParseKind converts a provider name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case ProviderGitHub, ProviderGitLab:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, s)
	}
}

// IndexRequest identifies the repository to index.
type IndexRequest struct {
	// Repository is "owner/name" (GitLab also accepts nested groups).
	Repository string

	// Token is the provider access token. It is never logged.
	Token string

	Provider Kind

	// RunID correlates progress events. Generated when empty.
	RunID string
}

// IndexResult is the outcome of one indexing run.
type IndexResult struct {
	RunID        string
	Repository   string
	Provider     Kind
	Branch       string
	Corpus       *Corpus
	FilesTotal   int
	FilesIndexed int
	FilesSkipped int
	IndexedAt    time.Time
}

// TreeEntry is a file (blob) in a repository tree.
type TreeEntry struct {
	Path string
	SHA  string
	Size int64
}

// Corpus maps file paths to decoded text content. It is immutable once
// returned from Index.
type Corpus struct {
	files map[string]string
}

// NewCorpus copies files into a Corpus.
func NewCorpus(files map[string]string) *Corpus {
	c := &Corpus{files: make(map[string]string, len(files))}
	for p, content := range files {
		c.files[p] = content
	}
	return c
}

// Len returns the number of files.
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.files)
}

// Get returns the content at path.
func (c *Corpus) Get(path string) (string, bool) {
	if c == nil {
		return "", false
	}
	content, ok := c.files[path]
	return content, ok
}

// Paths returns all paths in lexical order.
func (c *Corpus) Paths() []string {
	if c == nil {
		return nil
	}
	paths := make([]string, 0, len(c.files))
	for p := range c.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Files returns the corpus as file records sorted by path, with a detected
// language, ready for chunking.
func (c *Corpus) Files() []chunking.FileRecord {
	paths := c.Paths()
	records := make([]chunking.FileRecord, len(paths))
	for i, p := range paths {
		records[i] = chunking.FileRecord{
			Path:     p,
			Content:  c.files[p],
			Language: chunking.DetectLanguage(p),
		}
	}
	return records
}
