package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakeGitHub serves the subset of the GitHub REST API the indexer uses.
func newFakeGitHub(t *testing.T, files map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var treeCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/cat", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))
		writeJSON(w, map[string]interface{}{"full_name": "octo/cat", "default_branch": "trunk"})
	})
	mux.HandleFunc("/repos/octo/cat/git/ref/heads/trunk", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"ref":    "refs/heads/trunk",
			"object": map[string]string{"sha": "commit-sha", "type": "commit"},
		})
	})
	mux.HandleFunc("/repos/octo/cat/git/trees/commit-sha", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		if treeCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			writeJSON(w, map[string]string{"message": "try again"})
			return
		}
		entries := []map[string]interface{}{
			{"path": "cmd", "type": "tree", "sha": "tree-cmd"},
			{"path": "vendored-module", "type": "commit", "sha": "submodule"},
		}
		for p, content := range files {
			entries = append(entries, map[string]interface{}{"path": p, "type": "blob", "sha": "blob-" + p, "size": len(content)})
		}
		writeJSON(w, map[string]interface{}{"sha": "commit-sha", "tree": entries, "truncated": false})
	})
	mux.HandleFunc("/repos/octo/cat/git/blobs/", func(w http.ResponseWriter, r *http.Request) {
		p := strings.TrimPrefix(r.URL.Path, "/repos/octo/cat/git/blobs/blob-")
		content, ok := files[p]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]string{"message": "Not Found"})
			return
		}
		// Mimic GitHub's 60-column line wrapping.
		enc := base64.StdEncoding.EncodeToString([]byte(content))
		var wrapped strings.Builder
		for len(enc) > 60 {
			wrapped.WriteString(enc[:60] + "\n")
			enc = enc[60:]
		}
		wrapped.WriteString(enc)
		writeJSON(w, map[string]string{"sha": "blob-" + p, "encoding": "base64", "content": wrapped.String()})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &treeCalls
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestGitHubProvider_Index(t *testing.T) {
	long := strings.Repeat("// comment line\n", 20)
	files := map[string]string{
		"main.go":             "package main\n\nfunc main() {}\n",
		"cmd/tool/tool.go":    long,
		"assets/logo.png":     "binary",
		"node_modules/x/a.js": "module.exports = 1",
	}
	srv, treeCalls := newFakeGitHub(t, files)

	cfg := DefaultConfig()
	cfg.BatchDelay = 0
	cfg.Retry.InitialBackoff = 1
	cfg.GitHubBaseURL = srv.URL
	svc := NewService(cfg, nil)

	res, err := svc.Index(context.Background(), IndexRequest{
		Repository: "octo/cat",
		Token:      "gh-token",
		Provider:   ProviderGitHub,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "trunk", res.Branch)
	assert.Equal(t, int32(2), treeCalls.Load(), "tree lookup retried after 502")
	assert.Equal(t, []string{"cmd/tool/tool.go", "main.go"}, res.Corpus.Paths())

	content, _ := res.Corpus.Get("cmd/tool/tool.go")
	assert.Equal(t, long, content)
}

func TestGitHubProvider_MissingRepository(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"message": "Not Found"})
	}))
	defer srv.Close()

	svc := NewService(Config{GitHubBaseURL: srv.URL}, nil)
	_, err := svc.Index(context.Background(), IndexRequest{Repository: "octo/missing", Token: "t", Provider: ProviderGitHub}, nil)

	var upstream *UpstreamFetchError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, ProviderGitHub, upstream.Provider)
	assert.Contains(t, err.Error(), "404")
}
