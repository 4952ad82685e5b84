package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/repolens/internal/chunking"
	httpserver "github.com/fyrsmithlabs/repolens/internal/http"
)

func sseHandler(t *testing.T, events ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/index", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req httpserver.IndexRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "acme/api", req.Repository)
		assert.Equal(t, "github", req.Provider)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set(httpserver.HeaderRunID, "run-1")
		for _, ev := range events {
			fmt.Fprint(w, ev)
		}
	}
}

func TestIndexCommand_Completed(t *testing.T) {
	completed, _ := json.Marshal(httpserver.IndexCompleted{
		RunID:        "run-1",
		Repository:   "acme/api",
		Branch:       "main",
		FilesIndexed: 1,
		FilesSkipped: 2,
		Files:        []chunking.FileRecord{{Path: "main.go", Content: "package main", Language: "go"}},
	})
	srv := httptest.NewServer(sseHandler(t,
		`event: progress`+"\n"+`data: {"run_id":"run-1","progress":0.5}`+"\n\n",
		": heartbeat\n\n",
		"event: completed\ndata: "+string(completed)+"\n\n",
	))
	defer srv.Close()

	save := filepath.Join(t.TempDir(), "files.json")
	out, errOut, err := execute(t, srv.URL, "", "index", "acme/api", "--provider", "github", "--token", "tok", "--save", save)
	require.NoError(t, err)

	assert.Equal(t, "files_indexed=1 files_skipped=2\n", out)
	assert.Contains(t, errOut, "run-1")
	assert.Contains(t, errOut, "50%")
	assert.Contains(t, errOut, "acme/api@main")

	data, err := os.ReadFile(save)
	require.NoError(t, err)
	var files []chunking.FileRecord
	require.NoError(t, json.Unmarshal(data, &files))
	require.Len(t, files, 1)
	assert.Equal(t, "main.go", files[0].Path)
}

func TestIndexCommand_ErrorEvent(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t,
		`event: error`+"\n"+`data: {"run_id":"run-1","error":"failed to list tree from github"}`+"\n\n",
	))
	defer srv.Close()

	_, _, err := execute(t, srv.URL, "", "index", "acme/api", "--provider", "github", "--token", "tok")
	require.Error(t, err)
	assert.Equal(t, "failed to list tree from github", err.Error())
}

func TestIndexCommand_StreamEndsEarly(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t,
		`event: progress`+"\n"+`data: {"run_id":"run-1","progress":0.1}`+"\n\n",
	))
	defer srv.Close()

	_, _, err := execute(t, srv.URL, "", "index", "acme/api", "--provider", "github", "--token", "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before the run completed")
}

func TestIndexCommand_RequestRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(httpserver.ErrorResponse{Error: "provider access token is required"})
	}))
	defer srv.Close()

	_, _, err := execute(t, srv.URL, "", "index", "acme/api", "--provider", "github", "--token", "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestIndexCommand_MissingToken(t *testing.T) {
	t.Setenv("REPOLENS_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "")

	_, _, err := execute(t, "http://127.0.0.1:1", "", "index", "acme/api", "--provider", "github")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no access token")
}

func TestResolveToken(t *testing.T) {
	t.Setenv("REPOLENS_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "gh")
	t.Setenv("GITLAB_TOKEN", "gl")

	tests := []struct {
		name     string
		flag     string
		provider string
		want     string
	}{
		{name: "flag wins", flag: "f", provider: "github", want: "f"},
		{name: "github env", provider: "github", want: "gh"},
		{name: "gitlab env", provider: "gitlab", want: "gl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &indexOptions{token: tt.flag}
			assert.Equal(t, tt.want, o.resolveToken(tt.provider))
		})
	}
}

func TestIndexRequest_ExplicitArgsSkipDetection(t *testing.T) {
	o := &indexOptions{provider: "GitLab", dir: t.TempDir()}
	req, err := o.request([]string{"group/sub/project"})
	require.NoError(t, err)
	assert.Equal(t, "group/sub/project", req.Repository)
	assert.Equal(t, "gitlab", req.Provider)
}

func TestIndexRequest_NoRepository(t *testing.T) {
	o := &indexOptions{dir: t.TempDir()}
	_, err := o.request(nil)
	require.Error(t, err)
}
