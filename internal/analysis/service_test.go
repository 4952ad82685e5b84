package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/repolens/internal/chunking"
	"github.com/fyrsmithlabs/repolens/internal/secrets"
	"github.com/fyrsmithlabs/repolens/internal/stream"
	"github.com/fyrsmithlabs/repolens/internal/telemetry"
)

const helloWorldStream = "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n" +
	"data: [DONE]\n\n"

// fakeBackend records completion requests and replays a canned stream.
type fakeBackend struct {
	mu       sync.Mutex
	requests []openai.ChatCompletionRequest
	raw      []map[string]any
	headers  []http.Header

	status int
	body   string
	delay  time.Duration
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	var req openai.ChatCompletionRequest
	_ = json.Unmarshal(data, &req)
	var raw map[string]any
	_ = json.Unmarshal(data, &raw)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.raw = append(f.raw, raw)
	f.headers = append(f.headers, r.Header.Clone())
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-r.Context().Done():
			return
		}
	}
	if f.status != 0 && f.status != http.StatusOK {
		http.Error(w, f.body, f.status)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, f.body)
}

func (f *fakeBackend) lastRequest(t *testing.T) openai.ChatCompletionRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func newTestService(t *testing.T, backend *fakeBackend, mutate func(*Config)) *Service {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BackendURL = srv.URL + "/v1/chat/completions"
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := NewService(cfg, nil)
	require.NoError(t, err)
	return svc
}

func repoContext(files ...chunking.FileRecord) *Context {
	return &Context{Repository: &Repository{FullName: "acme/widgets"}, Files: files}
}

func sized(path string, n int) chunking.FileRecord {
	return chunking.FileRecord{Path: path, Content: strings.Repeat("a", n)}
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestNewService_RequiresBackendURL(t *testing.T) {
	_, err := NewService(Config{}, nil)
	require.Error(t, err)
}

func TestAnalyze_ZeroTemperatureIsSent(t *testing.T) {
	backend := &fakeBackend{body: helloWorldStream}
	svc := newTestService(t, backend, func(c *Config) { c.Temperature = 0 })

	res, err := svc.Analyze(context.Background(), Request{Context: repoContext(sized("a.go", 10))})
	require.NoError(t, err)
	_, err = stream.Collect(res.Body)
	require.NoError(t, err)
	require.NoError(t, res.Body.Close())

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.raw, 1)
	temp, ok := backend.raw[0]["temperature"]
	require.True(t, ok, "temperature must be present in the request body")
	assert.Equal(t, 0.0, temp)
}

func TestAnalyze_SingleChunkRelaysStream(t *testing.T) {
	backend := &fakeBackend{body: helloWorldStream}
	svc := newTestService(t, backend, nil)

	res, err := svc.Analyze(context.Background(), Request{
		Context: repoContext(sized("a.go", 8000), sized("b.go", 4000), sized("c.go", 100)),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, res.ChunkIndex)
	assert.Equal(t, 1, res.TotalChunks)
	assert.False(t, res.HasMore)

	text, err := stream.Collect(res.Body)
	require.NoError(t, err)
	require.NoError(t, res.Body.Close())
	assert.Equal(t, "Hello world", text)

	req := backend.lastRequest(t)
	assert.True(t, req.Stream)
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Equal(t, 4000, req.MaxTokens)
	assert.InDelta(t, 0.7, req.Temperature, 0.0001)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, req.Messages[1].Role)
	assert.Contains(t, req.Messages[0].Content, "Start a structured security report")
	for _, p := range []string{"a.go", "b.go", "c.go"} {
		assert.Contains(t, req.Messages[1].Content, "### File: "+p)
	}
}

func TestAnalyze_ContinuationChunk(t *testing.T) {
	backend := &fakeBackend{body: helloWorldStream}
	svc := newTestService(t, backend, nil)
	ctx := repoContext(sized("one.go", 20000), sized("two.go", 20000), sized("three.go", 20000))

	res, err := svc.Analyze(context.Background(), Request{Context: ctx, ChunkIndex: 1})
	require.NoError(t, err)
	readAll(t, res.Body)

	assert.Equal(t, 1, res.ChunkIndex)
	assert.Equal(t, 3, res.TotalChunks)
	assert.True(t, res.HasMore)

	req := backend.lastRequest(t)
	assert.Contains(t, req.Messages[0].Content, "part 2 of 3")
	assert.Contains(t, req.Messages[0].Content, "Do not repeat")
	assert.NotContains(t, req.Messages[0].Content, "Start a structured security report")
	assert.NotContains(t, req.Messages[0].Content, "final part")
	assert.Contains(t, req.Messages[1].Content, "### File: two.go")
	assert.NotContains(t, req.Messages[1].Content, "one.go")

	res, err = svc.Analyze(context.Background(), Request{Context: ctx, ChunkIndex: 2})
	require.NoError(t, err)
	readAll(t, res.Body)
	assert.False(t, res.HasMore)
	assert.Contains(t, backend.lastRequest(t).Messages[0].Content, "final part")
}

func TestAnalyze_Validation(t *testing.T) {
	backend := &fakeBackend{body: helloWorldStream}
	svc := newTestService(t, backend, nil)

	tests := []struct {
		name string
		req  Request
		msg  string
	}{
		{"nil context", Request{}, MsgRepositoryRequired},
		{"nil repository", Request{Context: &Context{Files: []chunking.FileRecord{sized("a.go", 10)}}}, MsgRepositoryRequired},
		{"empty name", Request{Context: &Context{Repository: &Repository{}}}, MsgRepositoryRequired},
		{"no chunks", Request{Context: repoContext()}, MsgInvalidChunkIndex},
		{"beyond last chunk", Request{Context: repoContext(sized("a.go", 10)), ChunkIndex: 1}, MsgInvalidChunkIndex},
		{"negative", Request{Context: repoContext(sized("a.go", 10)), ChunkIndex: -1}, MsgInvalidChunkIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Analyze(context.Background(), tt.req)
			assert.Nil(t, res)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.msg, ve.Message)
		})
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Empty(t, backend.requests)
}

func TestAnalyze_CurrentFileAppendedOnce(t *testing.T) {
	backend := &fakeBackend{body: helloWorldStream}
	svc := newTestService(t, backend, nil)

	ctx := repoContext(sized("a.go", 10))
	ctx.CurrentFile = &chunking.FileRecord{Path: "open.py", Content: "print('hi')"}
	res, err := svc.Analyze(context.Background(), Request{Context: ctx})
	require.NoError(t, err)
	readAll(t, res.Body)
	user := backend.lastRequest(t).Messages[1].Content
	assert.Contains(t, user, "### File: open.py\n```python\nprint('hi')\n```")

	ctx.CurrentFile = &chunking.FileRecord{Path: "a.go", Content: "different"}
	res, err = svc.Analyze(context.Background(), Request{Context: ctx})
	require.NoError(t, err)
	readAll(t, res.Body)
	user = backend.lastRequest(t).Messages[1].Content
	assert.Equal(t, 1, strings.Count(user, "### File: a.go"))
	assert.NotContains(t, user, "different")
}

func TestAnalyze_BackendErrorStatus(t *testing.T) {
	backend := &fakeBackend{status: http.StatusBadGateway, body: "upstream down"}
	svc := newTestService(t, backend, nil)

	res, err := svc.Analyze(context.Background(), Request{Context: repoContext(sized("a.go", 10))})
	assert.Nil(t, res)
	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusBadGateway, be.StatusCode)
	assert.Contains(t, be.Error(), "upstream down")
}

func TestAnalyze_BackendTimeout(t *testing.T) {
	backend := &fakeBackend{body: helloWorldStream, delay: 2 * time.Second}
	svc := newTestService(t, backend, func(c *Config) {
		c.Timeout = 50 * time.Millisecond
	})

	start := time.Now()
	res, err := svc.Analyze(context.Background(), Request{Context: repoContext(sized("a.go", 10))})
	assert.Nil(t, res)
	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Zero(t, be.StatusCode)
	assert.Contains(t, be.Error(), "timed out")
	assert.Less(t, time.Since(start), time.Second)
}

func TestAnalyze_SendsAPIKey(t *testing.T) {
	backend := &fakeBackend{body: helloWorldStream}
	svc := newTestService(t, backend, func(c *Config) {
		c.APIKey = "sk-test"
	})

	res, err := svc.Analyze(context.Background(), Request{Context: repoContext(sized("a.go", 10))})
	require.NoError(t, err)
	readAll(t, res.Body)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	h := backend.headers[0]
	assert.Equal(t, "Bearer sk-test", h.Get("Authorization"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Equal(t, "text/event-stream", h.Get("Accept"))
}

func TestAnalyze_ScrubsSecrets(t *testing.T) {
	scrubber, err := secrets.New(nil)
	require.NoError(t, err)

	backend := &fakeBackend{body: helloWorldStream}
	svc := newTestService(t, backend, func(c *Config) {
		c.Scrubber = scrubber
	})

	token := "ghp_" + strings.Repeat("A1b2C3d4", 5)[:36]
	res, err := svc.Analyze(context.Background(), Request{Context: repoContext(
		chunking.FileRecord{Path: "deploy.sh", Content: "export GITHUB_TOKEN=" + token + "\n"},
	)})
	require.NoError(t, err)
	readAll(t, res.Body)

	user := backend.lastRequest(t).Messages[1].Content
	assert.NotContains(t, user, token)
	assert.Contains(t, user, "[REDACTED:github-token]")
	assert.Contains(t, user, "Redacted secrets:")
}

func TestContext_UnmarshalCurrentFileAliases(t *testing.T) {
	for _, key := range []string{"currentFile", "current_file"} {
		t.Run(key, func(t *testing.T) {
			raw := `{"context":{"repository":{"full_name":"o/r"},"files":[],"` + key + `":{"path":"x.go","content":"x"}},"chunkIndex":0}`
			var req Request
			require.NoError(t, json.Unmarshal([]byte(raw), &req))
			require.NotNil(t, req.Context.CurrentFile)
			assert.Equal(t, "x.go", req.Context.CurrentFile.Path)
			assert.Equal(t, "o/r", req.Context.Repository.FullName)
		})
	}
}

func TestAnalyze_RecordsTelemetry(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	restore := tel.Install()
	defer restore()

	ok := newTestService(t, &fakeBackend{body: helloWorldStream}, nil)
	res, err := ok.Analyze(context.Background(), Request{Context: repoContext(sized("a.go", 10))})
	require.NoError(t, err)
	readAll(t, res.Body)

	failing := newTestService(t, &fakeBackend{status: http.StatusInternalServerError}, nil)
	_, err = failing.Analyze(context.Background(), Request{Context: repoContext(sized("a.go", 10))})
	require.Error(t, err)

	tel.AssertSpanExists(t, "analysis.Analyze")
	tel.AssertSpanAttribute(t, "analysis.Analyze", "repository", "acme/widgets")
	assert.Equal(t, int64(1), tel.CounterValue(t, "repolens.analysis.chunks_total"))
	assert.Equal(t, int64(1), tel.CounterValue(t, "repolens.analysis.backend_errors_total"))
}
