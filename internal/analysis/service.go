// Package analysis turns repository content into a sequence of chunked
// security-review requests against a streaming chat-completion backend.
//
// Each Analyze call handles one chunk. Chunk boundaries are recomputed from
// the supplied files on every call, so callers paginate by sending the same
// file list with an increasing chunk index until HasMore is false.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repolens/internal/chunking"
	"github.com/fyrsmithlabs/repolens/internal/secrets"
	"github.com/fyrsmithlabs/repolens/internal/stream"
)

const instrumentationName = "github.com/fyrsmithlabs/repolens/internal/analysis"

// Config configures the analysis service.
type Config struct {
	// BackendURL is the chat-completion endpoint.
	BackendURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	Model       string
	Temperature float32
	MaxTokens   int

	// Timeout bounds the whole backend exchange, including streaming.
	// Default: 160s
	Timeout time.Duration

	// MaxChunkTokens is the packing budget per chunk.
	// Default: 4000
	MaxChunkTokens int

	// MaxPromptFileChars caps each file's content in the prompt.
	// Default: 100,000
	MaxPromptFileChars int

	// Scrubber redacts secrets from file content. Nil disables scrubbing.
	Scrubber *secrets.Scrubber

	HTTPClient *http.Client
}

// DefaultConfig returns the default analysis configuration.
func DefaultConfig() Config {
	return Config{
		Model:              "gpt-4o-mini",
		Temperature:        0.7,
		MaxTokens:          4000,
		Timeout:            160 * time.Second,
		MaxChunkTokens:     chunking.DefaultMaxChunkTokens,
		MaxPromptFileChars: DefaultMaxPromptFileChars,
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxChunkTokens <= 0 {
		c.MaxChunkTokens = d.MaxChunkTokens
	}
	if c.MaxPromptFileChars <= 0 {
		c.MaxPromptFileChars = d.MaxPromptFileChars
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
}

// Service analyzes one chunk per call. It is safe for concurrent use.
type Service struct {
	cfg     Config
	logger  *zap.Logger
	prompts *promptBuilder
	backend *backendClient

	tracer        trace.Tracer
	chunksCounter metric.Int64Counter
	errorsCounter metric.Int64Counter
}

// NewService creates an analysis service.
func NewService(cfg Config, logger *zap.Logger) (*Service, error) {
	cfg.ApplyDefaults()
	if cfg.BackendURL == "" {
		return nil, errors.New("analysis backend URL is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		cfg:     cfg,
		logger:  logger,
		prompts: &promptBuilder{maxFileChars: cfg.MaxPromptFileChars, scrubber: cfg.Scrubber},
		backend: &backendClient{url: cfg.BackendURL, apiKey: cfg.APIKey, httpClient: cfg.HTTPClient},
		tracer:  otel.Tracer(instrumentationName),
	}
	s.initMetrics()
	return s, nil
}

func (s *Service) initMetrics() {
	meter := otel.Meter(instrumentationName)
	var err error

	s.chunksCounter, err = meter.Int64Counter(
		"repolens.analysis.chunks_total",
		metric.WithDescription("Chunks sent to the analysis backend"),
		metric.WithUnit("{chunk}"),
	)
	if err != nil {
		s.logger.Warn("failed to create chunks counter", zap.Error(err))
	}

	s.errorsCounter, err = meter.Int64Counter(
		"repolens.analysis.backend_errors_total",
		metric.WithDescription("Failed analysis backend calls"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		s.logger.Warn("failed to create backend errors counter", zap.Error(err))
	}
}

// Chunks packs the request's files, including the current file, the same
// way Analyze does.
func (s *Service) Chunks(c *Context) []chunking.Chunk {
	if c == nil {
		return nil
	}
	return chunking.Pack(withCurrentFile(c.Files, c.CurrentFile), s.cfg.MaxChunkTokens)
}

// Analyze validates req, sends the selected chunk to the backend and returns
// the relayed event stream.
//
// Validation failures return *ValidationError. Backend failures before the
// stream starts return *BackendError. The returned Body must be closed; the
// configured timeout keeps running while it is read.
func (s *Service) Analyze(ctx context.Context, req Request) (*Result, error) {
	if req.Context == nil || req.Context.Repository == nil || req.Context.Repository.FullName == "" {
		return nil, &ValidationError{Message: MsgRepositoryRequired}
	}
	repo := req.Context.Repository.FullName

	chunks := s.Chunks(req.Context)
	if req.ChunkIndex < 0 || req.ChunkIndex >= len(chunks) {
		return nil, &ValidationError{Message: MsgInvalidChunkIndex}
	}
	state := newRequestState(req.ChunkIndex, len(chunks))
	chunk := chunks[req.ChunkIndex]

	ctx, span := s.tracer.Start(ctx, "analysis.Analyze",
		trace.WithAttributes(
			attribute.String("repository", repo),
			attribute.Int("chunk.index", state.ChunkIndex),
			attribute.Int("chunk.total", state.TotalChunks),
			attribute.Int("chunk.files", len(chunk.Files)),
		),
	)
	defer span.End()

	logger := s.logger.With(
		zap.String("repository", repo),
		zap.Int("chunk_index", state.ChunkIndex),
		zap.Int("total_chunks", state.TotalChunks),
	)

	system, user := s.prompts.messages(repo, state, chunk)
	completion := openai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
		Stream:      true,
	}

	// The deadline covers the streamed body too, so it is released on Close.
	exchangeCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)

	body, err := s.backend.stream(exchangeCtx, completion)
	if err != nil {
		cancel()
		var be *BackendError
		if !errors.As(err, &be) {
			be = &BackendError{Err: err}
		}
		if errors.Is(exchangeCtx.Err(), context.DeadlineExceeded) {
			be.Err = fmt.Errorf("timed out after %s: %w", s.cfg.Timeout, be.Err)
		}
		if s.errorsCounter != nil {
			s.errorsCounter.Add(ctx, 1)
		}
		span.RecordError(be)
		span.SetStatus(codes.Error, "backend request failed")
		logger.Error("analysis backend request failed", zap.Int("status", be.StatusCode), zap.Error(be.Err))
		return nil, be
	}

	if s.chunksCounter != nil {
		s.chunksCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("first", state.IsFirstChunk)))
	}
	logger.Info("analysis stream started", zap.Int("files", len(chunk.Files)))

	return &Result{
		ChunkIndex:  state.ChunkIndex,
		TotalChunks: state.TotalChunks,
		HasMore:     !state.IsLastChunk,
		Body: &exchangeBody{
			ReadCloser: stream.Relay(exchangeCtx, body, logger),
			release:    cancel,
		},
	}, nil
}

// withCurrentFile appends current unless a file with the same path exists.
func withCurrentFile(files []chunking.FileRecord, current *chunking.FileRecord) []chunking.FileRecord {
	if current == nil || current.Path == "" {
		return files
	}
	for _, f := range files {
		if f.Path == current.Path {
			return files
		}
	}
	out := make([]chunking.FileRecord, 0, len(files)+1)
	out = append(out, files...)
	return append(out, *current)
}

// exchangeBody releases the exchange deadline when the stream is closed.
type exchangeBody struct {
	io.ReadCloser
	once    sync.Once
	release context.CancelFunc
}

func (b *exchangeBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
