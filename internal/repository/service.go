package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/repolens/internal/events"
	"github.com/fyrsmithlabs/repolens/internal/ignore"
	"github.com/fyrsmithlabs/repolens/internal/retry"
)

const instrumentationName = "github.com/fyrsmithlabs/repolens/internal/repository"

// Config configures the indexer.
type Config struct {
	// BatchSize is the number of files fetched concurrently.
	// Default: 5
	BatchSize int

	// BatchDelay is the pause between batches. Zero disables it.
	// Default: 500ms
	BatchDelay time.Duration

	// MaxFileSize is the byte ceiling for ordinary files.
	// Default: 500KB
	MaxFileSize int

	// MaxConfigFileSize is the byte ceiling for configuration files.
	// Default: 1MB
	MaxConfigFileSize int

	// RequestsPerSecond paces file fetches across all runs. Zero disables.
	RequestsPerSecond float64

	// Retry governs structural calls (branch, ref, tree).
	Retry retry.Config

	// ExcludePatterns are gitignore-style patterns dropped from every tree.
	ExcludePatterns []string

	GitHubBaseURL string
	GitLabBaseURL string

	// HTTPClient is the base transport for provider clients.
	HTTPClient *http.Client
}

// DefaultConfig returns the default indexer configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:         5,
		BatchDelay:        500 * time.Millisecond,
		MaxFileSize:       500 * 1024,
		MaxConfigFileSize: 1024 * 1024,
		Retry:             retry.DefaultConfig(),
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = d.BatchDelay
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = d.MaxFileSize
	}
	if c.MaxConfigFileSize <= 0 {
		c.MaxConfigFileSize = d.MaxConfigFileSize
	}
}

// Option configures a Service.
type Option func(*Service)

// WithProvider overrides the factory used for kind.
func WithProvider(kind Kind, factory ProviderFactory) Option {
	return func(s *Service) {
		s.providers[kind] = factory
	}
}

// WithPublisher sends run lifecycle events to p.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// Service indexes repositories. It holds configuration only; every call to
// Index gets its own run state, so concurrent runs are independent.
type Service struct {
	cfg       Config
	logger    *zap.Logger
	exclude   *ignore.Matcher
	limiter   *rate.Limiter
	providers map[Kind]ProviderFactory
	publisher events.Publisher

	tracer       trace.Tracer
	filesCounter metric.Int64Counter
	runsCounter  metric.Int64Counter
}

// NewService creates a repository indexing service.
func NewService(cfg Config, logger *zap.Logger, opts ...Option) *Service {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		cfg:       cfg,
		logger:    logger,
		exclude:   ignore.New(cfg.ExcludePatterns),
		publisher: events.NopPublisher{},
		tracer:    otel.Tracer(instrumentationName),
		providers: map[Kind]ProviderFactory{
			ProviderGitHub: NewGitHubFactory(cfg.GitHubBaseURL, cfg.HTTPClient, logger),
			ProviderGitLab: NewGitLabFactory(cfg.GitLabBaseURL, cfg.HTTPClient, logger),
		},
	}
	if cfg.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BatchSize)
	}
	for _, opt := range opts {
		opt(s)
	}

	s.initMetrics()
	return s
}

func (s *Service) initMetrics() {
	meter := otel.Meter(instrumentationName)
	var err error

	s.filesCounter, err = meter.Int64Counter(
		"repolens.index.files_total",
		metric.WithDescription("Files processed by indexing runs"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		s.logger.Warn("failed to create files counter", zap.Error(err))
	}

	s.runsCounter, err = meter.Int64Counter(
		"repolens.index.runs_total",
		metric.WithDescription("Indexing runs by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		s.logger.Warn("failed to create runs counter", zap.Error(err))
	}
}

// indexRun is the mutable state of one Index call.
type indexRun struct {
	id        string
	req       IndexRequest
	logger    *zap.Logger
	progress  chan<- float64
	watermark float64

	mu    sync.Mutex
	files map[string]string
}

// Index fetches every indexable file of the requested repository.
//
// Progress values are sent on progress (which may be nil) and are strictly
// increasing, ending at exactly 1.0. Sends block until received or ctx is
// done. The channel is never closed by Index.
//
// Failures resolving the branch or tree are returned as *UpstreamFetchError.
// A repository with nothing to index returns ErrNoIndexableFiles. Individual
// file failures are logged and counted in FilesSkipped.
func (s *Service) Index(ctx context.Context, req IndexRequest, progress chan<- float64) (*IndexResult, error) {
	if req.RunID == "" {
		req.RunID = uuid.New().String()
	}

	ctx, span := s.tracer.Start(ctx, "repository.Index", trace.WithAttributes(
		attribute.String("repository", req.Repository),
		attribute.String("provider", string(req.Provider)),
		attribute.String("run_id", req.RunID),
	))
	defer span.End()

	run := &indexRun{
		id:       req.RunID,
		req:      req,
		logger:   s.logger.With(zap.String("index.run_id", req.RunID), zap.String("repository", req.Repository)),
		progress: progress,
		files:    make(map[string]string),
	}

	res, err := s.index(ctx, run)
	s.recordRun(ctx, req.Provider, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.publish(run, func(p events.Publisher) error {
			return p.Failed(ctx, events.FailedEvent{RunID: run.id, Repository: req.Repository, Error: err.Error()})
		})
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("files.indexed", res.FilesIndexed),
		attribute.Int("files.skipped", res.FilesSkipped),
	)
	s.publish(run, func(p events.Publisher) error {
		return p.Completed(ctx, events.CompletedEvent{
			RunID:        run.id,
			Repository:   res.Repository,
			Provider:     string(res.Provider),
			Branch:       res.Branch,
			FilesTotal:   res.FilesTotal,
			FilesIndexed: res.FilesIndexed,
			FilesSkipped: res.FilesSkipped,
		})
	})
	return res, nil
}

func (s *Service) index(ctx context.Context, run *indexRun) (*IndexResult, error) {
	req := run.req

	factory, ok := s.providers[req.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, req.Provider)
	}
	provider, err := factory(req.Repository, req.Token)
	if err != nil {
		return nil, err
	}

	retryCfg := s.cfg.Retry
	retryCfg.Logger = run.logger
	if retryCfg.Retryable == nil {
		retryCfg.Retryable = isRetryable
	}

	branch, err := retry.Do(ctx, retryCfg, provider.ResolveDefaultBranch)
	if err != nil {
		return nil, s.upstreamError(req, "resolve default branch", err)
	}

	tree, err := retry.Do(ctx, retryCfg, func(ctx context.Context) ([]TreeEntry, error) {
		return provider.ListTree(ctx, branch)
	})
	if err != nil {
		return nil, s.upstreamError(req, "list tree", err)
	}

	entries := filterEntries(tree, s.exclude)
	run.logger.Info("repository tree resolved",
		zap.String("branch", branch),
		zap.Int("tree_entries", len(tree)),
		zap.Int("indexable", len(entries)),
	)
	if len(entries) == 0 {
		return nil, ErrNoIndexableFiles
	}

	if err := s.fetchAll(ctx, run, provider, branch, entries); err != nil {
		return nil, err
	}

	indexed := len(run.files)
	return &IndexResult{
		RunID:        run.id,
		Repository:   req.Repository,
		Provider:     req.Provider,
		Branch:       branch,
		Corpus:       &Corpus{files: run.files},
		FilesTotal:   len(entries),
		FilesIndexed: indexed,
		FilesSkipped: len(entries) - indexed,
		IndexedAt:    time.Now().UTC(),
	}, nil
}

// fetchAll fetches entries batch by batch. Only one batch is in flight, so
// the watermark is only touched from this goroutine.
func (s *Service) fetchAll(ctx context.Context, run *indexRun, provider Provider, branch string, entries []TreeEntry) error {
	total := len(entries)
	processed := 0

	for start := 0; start < total; start += s.cfg.BatchSize {
		if start > 0 && s.cfg.BatchDelay > 0 {
			timer := time.NewTimer(s.cfg.BatchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		end := start + s.cfg.BatchSize
		if end > total {
			end = total
		}
		batch := entries[start:end]

		g, gctx := errgroup.WithContext(ctx)
		for _, entry := range batch {
			g.Go(func() error {
				return s.fetchOne(gctx, run, provider, branch, entry)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		processed += len(batch)
		if err := run.report(ctx, float64(processed)/float64(total)); err != nil {
			return err
		}
		s.publish(run, func(p events.Publisher) error {
			return p.Progress(ctx, events.ProgressEvent{RunID: run.id, Repository: run.req.Repository, Progress: run.watermark})
		})
	}

	return run.report(ctx, 1.0)
}

// fetchOne stores one file in the run's corpus. It returns an error only
// when ctx is done; fetch and decode failures skip the file.
func (s *Service) fetchOne(ctx context.Context, run *indexRun, provider Provider, branch string, entry TreeEntry) error {
	var err error
	if s.limiter != nil {
		err = s.limiter.Wait(ctx)
	}

	var raw []byte
	if err == nil {
		raw, err = provider.FetchFileContent(ctx, branch, entry)
	}
	if err == nil {
		var content string
		content, err = decodeContent(entry.Path, raw, s.sizeLimit(entry.Path))
		if err == nil {
			run.mu.Lock()
			run.files[entry.Path] = content
			run.mu.Unlock()
			s.countFile(ctx, "indexed")
			return nil
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	run.logger.Warn("skipping file", zap.String("path", entry.Path), zap.Error(err))
	s.countFile(ctx, "skipped")
	return nil
}

// report forwards p when it exceeds the watermark.
func (r *indexRun) report(ctx context.Context, p float64) error {
	if p <= r.watermark {
		return nil
	}
	r.watermark = p
	if r.progress == nil {
		return nil
	}
	select {
	case r.progress <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) upstreamError(req IndexRequest, op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &UpstreamFetchError{
		Provider:   req.Provider,
		Repository: req.Repository,
		Op:         op,
		Err:        err,
	}
}

func (s *Service) publish(run *indexRun, fn func(events.Publisher) error) {
	if err := fn(s.publisher); err != nil {
		run.logger.Warn("failed to publish index event", zap.Error(err))
	}
}

func (s *Service) countFile(ctx context.Context, status string) {
	if s.filesCounter != nil {
		s.filesCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

func (s *Service) recordRun(ctx context.Context, provider Kind, err error) {
	if s.runsCounter == nil {
		return
	}
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrNoIndexableFiles):
		outcome = "empty"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "canceled"
	default:
		outcome = "error"
	}
	s.runsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", string(provider)),
		attribute.String("outcome", outcome),
	))
}
