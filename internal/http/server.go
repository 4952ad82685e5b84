// Package http serves the repolens HTTP API: chunked analysis streaming,
// repository indexing with progress events, and operational endpoints.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repolens/internal/analysis"
	"github.com/fyrsmithlabs/repolens/internal/logging"
	"github.com/fyrsmithlabs/repolens/internal/repository"
	"github.com/fyrsmithlabs/repolens/internal/secrets"
)

// Analyzer runs one chunk of a chunked analysis.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error)
}

// Indexer fetches a remote repository into a corpus.
type Indexer interface {
	Index(ctx context.Context, req repository.IndexRequest, progress chan<- float64) (*repository.IndexResult, error)
}

// Server provides the repolens HTTP endpoints.
type Server struct {
	echo     *echo.Echo
	analyzer Analyzer
	indexer  Indexer
	scrubber *secrets.Scrubber
	nc       *nats.Conn
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host        string
	Port        int
	ServiceName string

	// HeartbeatInterval spaces SSE comments on idle index streams.
	HeartbeatInterval time.Duration
}

// Option configures optional server dependencies.
type Option func(*Server)

// WithScrubber enables POST /api/v1/scrub.
func WithScrubber(s *secrets.Scrubber) Option {
	return func(srv *Server) {
		srv.scrubber = s
	}
}

// WithEventStream enables GET /api/v1/index/:run_id/events backed by nc.
func WithEventStream(nc *nats.Conn) Option {
	return func(srv *Server) {
		srv.nc = nc
	}
}

// NewServer creates a new HTTP server.
func NewServer(analyzer Analyzer, indexer Indexer, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if analyzer == nil {
		return nil, errors.New("analyzer cannot be nil")
	}
	if indexer == nil {
		return nil, errors.New("indexer cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9090}
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "repolens"
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			c.SetRequest(c.Request().WithContext(logging.WithRequestID(c.Request().Context(), rid)))

			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Int64("bytes", c.Response().Size),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", rid),
			)
			return err
		}
	})

	s := &Server{
		echo:     e,
		analyzer: analyzer,
		indexer:  indexer,
		logger:   logger,
		config:   cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/analyze", s.handleAnalyze)
	v1.POST("/index", s.handleIndex)
	if s.nc != nil {
		v1.GET("/index/:run_id/events", s.handleIndexEvents)
	}
	if s.scrubber != nil {
		v1.POST("/scrub", s.handleScrub)
	}
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Service: s.config.ServiceName})
}

func (s *Server) handleScrub(c echo.Context) error {
	var req ScrubRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return jsonError(c, http.StatusBadRequest, "content field is required")
	}

	result := s.scrubber.Scrub(req.Content)
	findings := make([]Finding, 0, len(result.Findings))
	for _, f := range result.Findings {
		findings = append(findings, Finding{RuleID: f.RuleID, Line: f.Line})
	}
	s.logger.Debug("scrubbed content", zap.Int("findings", len(findings)))

	return c.JSON(http.StatusOK, ScrubResponse{Content: result.Scrubbed, Findings: findings})
}

func jsonError(c echo.Context, status int, msg string) error {
	return c.JSON(status, ErrorResponse{Error: msg})
}

// startEventStream writes SSE headers and commits a 200 response.
func startEventStream(c echo.Context) {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Flush()
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
