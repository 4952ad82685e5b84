// Repolens serves chunked, streaming security analysis of GitHub and GitLab
// repositories over HTTP.
//
// Configuration comes from ~/.config/repolens/config.yaml (or --config),
// overridden by REPOLENS_* environment variables. A .env file in the working
// directory is loaded first when present.
//
// Usage:
//
//	# Start the server
//	repolens
//
//	# Point at a different backend
//	REPOLENS_ANALYSIS_BACKEND_URL=http://llm:8000/v1/chat/completions repolens
//
//	repolens version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repolens/internal/analysis"
	"github.com/fyrsmithlabs/repolens/internal/config"
	"github.com/fyrsmithlabs/repolens/internal/events"
	httpserver "github.com/fyrsmithlabs/repolens/internal/http"
	"github.com/fyrsmithlabs/repolens/internal/logging"
	"github.com/fyrsmithlabs/repolens/internal/repository"
	"github.com/fyrsmithlabs/repolens/internal/retry"
	"github.com/fyrsmithlabs/repolens/internal/secrets"
	"github.com/fyrsmithlabs/repolens/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  repolens           Start the server\n")
			fmt.Fprintf(os.Stderr, "  repolens version   Show version information\n")
			os.Exit(1)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Ignoring .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWithFile(*configPath)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("repolens by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the server and blocks until ctx is cancelled, then shuts down
// within the configured timeout.
func run(ctx context.Context, cfg *config.Config) error {
	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zl := logger.Underlying()

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Observability, version), zl)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
		}
	}()

	a, err := newApp(cfg, zl)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info(ctx, "Starting repolens",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("backend", cfg.Analysis.BackendURL),
		zap.Bool("nats", a.nc != nil),
		zap.Bool("telemetry", tel.IsEnabled()),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error(ctx, "server stopped", zap.Error(err))
		}
		return err
	case <-ctx.Done():
	}
	logger.Debug(ctx, "shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func initLogger(cfg *config.Config) (*logging.Logger, error) {
	lcfg, err := logging.FromAppConfig(cfg.Logging, cfg.Observability.ServiceName)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(lcfg, nil)
}

// app holds the wired services.
type app struct {
	server *httpserver.Server
	nc     *nats.Conn
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	scrubCfg := secrets.DefaultConfig()
	scrubCfg.Enabled = cfg.Analysis.ScrubSecrets
	scrubCfg.Gitleaks = cfg.Analysis.ScrubGitleaks
	scrubber, err := secrets.New(scrubCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret scrubber: %w", err)
	}

	analyzer, err := analysis.NewService(analysis.Config{
		BackendURL:         cfg.Analysis.BackendURL,
		APIKey:             cfg.Analysis.APIKey.Value(),
		Model:              cfg.Analysis.Model,
		Temperature:        cfg.Analysis.Temperature,
		MaxTokens:          cfg.Analysis.MaxTokens,
		Timeout:            cfg.Analysis.Timeout,
		MaxChunkTokens:     cfg.Analysis.MaxChunkTokens,
		MaxPromptFileChars: cfg.Analysis.MaxPromptFileChars,
		Scrubber:           scrubber,
	}, logger.Named("analysis"))
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis service: %w", err)
	}

	a := &app{}
	var indexOpts []repository.Option
	var serverOpts []httpserver.Option
	if cfg.Analysis.ScrubSecrets {
		serverOpts = append(serverOpts, httpserver.WithScrubber(scrubber))
	}

	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name("repolens"),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
		}
		logger.Info("Connected to NATS", zap.String("url", cfg.NATS.URL))
		a.nc = nc
		indexOpts = append(indexOpts, repository.WithPublisher(events.NewNATSPublisher(nc, logger)))
		serverOpts = append(serverOpts, httpserver.WithEventStream(nc))
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.Attempts = cfg.Indexer.RetryAttempts
	retryCfg.InitialBackoff = cfg.Indexer.RetryInitialBackoff
	indexer := repository.NewService(repository.Config{
		BatchSize:         cfg.Indexer.BatchSize,
		BatchDelay:        cfg.Indexer.BatchDelay,
		MaxFileSize:       cfg.Indexer.MaxFileSize,
		MaxConfigFileSize: cfg.Indexer.MaxConfigFileSize,
		RequestsPerSecond: cfg.Indexer.RequestsPerSecond,
		Retry:             retryCfg,
		ExcludePatterns:   cfg.Indexer.ExcludePatterns,
		GitHubBaseURL:     cfg.Providers.GitHubBaseURL,
		GitLabBaseURL:     cfg.Providers.GitLabBaseURL,
	}, logger.Named("indexer"), indexOpts...)

	a.server, err = httpserver.NewServer(analyzer, indexer, logger.Named("http"), &httpserver.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		ServiceName: cfg.Observability.ServiceName,
	}, serverOpts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create http server: %w", err)
	}
	return a, nil
}

// Close releases infrastructure connections.
func (a *app) Close() {
	if a.nc != nil {
		a.nc.Close()
	}
}
