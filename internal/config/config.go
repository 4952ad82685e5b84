// Package config provides configuration loading for repolens.
//
// Configuration is read from an optional YAML file and overridden by
// REPOLENS_-prefixed environment variables. Missing values fall back to the
// defaults documented on each field.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config holds the complete repolens configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Logging       LoggingConfig       `koanf:"logging"`
	Analysis      AnalysisConfig      `koanf:"analysis"`
	Indexer       IndexerConfig       `koanf:"indexer"`
	Providers     ProvidersConfig     `koanf:"providers"`
	NATS          NATSConfig          `koanf:"nats"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
	OTLPProtocol    string `koanf:"otlp_protocol"` // "grpc" or "http/protobuf"
	OTLPInsecure    bool   `koanf:"otlp_insecure"`
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// AnalysisConfig configures the chat-completion backend and prompt building.
type AnalysisConfig struct {
	BackendURL         string        `koanf:"backend_url"`
	APIKey             Secret        `koanf:"api_key"`
	Model              string        `koanf:"model"`
	Temperature        float32       `koanf:"temperature"`
	MaxTokens          int           `koanf:"max_tokens"`
	Timeout            time.Duration `koanf:"timeout"`
	MaxChunkTokens     int           `koanf:"max_chunk_tokens"`
	MaxPromptFileChars int           `koanf:"max_prompt_file_chars"`
	ScrubSecrets       bool          `koanf:"scrub_secrets"`
	// ScrubGitleaks adds the gitleaks default rule set to the built-in rules.
	ScrubGitleaks bool `koanf:"scrub_gitleaks"`
}

// IndexerConfig configures remote repository indexing.
type IndexerConfig struct {
	BatchSize           int           `koanf:"batch_size"`
	BatchDelay          time.Duration `koanf:"batch_delay"`
	MaxFileSize         int           `koanf:"max_file_size"`        // bytes
	MaxConfigFileSize   int           `koanf:"max_config_file_size"` // bytes
	RequestsPerSecond   float64       `koanf:"requests_per_second"`  // 0 disables pacing
	RetryAttempts       int           `koanf:"retry_attempts"`
	RetryInitialBackoff time.Duration `koanf:"retry_initial_backoff"`
	ExcludePatterns     []string      `koanf:"exclude_patterns"`
}

// ProvidersConfig overrides provider API base URLs (GitHub Enterprise,
// self-managed GitLab). Empty values use the public endpoints.
type ProvidersConfig struct {
	GitHubBaseURL string `koanf:"github_base_url"`
	GitLabBaseURL string `koanf:"gitlab_base_url"`
}

// NATSConfig configures progress event publishing. An empty URL disables it.
type NATSConfig struct {
	URL string `koanf:"url"`
}

// DefaultTemperature is the sampling temperature used when none is
// configured. It is applied before loading so an explicit 0 is kept.
const DefaultTemperature float32 = 0.7

// Default returns a configuration populated with defaults only.
func Default() *Config {
	cfg := &Config{}
	cfg.Analysis.ScrubSecrets = true
	cfg.Analysis.Temperature = DefaultTemperature
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Analysis.BackendURL == "" {
		return errors.New("analysis backend_url is required")
	}
	if _, err := url.ParseRequestURI(c.Analysis.BackendURL); err != nil {
		return fmt.Errorf("invalid analysis backend_url: %w", err)
	}
	if c.Analysis.Temperature < 0 || c.Analysis.Temperature > 2 {
		return fmt.Errorf("analysis temperature must be within [0, 2], got %v", c.Analysis.Temperature)
	}
	if c.Analysis.MaxTokens <= 0 {
		return errors.New("analysis max_tokens must be positive")
	}
	if c.Analysis.Timeout <= 0 {
		return errors.New("analysis timeout must be positive")
	}
	if c.Analysis.MaxChunkTokens <= 0 {
		return errors.New("analysis max_chunk_tokens must be positive")
	}

	if c.Indexer.BatchSize <= 0 {
		return errors.New("indexer batch_size must be positive")
	}
	if c.Indexer.BatchDelay < 0 {
		return errors.New("indexer batch_delay cannot be negative")
	}
	if c.Indexer.MaxFileSize <= 0 || c.Indexer.MaxConfigFileSize <= 0 {
		return errors.New("indexer file size ceilings must be positive")
	}
	if c.Indexer.RequestsPerSecond < 0 {
		return errors.New("indexer requests_per_second cannot be negative")
	}
	if c.Indexer.RetryAttempts < 1 {
		return errors.New("indexer retry_attempts must be at least 1")
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "repolens"
	}
	if cfg.Observability.OTLPEndpoint == "" {
		cfg.Observability.OTLPEndpoint = "localhost:4317"
	}
	if cfg.Observability.OTLPProtocol == "" {
		cfg.Observability.OTLPProtocol = "grpc"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Analysis.BackendURL == "" {
		cfg.Analysis.BackendURL = "http://localhost:8000/v1/chat/completions"
	}
	if cfg.Analysis.Model == "" {
		cfg.Analysis.Model = "gpt-4o-mini"
	}
	if cfg.Analysis.MaxTokens == 0 {
		cfg.Analysis.MaxTokens = 4000
	}
	if cfg.Analysis.Timeout == 0 {
		cfg.Analysis.Timeout = 160 * time.Second
	}
	if cfg.Analysis.MaxChunkTokens == 0 {
		cfg.Analysis.MaxChunkTokens = 4000
	}
	if cfg.Analysis.MaxPromptFileChars == 0 {
		cfg.Analysis.MaxPromptFileChars = 100_000
	}

	if cfg.Indexer.BatchSize == 0 {
		cfg.Indexer.BatchSize = 5
	}
	if cfg.Indexer.BatchDelay == 0 {
		cfg.Indexer.BatchDelay = 500 * time.Millisecond
	}
	if cfg.Indexer.MaxFileSize == 0 {
		cfg.Indexer.MaxFileSize = 500 * 1024
	}
	if cfg.Indexer.MaxConfigFileSize == 0 {
		cfg.Indexer.MaxConfigFileSize = 1024 * 1024
	}
	if cfg.Indexer.RetryAttempts == 0 {
		cfg.Indexer.RetryAttempts = 3
	}
	if cfg.Indexer.RetryInitialBackoff == 0 {
		cfg.Indexer.RetryInitialBackoff = time.Second
	}
}
