package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "repolens", cfg.Observability.ServiceName)
	assert.Equal(t, float32(0.7), cfg.Analysis.Temperature)
	assert.Equal(t, 4000, cfg.Analysis.MaxTokens)
	assert.Equal(t, 160*time.Second, cfg.Analysis.Timeout)
	assert.Equal(t, 4000, cfg.Analysis.MaxChunkTokens)
	assert.Equal(t, 100_000, cfg.Analysis.MaxPromptFileChars)
	assert.True(t, cfg.Analysis.ScrubSecrets)
	assert.Equal(t, 5, cfg.Indexer.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Indexer.BatchDelay)
	assert.Equal(t, 500*1024, cfg.Indexer.MaxFileSize)
	assert.Equal(t, 1024*1024, cfg.Indexer.MaxConfigFileSize)
	assert.Equal(t, 3, cfg.Indexer.RetryAttempts)
	assert.Empty(t, cfg.NATS.URL)

	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"port too low", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }, "shutdown timeout"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging format"},
		{"missing backend", func(c *Config) { c.Analysis.BackendURL = "" }, "backend_url is required"},
		{"bad backend", func(c *Config) { c.Analysis.BackendURL = "not a url" }, "invalid analysis backend_url"},
		{"temperature", func(c *Config) { c.Analysis.Temperature = 3 }, "temperature"},
		{"max tokens", func(c *Config) { c.Analysis.MaxTokens = -1 }, "max_tokens"},
		{"chunk tokens", func(c *Config) { c.Analysis.MaxChunkTokens = 0 }, "max_chunk_tokens"},
		{"batch size", func(c *Config) { c.Indexer.BatchSize = 0 }, "batch_size"},
		{"batch delay", func(c *Config) { c.Indexer.BatchDelay = -time.Second }, "batch_delay"},
		{"file size", func(c *Config) { c.Indexer.MaxFileSize = 0 }, "file size"},
		{"rps", func(c *Config) { c.Indexer.RequestsPerSecond = -1 }, "requests_per_second"},
		{"retries", func(c *Config) { c.Indexer.RetryAttempts = 0 }, "retry_attempts"},
		{"telemetry service", func(c *Config) {
			c.Observability.EnableTelemetry = true
			c.Observability.ServiceName = ""
		}, "service name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("sk-live-123")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "sk-live-123", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{Key: s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"[REDACTED]"}`, string(data))

	var empty Secret
	assert.False(t, empty.IsSet())
	assert.Equal(t, "", empty.String())
}
