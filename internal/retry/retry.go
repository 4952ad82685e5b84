// Package retry retries an operation with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Config configures retry behavior.
type Config struct {
	// Attempts is the total number of tries, including the first.
	// Default: 3
	Attempts int

	// InitialBackoff is the delay before the second attempt.
	// Default: 1 second
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between attempts.
	// Default: 30 seconds
	MaxBackoff time.Duration

	// Multiplier scales the delay after each failed attempt.
	// Default: 2
	Multiplier float64

	// Retryable reports whether an error is worth another attempt.
	// Nil retries every error not marked Permanent.
	Retryable func(error) bool

	// Logger receives retry diagnostics. Nil disables logging.
	Logger *zap.Logger
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		Attempts:       3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()

	if c.Attempts <= 0 {
		c.Attempts = defaults.Attempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaults.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaults.MaxBackoff
	}
	if c.Multiplier <= 0 {
		c.Multiplier = defaults.Multiplier
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do runs op until it succeeds, returns a non-retryable error, or exhausts
// cfg.Attempts. The delay doubles (by Multiplier) after each failure and
// waiting honors ctx.
func Do[T any](ctx context.Context, cfg Config, op func(context.Context) (T, error)) (T, error) {
	cfg.ApplyDefaults()

	var (
		zero    T
		lastErr error
	)
	backoff := cfg.InitialBackoff
	start := time.Now()

	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				cfg.Logger.Info("operation recovered after retries",
					zap.Int("attempts", attempt),
					zap.Duration("total_time", time.Since(start)),
				)
			}
			return v, nil
		}
		lastErr = err

		if !shouldRetry(cfg, err) {
			cfg.Logger.Debug("error is not retryable", zap.Error(err))
			return zero, unwrapPermanent(err)
		}
		if attempt == cfg.Attempts {
			break
		}

		cfg.Logger.Info("retrying operation after error",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.Attempts),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("operation canceled: %w", ctx.Err())
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * cfg.Multiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	cfg.Logger.Warn("operation failed after all retries exhausted",
		zap.Int("total_attempts", cfg.Attempts),
		zap.Duration("total_time", time.Since(start)),
		zap.Error(lastErr),
	)

	return zero, fmt.Errorf("failed after %d attempts: %w", cfg.Attempts, lastErr)
}

func shouldRetry(cfg Config, err error) bool {
	if IsPermanent(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if cfg.Retryable != nil {
		return cfg.Retryable(err)
	}
	return true
}

func unwrapPermanent(err error) error {
	var p *permanentError
	if errors.As(err, &p) && p == err {
		return p.err
	}
	return err
}
