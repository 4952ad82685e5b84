package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func fastConfig() Config {
	return Config{
		Attempts:       3,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	t.Run("applies all defaults when empty", func(t *testing.T) {
		cfg := Config{}
		cfg.ApplyDefaults()

		assert.Equal(t, 3, cfg.Attempts)
		assert.Equal(t, time.Second, cfg.InitialBackoff)
		assert.Equal(t, 30*time.Second, cfg.MaxBackoff)
		assert.Equal(t, 2.0, cfg.Multiplier)
		assert.NotNil(t, cfg.Logger)
	})

	t.Run("preserves non-zero values", func(t *testing.T) {
		cfg := Config{Attempts: 5, InitialBackoff: 2 * time.Second, MaxBackoff: time.Minute, Multiplier: 3}
		cfg.ApplyDefaults()

		assert.Equal(t, 5, cfg.Attempts)
		assert.Equal(t, 2*time.Second, cfg.InitialBackoff)
		assert.Equal(t, time.Minute, cfg.MaxBackoff)
		assert.Equal(t, 3.0, cfg.Multiplier)
	})
}

func TestDo_Success(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastConfig(), func(context.Context) (string, error) {
		calls++
		return "main", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "main", v)
	assert.Equal(t, 1, calls)
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cfg := fastConfig()
	cfg.Logger = zap.New(core)

	calls := 0
	v, err := Do(context.Background(), cfg, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("connection reset")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, logs.FilterMessage("retrying operation after error").Len())
	assert.Equal(t, 1, logs.FilterMessage("operation recovered after retries").Len())
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("bad gateway")
	calls := 0
	_, err := Do(context.Background(), fastConfig(), func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, sentinel
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestDo_BackoffDoubles(t *testing.T) {
	cfg := Config{Attempts: 3, InitialBackoff: 20 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}

	var stamps []time.Time
	_, _ = Do(context.Background(), cfg, func(context.Context) (int, error) {
		stamps = append(stamps, time.Now())
		return 0, errors.New("transient")
	})

	require.Len(t, stamps, 3)
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 20*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 40*time.Millisecond)
}

func TestDo_PermanentError(t *testing.T) {
	notFound := errors.New("404 Not Found")
	calls := 0
	_, err := Do(context.Background(), fastConfig(), func(context.Context) (int, error) {
		calls++
		return 0, Permanent(notFound)
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, notFound, err)
	assert.False(t, IsPermanent(err))
}

func TestDo_RetryableClassifier(t *testing.T) {
	unauthorized := errors.New("401 Unauthorized")
	cfg := fastConfig()
	cfg.Retryable = func(err error) bool { return !errors.Is(err, unauthorized) }

	calls := 0
	_, err := Do(context.Background(), cfg, func(context.Context) (int, error) {
		calls++
		return 0, unauthorized
	})

	assert.ErrorIs(t, err, unauthorized)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{Attempts: 3, InitialBackoff: time.Hour}

	calls := 0
	_, err := Do(ctx, cfg, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("transient")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPermanent_Nil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}
