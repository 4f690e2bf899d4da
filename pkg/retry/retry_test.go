package retry

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/nodeflow/errors"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return errors.ErrConnectionLost
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	cause := stderrors.New("broker unavailable")
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, errors.ErrMaxRetriesExceeded)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"marked", NonRetryable(stderrors.New("bad request"))},
		{"invalid", errors.WrapInvalid(errors.ErrInvalidConfig, "nats", "Publish", "validate subject")},
		{"fatal", errors.WrapFatal(stderrors.New("closed"), "nats", "Publish", "publish")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Do(context.Background(), fastConfig(5), func() error {
				attempts++
				return tt.err
			})
			assert.Equal(t, 1, attempts)
			assert.ErrorIs(t, err, tt.err)
			assert.NotErrorIs(t, err, errors.ErrMaxRetriesExceeded)
		})
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(10)
	cfg.InitialDelay = 100 * time.Millisecond
	cfg.MaxDelay = time.Second

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		return stderrors.New("timeout")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, attempts, 10)
}

func TestDo_BackoffSchedule(t *testing.T) {
	var delays []time.Duration
	cfg := Config{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		OnRetry: func(_ int, _ error, delay time.Duration) {
			delays = append(delays, delay)
		},
	}

	_ = Do(context.Background(), cfg, func() error { return stderrors.New("timeout") })

	assert.Equal(t, []time.Duration{
		time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond, 5 * time.Millisecond,
	}, delays)
}

func TestDo_SeededJitterIsReproducible(t *testing.T) {
	run := func() []time.Duration {
		var delays []time.Duration
		cfg := fastConfig(4)
		cfg.InitialDelay = 4 * time.Millisecond
		cfg.AddJitter = true
		cfg.Jitter = SeededJitter(42)
		cfg.OnRetry = func(_ int, _ error, delay time.Duration) {
			delays = append(delays, delay)
		}
		_ = Do(context.Background(), cfg, func() error { return stderrors.New("timeout") })
		return delays
	}

	first, second := run(), run()
	assert.Equal(t, first, second)
	for i, d := range first {
		base := cfg4Base(i)
		assert.GreaterOrEqual(t, d, base)
		assert.Less(t, d, base+base/4+1)
	}
}

func cfg4Base(i int) time.Duration {
	return (4 * time.Millisecond) << i
}

func TestDo_InvalidConfig(t *testing.T) {
	err := Do(context.Background(), Config{InitialDelay: -1}, func() error { return nil })
	assert.True(t, errors.IsInvalid(err))

	err = Do(context.Background(), Config{InitialDelay: time.Second, MaxDelay: time.Millisecond},
		func() error { return nil })
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Config{}, func() error {
		attempts++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	result, err := DoWithResult(context.Background(), fastConfig(3), func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", stderrors.New("not ready")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestPresets(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, Quick().Validate())
	assert.Equal(t, 3, DefaultConfig().MaxAttempts)
	assert.Equal(t, 10, Quick().MaxAttempts)
}

func ExampleDo() {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		if attempts == 1 {
			return errors.ErrConnectionTimeout
		}
		return nil
	})
	fmt.Println(attempts, err)
	// Output: 2 <nil>
}
