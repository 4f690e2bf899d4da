package retry

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/c360/nodeflow/errors"
)

// Jitter returns a random value in [0, n). It must be safe for concurrent use.
type Jitter func(n int64) int64

var (
	defaultRandMu sync.Mutex
	defaultRand   = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x6e6f6465))
)

func defaultJitter(n int64) int64 {
	defaultRandMu.Lock()
	defer defaultRandMu.Unlock()
	return defaultRand.Int64N(n)
}

// SeededJitter returns a deterministic jitter source for tests and replays.
func SeededJitter(seed uint64) Jitter {
	var mu sync.Mutex
	r := rand.New(rand.NewPCG(seed, seed))
	return func(n int64) int64 {
		mu.Lock()
		defer mu.Unlock()
		return r.Int64N(n)
	}
}

// NonRetryableError wraps errors that should not be retried
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable marks an error as permanent.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err must not be retried: it was marked with
// NonRetryable, or it classifies as invalid or fatal.
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	if stderrors.As(err, &nre) {
		return true
	}
	return errors.IsInvalid(err) || errors.IsFatal(err)
}

// Config provides retry configuration
type Config struct {
	MaxAttempts  int           // Maximum number of attempts (0 = run once)
	InitialDelay time.Duration // Delay before the second attempt
	MaxDelay     time.Duration // Cap on any single delay
	Multiplier   float64       // Backoff multiplier
	AddJitter    bool          // Add up to 25% random delay

	// Jitter overrides the process-wide random source.
	Jitter Jitter
	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns defaults suited to a single network publish.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Quick returns a config for fast retries during startup.
func Quick() Config {
	return Config{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   1.5,
		AddJitter:    true,
	}
}

// Validate checks the configuration after defaults are applied.
func (c Config) Validate() error {
	if c.InitialDelay < 0 || c.MaxDelay < 0 || c.Multiplier < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Validate",
			"negative delay or multiplier")
	}
	if c.MaxDelay > 0 && c.MaxDelay < c.InitialDelay {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Validate",
			"MaxDelay below InitialDelay")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	if c.Multiplier > 1000 {
		c.Multiplier = 1000
	}
	if c.Jitter == nil {
		c.Jitter = defaultJitter
	}
	return c
}

// next returns the delay following delay, capped at MaxDelay.
func (c Config) next(delay time.Duration) time.Duration {
	nextDelay := float64(delay) * c.Multiplier
	if nextDelay > float64(c.MaxDelay) || nextDelay > float64(time.Duration(1<<63-1)) {
		return c.MaxDelay
	}
	return time.Duration(nextDelay)
}

func (c Config) sleepFor(delay time.Duration) time.Duration {
	if !c.AddJitter || delay/4 <= 0 {
		return delay
	}
	return delay + time.Duration(c.Jitter(int64(delay/4)))
}

// Do executes fn with exponential backoff until it succeeds, returns a
// non-retryable error, the attempts run out, or ctx is done.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.withDefaults()

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if IsNonRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt+1, ctx.Err())
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		sleep := cfg.sleepFor(delay)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, sleep)
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}

		delay = cfg.next(delay)
	}

	return fmt.Errorf("retry failed after %d attempts: %w: %w",
		cfg.MaxAttempts, errors.ErrMaxRetriesExceeded, lastErr)
}

// DoWithResult executes fn with retry and returns both result and error
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}
