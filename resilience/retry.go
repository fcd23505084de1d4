package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration
	// BackoffFactor is the multiplier applied after every retry.
	BackoffFactor float64
	// Jitter randomizes each delay by +/- this fraction (0.0 to 1.0).
	Jitter float64
	// RetryIf decides whether an error is worth another attempt.
	RetryIf func(error) bool
	// OnRetry is called before sleeping for the next attempt.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultRetryIf retries all errors except context cancellation.
func DefaultRetryIf(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = 2.0
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		c.Jitter = 0
	}
	if c.RetryIf == nil {
		c.RetryIf = DefaultRetryIf
	}
	return c
}

// NewBackOff builds the exponential schedule described by cfg, limited to
// cfg.MaxAttempts-1 retries and bound to ctx.
func NewBackOff(ctx context.Context, cfg RetryConfig) backoff.BackOffContext {
	cfg = cfg.withDefaults()
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.InitialBackoff
	exp.MaxInterval = cfg.MaxBackoff
	exp.Multiplier = cfg.BackoffFactor
	exp.RandomizationFactor = cfg.Jitter
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(cfg.MaxAttempts-1)), ctx)
}

// Retry runs fn until it succeeds, returns an error rejected by RetryIf, the
// attempt budget is spent or ctx is done. fn receives the 1-based attempt
// number. The last error from fn is returned; a done context returns ctx.Err().
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var (
		result  T
		attempt int
	)
	op := func() error {
		attempt++
		r, err := fn(ctx, attempt)
		if err == nil {
			result = r
			return nil
		}
		if !cfg.RetryIf(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}
	}

	if err := backoff.RetryNotify(op, NewBackOff(ctx, cfg), notify); err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// RetryFunc is Retry for functions that return only an error.
func RetryFunc(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context, attempt int) error) error {
	_, err := Retry(ctx, cfg, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, fn(ctx, attempt)
	})
	return err
}
