package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig bounds a retried provider call.
type RetryConfig struct {
	// Provider names the backend for error wrapping and logs.
	Provider string

	// AttemptTimeout is the deadline applied to each individual attempt.
	// Zero means no per-attempt deadline beyond the parent context.
	AttemptTimeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	// The engine default is 1: one attempt, one retry.
	MaxRetries int
}

// Do runs fn under cfg's retry policy and returns its result.
//
// Each attempt gets its own deadline derived from ctx. A transient failure is
// retried up to cfg.MaxRetries times; a permanent failure or an exhausted
// parent context returns immediately. The returned error is always a
// [*ProviderError] (except when the parent ctx itself is done, in which case
// ctx.Err() is returned unwrapped so callers can distinguish session
// cancellation from provider failure).
func Do[R any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (R, error)) (R, error) {
	var zero R
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if cfg.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.AttemptTimeout)
		}

		result, err := fn(attemptCtx)
		cancel()
		if err == nil {
			return result, nil
		}

		lastErr = Classify(cfg.Provider, err)
		if !IsTransient(lastErr) {
			return zero, lastErr
		}
		// The parent being done means the timeout belongs to the session,
		// not the attempt; retrying would reuse an exhausted context.
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if attempt < cfg.MaxRetries {
			slog.Warn("provider call failed, retrying",
				"provider", cfg.Provider,
				"attempt", attempt+1,
				"error", err)
		}
	}

	return zero, fmt.Errorf("retries exhausted: %w", lastErr)
}
