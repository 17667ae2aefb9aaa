// Package retry provides configurable retry logic with backoff for transient remote failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts int
	Delays      []time.Duration
	// Retryable decides whether an error is worth another attempt. Nil retries every error.
	Retryable func(error) bool
}

// DefaultConfig retries three times with a doubling delay.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Delays:      []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second},
	}
}

// Delayer is implemented by errors that carry a server-provided wait, such as a Retry-After header.
type Delayer interface {
	RetryAfter() time.Duration
}

// WithRetry executes fn, retrying with the configured delays until it succeeds, returns a
// non-retryable error, or MaxAttempts is reached. The last error is returned wrapped with context.
func WithRetry(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delayFor(cfg, attempt, lastErr)):
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}
	}

	if cfg.MaxAttempts == 1 {
		return lastErr
	}
	return fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// delayFor picks the wait before attempt. A server-provided wait wins over the configured schedule.
func delayFor(cfg Config, attempt int, lastErr error) time.Duration {
	var d Delayer
	if errors.As(lastErr, &d) && d.RetryAfter() > 0 {
		return d.RetryAfter()
	}
	if len(cfg.Delays) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx >= len(cfg.Delays) {
		idx = len(cfg.Delays) - 1
	}
	return cfg.Delays[idx]
}
