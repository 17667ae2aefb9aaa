package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type waitErr struct{ d time.Duration }

func (e waitErr) Error() string              { return "slow down" }
func (e waitErr) RetryAfter() time.Duration { return e.d }

func TestWithRetry_Success_FirstAttempt(t *testing.T) {
	cfg := Config{MaxAttempts: 3, Delays: []time.Duration{10 * time.Millisecond}}

	attempts := 0
	err := WithRetry(context.Background(), cfg, func() error {
		attempts++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithRetry_Success_AfterRetries(t *testing.T) {
	cfg := Config{MaxAttempts: 3, Delays: []time.Duration{time.Millisecond, 2 * time.Millisecond}}

	attempts := 0
	err := WithRetry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_ExhaustedAttempts(t *testing.T) {
	cfg := Config{MaxAttempts: 3, Delays: []time.Duration{time.Millisecond}}
	persistent := errors.New("persistent error")

	attempts := 0
	err := WithRetry(context.Background(), cfg, func() error {
		attempts++
		return persistent
	})

	assert.ErrorIs(t, err, persistent)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_NonRetryable(t *testing.T) {
	fatal := errors.New("unauthorized")
	cfg := Config{
		MaxAttempts: 5,
		Delays:      []time.Duration{time.Millisecond},
		Retryable:   func(err error) bool { return !errors.Is(err, fatal) },
	}

	attempts := 0
	err := WithRetry(context.Background(), cfg, func() error {
		attempts++
		return fatal
	})

	assert.Equal(t, fatal, err)
	assert.Equal(t, 1, attempts)
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 3, Delays: []time.Duration{time.Hour}}

	attempts := 0
	err := WithRetry(ctx, cfg, func() error {
		attempts++
		cancel()
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDelayFor(t *testing.T) {
	cfg := Config{Delays: []time.Duration{time.Second, 2 * time.Second}}

	assert.Equal(t, time.Second, delayFor(cfg, 1, errors.New("x")))
	assert.Equal(t, 2*time.Second, delayFor(cfg, 2, errors.New("x")))
	assert.Equal(t, 2*time.Second, delayFor(cfg, 7, errors.New("x")), "last delay repeats")
	assert.Equal(t, 3*time.Second, delayFor(cfg, 1, waitErr{3 * time.Second}), "server wait wins")
	assert.Equal(t, time.Duration(0), delayFor(Config{}, 1, errors.New("x")))
}
