// retry.go implements the bounded exponential-backoff retry engine that
// wraps every remote generation call.
package charclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"charforge/core"
	"charforge/logging"
)

// Retry default tuning values.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 1 * time.Second
	DefaultMaxDelay   = 10 * time.Second
	DefaultTimeout    = 60 * time.Second

	// jitterFraction is the maximum jitter as a fraction of the exponential
	// term: delay = base*2^n + uniform(0, jitterFraction*base*2^n).
	jitterFraction = 0.3
)

// RetryConfig tunes the retry engine. Zero values fall back to defaults.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt, so a
	// permanently failing call is attempted MaxRetries+1 times in total.
	MaxRetries int

	// BaseDelay is the first backoff delay; each retry doubles it.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay including jitter.
	MaxDelay time.Duration

	// Timeout is the hard per-attempt deadline. An attempt that exceeds it
	// is aborted and surfaces as a NetworkError.
	Timeout time.Duration
}

// DefaultRetryConfig returns the standard tuning: 3 retries, 1s base, 10s
// cap, 60s per-attempt timeout.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
		Timeout:    DefaultTimeout,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Retrier wraps a single outbound call with bounded
// exponential-backoff-with-jitter retry, per-attempt timeout enforcement,
// and error classification via core.IsRetryable.
//
// The sequence of delays is deterministic apart from jitter: with a fixed
// rand source, delays are reproducible within the jitter bound.
type Retrier struct {
	config RetryConfig
	log    *logging.Logger

	// randFloat returns a uniform value in [0, 1). Injectable for tests.
	randFloat func() float64

	// sleep blocks for the given duration or until the context is done.
	// Injectable for tests so backoff can be observed without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a Retrier with the given config. A nil logger is
// replaced with a nop logger.
func NewRetrier(config RetryConfig, log *logging.Logger) *Retrier {
	if log == nil {
		log = logging.NewNop()
	}
	return &Retrier{
		config:    config.withDefaults(),
		log:       log.Named("retry"),
		randFloat: rand.Float64,
		sleep:     sleepContext,
	}
}

// Do runs fn up to MaxRetries+1 times. Each attempt gets its own timeout
// context; a deadline abort is converted to a NetworkError so it classifies
// as retryable. Non-retryable errors and exhausted budgets propagate the
// last error unchanged.
//
// The operation name is used in logs and timeout messages only.
func (r *Retrier) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}

		if errors.Is(err, context.DeadlineExceeded) {
			err = &core.NetworkError{
				Message: fmt.Sprintf("%s timed out after %s", operation, r.config.Timeout),
				Err:     err,
			}
		}
		lastErr = err

		if attempt >= r.config.MaxRetries {
			r.log.Warn("retry budget exhausted",
				zap.String("operation", operation),
				zap.Int("attempts", attempt+1),
				zap.Error(lastErr))
			return lastErr
		}
		if !core.IsRetryable(err) {
			return lastErr
		}

		delay := r.delayFor(attempt)
		r.log.Debug("retrying after backoff",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			// Caller cancelled during backoff; surface the cancellation.
			return sleepErr
		}
	}
}

// delayFor computes min(base*2^attempt + jitter, maxDelay) where jitter is
// uniform in [0, jitterFraction * base*2^attempt).
func (r *Retrier) delayFor(attempt int) time.Duration {
	exp := float64(r.config.BaseDelay) * math.Pow(2, float64(attempt))
	jitter := r.randFloat() * jitterFraction * exp
	delay := time.Duration(exp + jitter)
	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}
	return delay
}

// sleepContext blocks for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
