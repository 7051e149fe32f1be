// Package retry wraps a fallible operation with bounded retries and an
// overall wall-clock deadline. The delay between attempts is fixed, not
// exponential: PX-Web endpoints shed load with hard quotas, so spacing
// retries like regular calls behaves better than backing off.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pxfetch_retries_total",
		Help: "Total number of retry attempts",
	})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pxfetch_retry_exhausted_total",
		Help: "Total number of operations that exhausted their retry budget",
	})

	retryTimeoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pxfetch_retry_timeout_total",
		Help: "Total number of operations that hit their retry deadline",
	})
)

// Errors returned when an operation cannot be completed. Both wrap the
// operation's last error for errors.Is/As inspection.
var (
	// ErrRetryExhausted is returned when the attempt budget is used up.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrTimeout is returned when the wall-clock deadline passes before
	// an attempt succeeds.
	ErrTimeout = errors.New("retry deadline exceeded")
)

// Config holds the retry policy.
type Config struct {
	// Wait is the fixed delay between attempts.
	Wait time.Duration

	// MaxTries is the total number of attempts, including the first.
	MaxTries int

	// Timeout bounds the wall-clock time since the first attempt started.
	// Zero means no deadline.
	Timeout time.Duration

	// Retryable restricts which errors are retried. A nil func retries
	// every error; when set, a non-retryable error aborts immediately and
	// is returned unwrapped.
	Retryable func(error) bool
}

// DefaultConfig returns the retry policy used for PX-Web data requests.
func DefaultConfig() Config {
	return Config{
		Wait:     10 * time.Second,
		MaxTries: 10,
	}
}

// Do runs op until it succeeds, the attempt budget is exhausted, or the
// deadline passes. Context cancellation during the inter-attempt wait
// returns the context error.
func Do(ctx context.Context, cfg Config, op func(context.Context) error) error {
	if cfg.MaxTries < 1 {
		cfg.MaxTries = 1
	}

	start := time.Now()
	var lastErr error

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info().
					Int("attempt", attempt).
					Msg("Operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}

		if attempt >= cfg.MaxTries {
			retryExhaustedTotal.Inc()
			log.Warn().
				Err(lastErr).
				Int("max_tries", cfg.MaxTries).
				Msg("Retry attempts exhausted")
			return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, cfg.MaxTries, lastErr)
		}

		retriesTotal.Inc()
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("wait", cfg.Wait).
			Msg("Retrying after failure")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Wait):
		}

		if cfg.Timeout > 0 && time.Since(start) >= cfg.Timeout {
			retryTimeoutTotal.Inc()
			log.Warn().
				Err(lastErr).
				Dur("timeout", cfg.Timeout).
				Msg("Retry deadline exceeded")
			return fmt.Errorf("%w: %w", ErrTimeout, lastErr)
		}
	}
}
