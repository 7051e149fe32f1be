// Package ratelimit implements a shared sliding-window call gate.
// It bounds how many calls may start within a rolling window and enforces
// a minimum spacing between consecutive calls, which is what keeps a bulk
// download inside a statistics API's published request quota.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for rate limit gating.
var (
	rateLimitAcquiresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pxfetch_rate_limit_acquires_total",
		Help: "Total number of calls admitted through the rate limiter",
	})

	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pxfetch_rate_limit_wait_seconds",
		Help:    "Time spent waiting for rate limit admission",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
	})
)

// Config holds the limiter configuration.
type Config struct {
	// Window is the duration of the sliding window.
	Window time.Duration

	// MaxCalls is the maximum number of calls that may start within Window.
	MaxCalls int

	// MinSpacing is the minimum gap between two consecutive call starts.
	// Zero selects Window / MaxCalls / 2.
	MinSpacing time.Duration

	// PollJitter is the upper bound of the randomized re-check sleep while
	// waiting. Zero selects Window / MaxCalls / 10.
	PollJitter time.Duration
}

// DefaultConfig returns the limiter configuration matching the SCB API
// quota of 10 requests per 10 seconds, with one call of headroom.
func DefaultConfig() Config {
	return Config{
		Window:   10 * time.Second,
		MaxCalls: 9,
	}
}

// Limiter is a sliding-window call gate. One instance is shared by every
// concurrent fetch of a download; Acquire is safe for concurrent use.
type Limiter struct {
	window     time.Duration
	maxCalls   int
	minSpacing time.Duration
	pollJitter time.Duration

	mu    sync.Mutex
	calls []time.Time // FIFO of the most recent maxCalls call starts

	logger zerolog.Logger
	now    func() time.Time
}

// New creates a limiter from cfg, filling in defaulted spacing and jitter.
func New(cfg Config) *Limiter {
	if cfg.MaxCalls <= 0 {
		cfg.MaxCalls = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	perCall := cfg.Window / time.Duration(cfg.MaxCalls)
	if cfg.MinSpacing <= 0 {
		cfg.MinSpacing = perCall / 2
	}
	if cfg.PollJitter <= 0 {
		cfg.PollJitter = perCall / 10
	}

	return &Limiter{
		window:     cfg.Window,
		maxCalls:   cfg.MaxCalls,
		minSpacing: cfg.MinSpacing,
		pollJitter: cfg.PollJitter,
		logger:     log.With().Str("component", "ratelimit").Logger(),
		now:        time.Now,
	}
}

// Acquire blocks the calling goroutine until a call may start, records the
// call start and returns. It returns the context error if ctx is cancelled
// while waiting. The check-and-record step runs under the limiter mutex,
// so concurrent wakeups cannot overshoot the window bound.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := l.now()
	waited := false

	for {
		l.mu.Lock()
		if l.admit() {
			l.record()
			l.mu.Unlock()

			rateLimitAcquiresTotal.Inc()
			if waited {
				wait := l.now().Sub(start)
				rateLimitWaitSeconds.Observe(wait.Seconds())
				l.logger.Debug().
					Dur("waited", wait).
					Msg("Rate limit admission after wait")
			}
			return nil
		}
		l.mu.Unlock()

		waited = true
		sleep := time.Duration(rand.Int63n(int64(l.pollJitter) + 1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// admit reports whether a call may start now. Callers hold l.mu.
func (l *Limiter) admit() bool {
	now := l.now()
	if len(l.calls) == l.maxCalls && now.Sub(l.calls[0]) <= l.window {
		return false
	}
	if len(l.calls) > 0 && now.Sub(l.calls[len(l.calls)-1]) <= l.minSpacing {
		return false
	}
	return true
}

// record pushes the current time onto the FIFO. Callers hold l.mu.
func (l *Limiter) record() {
	if len(l.calls) == l.maxCalls {
		copy(l.calls, l.calls[1:])
		l.calls = l.calls[:len(l.calls)-1]
	}
	l.calls = append(l.calls, l.now())
}
