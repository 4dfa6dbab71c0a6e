// Package retry wraps a single platform adapter call with bounded
// exponential backoff. Only transient failure kinds are retried;
// structurally unfixable failures surface immediately.
package retry

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/publora/publora/pkg/core"
)

// Config holds the backoff policy for one adapter call.
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	// Default: 3
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	// Default: 1s
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay.
	// Default: 10s
	MaxDelay time.Duration

	// Multiplier is applied to the delay after each attempt.
	// Default: 2.0
	Multiplier float64
}

// DefaultConfig returns the default retry policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// PublishFunc is one adapter publish call. It never returns a raw error;
// failures arrive as an unsuccessful PublishResult with an ErrorKind.
type PublishFunc func(ctx context.Context) *core.PublishResult

// Executor retries a PublishFunc according to its Config.
type Executor struct {
	config Config
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithSleeper injects the sleep function, used by tests to skip real delays.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		e.sleep = sleep
	}
}

// New creates an Executor. Zero fields in cfg fall back to defaults.
func New(cfg Config, opts ...Option) *Executor {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}

	e := &Executor{
		config: cfg,
		logger: slog.Default(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs fn until it succeeds, fails with a non-retryable kind, or
// attempts are exhausted. The last failure is returned once retries run out.
func (e *Executor) Execute(ctx context.Context, fn PublishFunc) *core.PublishResult {
	var last *core.PublishResult

	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		last = fn(ctx)
		if last.Success {
			return last
		}
		if !last.ErrorKind.Retryable() {
			return last
		}
		if attempt == e.config.MaxAttempts {
			break
		}

		delay := e.Backoff(attempt)
		e.logger.Debug("publish attempt failed, retrying",
			"platform", last.Platform,
			"kind", last.ErrorKind,
			"attempt", attempt,
			"delay", delay)

		if err := e.sleep(ctx, delay); err != nil {
			// Cancelled mid-backoff: surface the failure we already have.
			return last
		}
	}
	return last
}

// Backoff returns the delay before the retry that follows attempt n
// (1-based): min(MaxDelay, InitialDelay x Multiplier^(n-1)).
func (e *Executor) Backoff(attempt int) time.Duration {
	d := time.Duration(float64(e.config.InitialDelay) * math.Pow(e.config.Multiplier, float64(attempt-1)))
	if d > e.config.MaxDelay {
		d = e.config.MaxDelay
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
