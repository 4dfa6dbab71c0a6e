// Package ratelimit gates outbound platform calls with a sliding-window
// request budget. One Limiter exists per (platform, credential) pair; the
// Registry hands them out and keeps the per-platform defaults.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const defaultPollInterval = 100 * time.Millisecond

// Limiter is a sliding-window rate limiter. After pruning entries older
// than the window, the timestamp list never exceeds the configured max.
type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	poll   time.Duration
	stamps []time.Time
	now    func() time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithPollInterval sets how often WaitForSlot re-checks for capacity.
func WithPollInterval(d time.Duration) Option {
	return func(l *Limiter) {
		l.poll = d
	}
}

// WithClock injects a clock, used by tests to control the window.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter allowing max requests per window.
func New(max int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		max:    max,
		window: window,
		poll:   defaultPollInterval,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Max returns the request budget per window.
func (l *Limiter) Max() int { return l.max }

// Window returns the sliding window size.
func (l *Limiter) Window() time.Duration { return l.window }

// prune drops timestamps older than the window. Callers hold l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}

// CanProceed reports whether a request would fit in the current window.
func (l *Limiter) CanProceed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.stamps) < l.max
}

// Record appends a request timestamp without checking capacity.
func (l *Limiter) Record() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	l.stamps = append(l.stamps, now)
}

// TryAcquire checks capacity and records the request as a single critical
// section: concurrent callers can never both observe capacity and overshoot.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	if len(l.stamps) >= l.max {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}

// WaitForSlot blocks until a slot is acquired or the context is done. Only
// the calling goroutine suspends; the acquisition itself is atomic.
func (l *Limiter) WaitForSlot(ctx context.Context) error {
	for {
		if l.TryAcquire() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.poll):
		}
	}
}
