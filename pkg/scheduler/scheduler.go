// Package scheduler drives dispatch: it polls the post store for due posts,
// claims each one, hands it to the publisher and plants the next occurrence
// of recurring posts.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/publora/publora/pkg/core"
)

const (
	// DefaultInterval is how often the store is polled for due posts.
	DefaultInterval = 30 * time.Second

	// DefaultBatchSize bounds how many due posts one tick dispatches.
	DefaultBatchSize = 50

	// defaultOverdueBoost is how far past due a post must be before it jumps
	// to high priority.
	defaultOverdueBoost = 10 * time.Minute
)

// Dispatcher fans a claimed post out to its platforms. *publisher.Publisher
// satisfies it.
type Dispatcher interface {
	Publish(ctx context.Context, post *core.ScheduledPost, priority core.Priority) error
}

// Scheduler polls for due posts and dispatches them.
type Scheduler struct {
	posts        core.PostStore
	dispatcher   Dispatcher
	interval     time.Duration
	batchSize    int
	overdueBoost time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithBatchSize bounds how many due posts one tick dispatches.
func WithBatchSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithOverdueBoost sets how far past due a post must be to dispatch at high
// priority.
func WithOverdueBoost(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.overdueBoost = d
		}
	}
}

// WithLogger sets the scheduler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithClock injects a clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler over a post store and a dispatcher.
func New(posts core.PostStore, dispatcher Dispatcher, opts ...Option) *Scheduler {
	s := &Scheduler{
		posts:        posts,
		dispatcher:   dispatcher,
		interval:     DefaultInterval,
		batchSize:    DefaultBatchSize,
		overdueBoost: defaultOverdueBoost,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run polls until the context is done. Errors from a single tick are logged
// and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.DispatchDue(ctx); err != nil {
				s.logger.Error("dispatch tick failed", "error", err)
			}
		}
	}
}

// DispatchDue claims and dispatches every due post, up to the batch size.
// It returns how many posts were handed to the dispatcher.
func (s *Scheduler) DispatchDue(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.posts.LoadDuePosts(ctx, now, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("scheduler: load due posts: %w", err)
	}

	dispatched := 0
	for _, post := range due {
		claimed, err := s.posts.MarkProcessing(ctx, post.ID)
		if err != nil {
			s.logger.Error("claim failed", "post_id", post.ID, "error", err)
			continue
		}
		if !claimed {
			// Another dispatcher won the race, or the post was cancelled.
			continue
		}

		if post.Recurrence != nil {
			s.scheduleNext(ctx, post)
		}

		priority := core.PriorityNormal
		if now.Sub(post.ScheduledFor) > s.overdueBoost {
			priority = core.PriorityHigh
		}

		if err := s.dispatcher.Publish(ctx, post, priority); err != nil {
			s.logger.Error("dispatch failed", "post_id", post.ID, "error", err)
			// The claim already moved the post out of scheduled; without a
			// terminal status it would be invisible to due loading, overdue
			// counting and the stuck-job net alike.
			if uerr := s.posts.UpdateStatus(ctx, post.ID, core.PostStatusFailed, nil); uerr != nil {
				s.logger.Error("finalize undispatchable post failed", "post_id", post.ID, "error", uerr)
			}
			continue
		}
		dispatched++
		s.logger.Info("post dispatched",
			"post_id", post.ID, "platforms", post.Platforms, "priority", priority)
	}
	return dispatched, nil
}

// scheduleNext plants the follow-up occurrence of a recurring post. The
// clone carries everything except results; the rule decides whether another
// occurrence exists.
func (s *Scheduler) scheduleNext(ctx context.Context, post *core.ScheduledPost) {
	next, ok := post.Recurrence.Next(post.ScheduledFor)
	if !ok {
		s.logger.Info("recurrence exhausted", "post_id", post.ID)
		return
	}

	clone := &core.ScheduledPost{
		Owner:        post.Owner,
		Content:      post.Content,
		Platforms:    post.Platforms,
		ImageURLs:    post.ImageURLs,
		Credentials:  post.Credentials,
		ScheduledFor: next,
		Recurrence:   post.Recurrence,
		Status:       core.PostStatusScheduled,
	}
	if err := s.posts.Create(ctx, clone); err != nil {
		s.logger.Error("schedule next occurrence failed", "post_id", post.ID, "error", err)
		return
	}
	s.logger.Info("next occurrence scheduled",
		"post_id", post.ID, "next_id", clone.ID, "scheduled_for", next)
}
