// Package publisher fans one scheduled post out to its target platforms and
// aggregates the per-platform results. Each (post, platform) pair becomes one
// queue job gated by the platform rate limiter and wrapped in retries; posts
// report partial success per platform rather than all-or-nothing.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/publora/publora/pkg/core"
	"github.com/publora/publora/pkg/queue"
	"github.com/publora/publora/pkg/ratelimit"
	"github.com/publora/publora/pkg/retry"
)

var (
	// ErrUnknownPost is returned when cancelling a post the publisher is not
	// tracking.
	ErrUnknownPost = errors.New("publisher: unknown post")

	// ErrAlreadyProcessing is returned when a cancellation arrives after a
	// platform job has started. A processing job runs to completion; its
	// result is recorded but not surfaced.
	ErrAlreadyProcessing = errors.New("publisher: post already processing")

	// ErrAlreadyFinished is returned when a cancellation arrives after at
	// least one platform job has finished, meaning the post may already be
	// partially published.
	ErrAlreadyFinished = errors.New("publisher: post already finished publishing")
)

// Adapter is the per-platform publish surface the publisher dispatches to.
// Every adapter in the platform package satisfies it.
type Adapter interface {
	Platform() core.Platform
	Publish(ctx context.Context, req *core.PublishRequest) *core.PublishResult
}

// fanout tracks one post's outstanding platform jobs.
type fanout struct {
	jobIDs    map[core.Platform]string
	remaining int
	results   map[core.Platform]core.PublishResult
	cancelled bool
}

// Publisher owns the dispatch pipeline: queue, rate limiters, retry
// executor and the adapter set.
type Publisher struct {
	posts    core.PostStore
	adapters map[core.Platform]Adapter
	limits   *ratelimit.Registry
	executor *retry.Executor
	queue    *queue.Queue
	logger   *slog.Logger

	retryCfg  retry.Config
	queueOpts []queue.Option

	mu      sync.Mutex
	pending map[string]*fanout
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithRateLimits replaces the default per-platform rate limiter registry.
func WithRateLimits(limits *ratelimit.Registry) Option {
	return func(p *Publisher) { p.limits = limits }
}

// WithRetryConfig tunes the per-call retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(p *Publisher) { p.retryCfg = cfg }
}

// WithQueueOptions passes options through to the underlying job queue.
func WithQueueOptions(opts ...queue.Option) Option {
	return func(p *Publisher) { p.queueOpts = append(p.queueOpts, opts...) }
}

// WithLogger sets the publisher's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// New creates a Publisher over a post store and a set of platform adapters.
func New(posts core.PostStore, adapters []Adapter, opts ...Option) *Publisher {
	p := &Publisher{
		posts:    posts,
		adapters: make(map[core.Platform]Adapter, len(adapters)),
		logger:   slog.Default(),
		pending:  make(map[string]*fanout),
	}
	for _, a := range adapters {
		p.adapters[a.Platform()] = a
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.limits == nil {
		p.limits = ratelimit.NewRegistry()
	}
	p.executor = retry.New(p.retryCfg, retry.WithLogger(p.logger))
	p.queue = queue.New(p.handle, append([]queue.Option{queue.WithLogger(p.logger)}, p.queueOpts...)...)
	return p
}

// Queue exposes the underlying job queue for monitoring.
func (p *Publisher) Queue() *queue.Queue { return p.queue }

// Start runs the worker pool until the context is cancelled.
func (p *Publisher) Start(ctx context.Context) error {
	return p.queue.Start(ctx)
}

// Publish fans a post out to every target platform: one idempotent job per
// (post, platform) pair. Platforms without a registered adapter fail
// immediately without consuming a job.
func (p *Publisher) Publish(ctx context.Context, post *core.ScheduledPost, priority core.Priority) error {
	if len(post.Platforms) == 0 {
		return fmt.Errorf("publisher: post %s has no target platforms", post.ID)
	}

	fo := &fanout{
		jobIDs:  make(map[core.Platform]string),
		results: make(map[core.Platform]core.PublishResult),
	}

	for _, target := range post.Platforms {
		req := core.NewPublishRequest(post, target)

		if _, ok := p.adapters[target]; !ok {
			result := core.Failed(target, core.NewPublishError(
				core.KindPlatformError, "no adapter registered for platform"))
			fo.results[target] = *result
			if err := p.posts.SaveResult(ctx, post.ID, *result); err != nil {
				p.logger.Error("save result failed", "post_id", post.ID, "error", err)
			}
			continue
		}

		job := &core.Job{
			Type:     "publish",
			Request:  req,
			Priority: priority,
		}
		jobID, err := p.queue.EnqueueUnique(job, req.IdempotencyKey())
		if errors.Is(err, queue.ErrDuplicateJob) {
			p.logger.Warn("duplicate dispatch suppressed", "post_id", post.ID, "platform", target)
			continue
		}
		if err != nil {
			return fmt.Errorf("publisher: enqueue %s/%s: %w", post.ID, target, err)
		}
		fo.jobIDs[target] = jobID
		fo.remaining++
	}

	if fo.remaining == 0 {
		// Nothing enqueued: every platform failed locally or was a duplicate.
		if len(fo.results) > 0 {
			return p.posts.UpdateStatus(ctx, post.ID, core.PostStatusFailed, fo.results)
		}
		return nil
	}

	p.mu.Lock()
	p.pending[post.ID] = fo
	p.mu.Unlock()
	return nil
}

// Cancel withdraws a post before any of its platform jobs starts processing.
// Once a job is processing it runs to completion and Cancel fails.
func (p *Publisher) Cancel(ctx context.Context, postID string) error {
	p.mu.Lock()
	fo, ok := p.pending[postID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownPost, postID)
	}

	// A finished job means content may already be live, which outranks
	// "still in flight" when reporting why the cancel was refused.
	var processing core.Platform
	hasProcessing := false
	for target, jobID := range fo.jobIDs {
		job, found := p.queue.Get(jobID)
		if !found || job.Status == core.JobStatusPending {
			continue
		}
		if job.Status.IsTerminal() {
			p.mu.Unlock()
			return fmt.Errorf("%w: %s job already %s", ErrAlreadyFinished, target, job.Status)
		}
		processing, hasProcessing = target, true
	}
	if hasProcessing {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s job already processing", ErrAlreadyProcessing, processing)
	}

	removed := 0
	for _, jobID := range fo.jobIDs {
		if p.queue.Remove(jobID) {
			removed++
		}
	}
	// A job that started between the check and the removal runs to
	// completion; its result is recorded but never surfaced.
	fo.cancelled = true
	fo.remaining -= removed
	if fo.remaining <= 0 {
		delete(p.pending, postID)
	}
	p.mu.Unlock()

	return p.posts.UpdateStatus(ctx, postID, core.PostStatusCancelled, nil)
}

// handle is the queue handler for one platform job: rate limit gate, retried
// adapter call, result persistence, then per-post aggregation.
func (p *Publisher) handle(ctx context.Context, job *core.Job) error {
	req := job.Request
	adapter := p.adapters[req.Platform]

	limiter := p.limits.For(req.Platform, limiterKey(req))
	if err := limiter.WaitForSlot(ctx); err != nil {
		result := core.Failed(req.Platform, core.WrapPublishError(
			core.KindRateLimitExceeded, "gave up waiting for a rate limit slot", err))
		p.record(ctx, req.PostID, *result)
		return core.NewPublishError(result.ErrorKind, result.Error)
	}

	result := p.executor.Execute(ctx, func(ctx context.Context) *core.PublishResult {
		return adapter.Publish(ctx, req)
	})

	p.record(ctx, req.PostID, *result)
	if !result.Success {
		return core.NewPublishError(result.ErrorKind, result.Error)
	}
	return nil
}

// record persists one platform result and finalizes the post once its last
// outstanding platform reports in. Results for cancelled posts are recorded
// but never change the post's surfaced status.
func (p *Publisher) record(ctx context.Context, postID string, result core.PublishResult) {
	if err := p.posts.SaveResult(ctx, postID, result); err != nil {
		p.logger.Error("save result failed",
			"post_id", postID, "platform", result.Platform, "error", err)
	}

	p.mu.Lock()
	fo, ok := p.pending[postID]
	if !ok {
		p.mu.Unlock()
		return
	}
	fo.results[result.Platform] = result
	fo.remaining--
	done := fo.remaining <= 0
	cancelled := fo.cancelled
	if done {
		delete(p.pending, postID)
	}
	results := fo.results
	p.mu.Unlock()

	if !done {
		return
	}
	if cancelled {
		p.logger.Info("late result for cancelled post recorded, not surfaced",
			"post_id", postID, "platform", result.Platform)
		return
	}

	status := core.PostStatusFailed
	for _, r := range results {
		if r.Success {
			// Partial success still publishes; per-platform failures stay
			// visible in the result map.
			status = core.PostStatusPublished
			break
		}
	}
	if err := p.posts.UpdateStatus(ctx, postID, status, results); err != nil {
		p.logger.Error("finalize post failed", "post_id", postID, "error", err)
		return
	}
	p.logger.Info("post finalized", "post_id", postID, "status", status)
}

// limiterKey picks the per-credential identity for rate limiting: the
// platform credential when present, otherwise the owning user.
func limiterKey(req *core.PublishRequest) string {
	if req.Credential != "" {
		return req.Credential
	}
	return req.Owner
}
