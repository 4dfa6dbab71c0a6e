// Package publora is a publishing and scheduling engine for social media
// posts: schedule once, fan out to LinkedIn, Instagram, Twitter and Discord,
// with per-platform rate limits, bounded retries and recurrence.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	// Open storage and build the pipeline
//	db, _ := publora.OpenStorage("posts.db")
//	store := publora.NewPostStore(db)
//	store.Migrate(context.Background())
//
//	pub := publora.NewPublisher(store, []publora.Adapter{
//	    publora.NewDiscord(),
//	    publora.NewTwitter(creds),
//	})
//	sched := publora.NewScheduler(store, pub)
//
//	// Schedule a post
//	store.Create(ctx, &publora.ScheduledPost{
//	    Owner:        "user-1",
//	    Content:      map[publora.Platform]string{"": "hello world"},
//	    Platforms:    []publora.Platform{publora.PlatformDiscord},
//	    ScheduledFor: time.Now().Add(time.Hour),
//	})
//
//	// Run the engine
//	go pub.Start(ctx)
//	sched.Run(ctx)
package publora

import (
	"gorm.io/gorm"

	"github.com/publora/publora/pkg/core"
	"github.com/publora/publora/pkg/monitor"
	"github.com/publora/publora/pkg/platform"
	"github.com/publora/publora/pkg/publisher"
	"github.com/publora/publora/pkg/queue"
	"github.com/publora/publora/pkg/ratelimit"
	"github.com/publora/publora/pkg/recurrence"
	"github.com/publora/publora/pkg/retry"
	"github.com/publora/publora/pkg/scheduler"
	"github.com/publora/publora/pkg/storage"
)

type (
	// Platform identifies one supported social network.
	Platform = core.Platform

	// ScheduledPost is a user's content targeted at one or more platforms
	// for a specific future UTC instant.
	ScheduledPost = core.ScheduledPost

	// PostStatus is the lifecycle state of a scheduled post.
	PostStatus = core.PostStatus

	// PublishRequest is the per-platform dispatch unit.
	PublishRequest = core.PublishRequest

	// PublishResult is the normalized outcome of one platform publish.
	PublishResult = core.PublishResult

	// PublishError is the classified error adapters return.
	PublishError = core.PublishError

	// ErrorKind classifies a publish failure.
	ErrorKind = core.ErrorKind

	// Job is the internal queue unit wrapping a PublishRequest.
	Job = core.Job

	// Priority orders jobs within the queue.
	Priority = core.Priority

	// CredentialStore resolves access tokens for a user/platform pair.
	CredentialStore = core.CredentialStore

	// PostStore is the persistence boundary for scheduled posts.
	PostStore = core.PostStore

	// Adapter is the per-platform publish surface.
	Adapter = publisher.Adapter

	// Publisher fans posts out to their platforms and aggregates results.
	Publisher = publisher.Publisher

	// Scheduler polls for due posts and dispatches them.
	Scheduler = scheduler.Scheduler

	// Monitor provides stuck-job recovery and health classification.
	Monitor = monitor.Monitor

	// RecurrenceRule describes a repeating schedule.
	RecurrenceRule = recurrence.Rule

	// RetryConfig tunes the per-call retry policy.
	RetryConfig = retry.Config

	// QueueStats summarizes queue state.
	QueueStats = queue.Stats
)

// Platform variants.
const (
	PlatformLinkedIn  = core.PlatformLinkedIn
	PlatformInstagram = core.PlatformInstagram
	PlatformTwitter   = core.PlatformTwitter
	PlatformDiscord   = core.PlatformDiscord
)

// Job priorities.
const (
	PriorityLow    = core.PriorityLow
	PriorityNormal = core.PriorityNormal
	PriorityHigh   = core.PriorityHigh
)

// OpenStorage connects to the database behind a DSN: a postgres:// URL or a
// SQLite path (":memory:" for tests).
func OpenStorage(dsn string) (*gorm.DB, error) {
	return storage.Open(dsn)
}

// NewPostStore creates a GORM-backed post store.
func NewPostStore(db *gorm.DB) *storage.GormPostStore {
	return storage.NewGormPostStore(db)
}

// NewPublisher creates the dispatch pipeline over a post store and adapters.
func NewPublisher(posts core.PostStore, adapters []Adapter, opts ...publisher.Option) *Publisher {
	return publisher.New(posts, adapters, opts...)
}

// NewScheduler creates the due-post dispatch loop.
func NewScheduler(posts core.PostStore, dispatcher scheduler.Dispatcher, opts ...scheduler.Option) *Scheduler {
	return scheduler.New(posts, dispatcher, opts...)
}

// NewMonitor creates the engine monitor over a publisher's queue.
func NewMonitor(q monitor.JobQueue, opts ...monitor.Option) *Monitor {
	return monitor.New(q, opts...)
}

// NewRateLimits creates the per-platform rate limiter registry with stock
// budgets.
func NewRateLimits(opts ...ratelimit.RegistryOption) *ratelimit.Registry {
	return ratelimit.NewRegistry(opts...)
}

// NewLinkedIn creates the LinkedIn adapter.
func NewLinkedIn(creds CredentialStore, opts ...platform.Option) Adapter {
	return platform.NewLinkedIn(creds, opts...)
}

// NewInstagram creates the Instagram adapter.
func NewInstagram(creds CredentialStore, opts ...platform.Option) Adapter {
	return platform.NewInstagram(creds, opts...)
}

// NewTwitter creates the Twitter adapter.
func NewTwitter(creds CredentialStore, opts ...platform.Option) Adapter {
	return platform.NewTwitter(creds, opts...)
}

// NewDiscord creates the Discord webhook adapter.
func NewDiscord(opts ...platform.Option) Adapter {
	return platform.NewDiscord(opts...)
}
