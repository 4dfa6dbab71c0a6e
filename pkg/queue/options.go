package queue

import (
	"log/slog"
	"time"
)

// DefaultConcurrency is the number of jobs processing simultaneously unless
// overridden.
const DefaultConcurrency = 3

const defaultPollInterval = 100 * time.Millisecond

// DefaultRetainedJobs is how many completed/failed jobs stay queryable
// before the oldest are evicted. Counters in Stats survive eviction.
const DefaultRetainedJobs = 1000

// Option configures a Queue.
type Option func(*Queue)

// Concurrency bounds how many jobs may process simultaneously.
func Concurrency(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.concurrency = n
		}
	}
}

// WithLogger sets the queue's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// WithPollInterval sets the idle workers' fallback poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.poll = d
		}
	}
}

// WithRetainedJobs caps how many terminal jobs stay queryable via Get and
// Snapshot. The queue runs for the process lifetime; without a cap the job
// map grows without bound.
func WithRetainedJobs(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.retain = n
		}
	}
}

// WithClock injects a clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}
