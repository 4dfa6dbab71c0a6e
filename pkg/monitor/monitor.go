// Package monitor watches the publishing engine: stuck-job detection and
// recovery, queue depth, and a rule-based scheduler health classifier. It is
// an observability surface only and never gates new scheduling.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/publora/publora/pkg/core"
	"github.com/publora/publora/pkg/queue"
)

// DefaultStuckThreshold is how long a job may stay in processing before it
// counts as stuck. A safety net beyond per-call timeouts.
const DefaultStuckThreshold = 10 * time.Minute

// JobQueue is the queue surface the monitor observes and recovers.
// *queue.Queue satisfies it.
type JobQueue interface {
	Snapshot() []core.Job
	Stats() queue.Stats
	FailJob(jobID, message string) bool
}

// OverdueCounter counts scheduled posts already past due. core.PostStore
// satisfies it.
type OverdueCounter interface {
	CountOverdue(ctx context.Context, now time.Time) (int64, error)
}

// Thresholds hold the health classifier's tuning knobs. The stock values
// are fixed constants inherited for compatibility; override them rather
// than editing the defaults.
type Thresholds struct {
	MinSuccessRate    float64
	MaxQueueDepth     int
	MaxAvgProcessing  time.Duration
	DegradedMaxIssues int
	DegradedMaxStuck  int
}

// DefaultThresholds returns the stock classifier thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSuccessRate:    0.80,
		MaxQueueDepth:     100,
		MaxAvgProcessing:  30 * time.Second,
		DegradedMaxIssues: 2,
		DegradedMaxStuck:  5,
	}
}

// HealthStatus is the classifier verdict.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// QueueDepth is the engine's backlog: queued work plus posts the scheduler
// has not dispatched yet.
type QueueDepth struct {
	Pending    int   `json:"pending"`
	Processing int   `json:"processing"`
	Overdue    int64 `json:"overdue"`
}

// Total is the in-queue depth (pending + processing).
func (d QueueDepth) Total() int {
	return d.Pending + d.Processing
}

// Health is one classifier evaluation.
type Health struct {
	Status    HealthStatus `json:"status"`
	Issues    []string     `json:"issues,omitempty"`
	StuckJobs int          `json:"stuck_jobs"`
	Depth     QueueDepth   `json:"depth"`
	Stats     queue.Stats  `json:"stats"`
	CheckedAt time.Time    `json:"checked_at"`
}

// Monitor observes a JobQueue and, optionally, the post backlog.
type Monitor struct {
	queue          JobQueue
	posts          OverdueCounter
	stuckThreshold time.Duration
	thresholds     Thresholds
	metrics        *Metrics
	logger         *slog.Logger
	now            func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithPostStore lets the monitor count overdue posts.
func WithPostStore(posts OverdueCounter) Option {
	return func(m *Monitor) { m.posts = posts }
}

// WithStuckThreshold overrides how long processing may last before a job is
// considered stuck.
func WithStuckThreshold(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.stuckThreshold = d
		}
	}
}

// WithThresholds overrides the health classifier thresholds.
func WithThresholds(t Thresholds) Option {
	return func(m *Monitor) { m.thresholds = t }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Monitor) { m.metrics = metrics }
}

// WithLogger sets the monitor's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// WithClock injects a clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New creates a Monitor over a queue.
func New(q JobQueue, opts ...Option) *Monitor {
	m := &Monitor{
		queue:          q,
		stuckThreshold: DefaultStuckThreshold,
		thresholds:     DefaultThresholds(),
		logger:         slog.Default(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DetectStuckJobs returns every job that has been processing longer than
// the stuck threshold.
func (m *Monitor) DetectStuckJobs() []core.Job {
	now := m.now()
	var stuck []core.Job
	for _, job := range m.queue.Snapshot() {
		if job.ProcessingFor(now) > m.stuckThreshold {
			stuck = append(stuck, job)
		}
	}
	return stuck
}

// ResetStuckJobs force-fails every stuck job with an explanatory message so
// it can be re-enqueued later. Returns the number of jobs reset.
func (m *Monitor) ResetStuckJobs() int {
	now := m.now()
	reset := 0
	for _, job := range m.DetectStuckJobs() {
		msg := fmt.Sprintf("stuck in processing for %s (threshold %s), reset by monitor",
			job.ProcessingFor(now).Round(time.Second), m.stuckThreshold)
		if m.queue.FailJob(job.ID, msg) {
			reset++
			m.logger.Warn("reset stuck job", "job_id", job.ID, "started_at", job.StartedAt)
		}
	}
	if reset > 0 && m.metrics != nil {
		m.metrics.stuckResets.Add(float64(reset))
	}
	return reset
}

// GetQueueDepth reports pending and processing jobs plus overdue posts.
func (m *Monitor) GetQueueDepth(ctx context.Context) (QueueDepth, error) {
	stats := m.queue.Stats()
	depth := QueueDepth{Pending: stats.Pending, Processing: stats.Processing}

	if m.posts != nil {
		overdue, err := m.posts.CountOverdue(ctx, m.now())
		if err != nil {
			return depth, fmt.Errorf("monitor: count overdue: %w", err)
		}
		depth.Overdue = overdue
	}

	if m.metrics != nil {
		m.metrics.queueDepth.Set(float64(depth.Total()))
		m.metrics.overduePosts.Set(float64(depth.Overdue))
	}
	return depth, nil
}

// GetSchedulerHealth classifies engine health. Healthy means zero issues;
// one or two issues (with at most DegradedMaxStuck stuck jobs) is degraded;
// anything beyond that is unhealthy.
func (m *Monitor) GetSchedulerHealth(ctx context.Context) (Health, error) {
	depth, err := m.GetQueueDepth(ctx)
	if err != nil {
		return Health{}, err
	}
	stats := m.queue.Stats()
	stuck := len(m.DetectStuckJobs())

	var issues []string
	if depth.Overdue > 0 {
		issues = append(issues, fmt.Sprintf("%d overdue posts", depth.Overdue))
	}
	if stuck > 0 {
		issues = append(issues, fmt.Sprintf("%d stuck jobs", stuck))
	}
	if stats.SuccessRate < m.thresholds.MinSuccessRate {
		issues = append(issues, fmt.Sprintf("success rate %.0f%% below %.0f%%",
			stats.SuccessRate*100, m.thresholds.MinSuccessRate*100))
	}
	if depth.Total() > m.thresholds.MaxQueueDepth {
		issues = append(issues, fmt.Sprintf("queue depth %d above %d",
			depth.Total(), m.thresholds.MaxQueueDepth))
	}
	if stats.AvgProcessingTime > m.thresholds.MaxAvgProcessing {
		issues = append(issues, fmt.Sprintf("average processing time %s above %s",
			stats.AvgProcessingTime.Round(time.Millisecond), m.thresholds.MaxAvgProcessing))
	}

	status := StatusHealthy
	switch {
	case len(issues) == 0:
		status = StatusHealthy
	case len(issues) > m.thresholds.DegradedMaxIssues || stuck > m.thresholds.DegradedMaxStuck:
		status = StatusUnhealthy
	default:
		status = StatusDegraded
	}

	return Health{
		Status:    status,
		Issues:    issues,
		StuckJobs: stuck,
		Depth:     depth,
		Stats:     stats,
		CheckedAt: m.now(),
	}, nil
}

// Run evaluates health and resets stuck jobs on an interval until the
// context is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := m.ResetStuckJobs(); n > 0 {
				m.logger.Warn("recovered stuck jobs", "count", n)
			}
			health, err := m.GetSchedulerHealth(ctx)
			if err != nil {
				m.logger.Error("health check failed", "error", err)
				continue
			}
			if health.Status != StatusHealthy {
				m.logger.Warn("scheduler health", "status", health.Status, "issues", health.Issues)
			} else {
				m.logger.Debug("scheduler health", "status", health.Status)
			}
		}
	}
}
