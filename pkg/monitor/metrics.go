package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/publora/publora/pkg/core"
)

// Metrics exposes engine counters to Prometheus.
type Metrics struct {
	jobsCompleted     prometheus.Counter
	jobsFailed        prometheus.Counter
	processingSeconds prometheus.Histogram
	queueDepth        prometheus.Gauge
	overduePosts      prometheus.Gauge
	stuckResets       prometheus.Counter
}

// NewMetrics registers the engine's metrics with reg. Pass
// prometheus.DefaultRegisterer for the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		jobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "publora",
			Name:      "jobs_completed_total",
			Help:      "Publish jobs that completed successfully.",
		}),
		jobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "publora",
			Name:      "jobs_failed_total",
			Help:      "Publish jobs that failed after all retries.",
		}),
		processingSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "publora",
			Name:      "job_processing_seconds",
			Help:      "Wall-clock time a job spent in processing.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "publora",
			Name:      "queue_depth",
			Help:      "Pending plus processing jobs at the last depth check.",
		}),
		overduePosts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "publora",
			Name:      "overdue_posts",
			Help:      "Scheduled posts past due at the last depth check.",
		}),
		stuckResets: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "publora",
			Name:      "stuck_job_resets_total",
			Help:      "Jobs force-failed by the monitor after exceeding the stuck threshold.",
		}),
	}
}

// JobHooks exposes the queue hook registration the metrics attach to.
// *queue.Queue satisfies it.
type JobHooks interface {
	OnComplete(fn func(*core.Job))
	OnFail(fn func(*core.Job))
}

// Observe wires the metrics into a queue's lifecycle hooks.
func (m *Metrics) Observe(hooks JobHooks) {
	hooks.OnComplete(func(job *core.Job) {
		m.jobsCompleted.Inc()
		m.processingSeconds.Observe(job.Duration().Seconds())
	})
	hooks.OnFail(func(job *core.Job) {
		m.jobsFailed.Inc()
		if d := job.Duration(); d > 0 {
			m.processingSeconds.Observe(d.Seconds())
		}
	})
}
