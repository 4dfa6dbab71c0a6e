package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/publora/publora/pkg/core"
	"github.com/publora/publora/pkg/queue"
)

// fakeQueue stands in for the real queue with canned state.
type fakeQueue struct {
	jobs   []core.Job
	stats  queue.Stats
	failed []string
}

func (f *fakeQueue) Snapshot() []core.Job { return f.jobs }
func (f *fakeQueue) Stats() queue.Stats   { return f.stats }
func (f *fakeQueue) FailJob(jobID, message string) bool {
	f.failed = append(f.failed, jobID)
	return true
}

type fakeCounter struct {
	overdue int64
}

func (f *fakeCounter) CountOverdue(ctx context.Context, now time.Time) (int64, error) {
	return f.overdue, nil
}

func processingJob(id string, startedAgo time.Duration, now time.Time) core.Job {
	started := now.Add(-startedAgo)
	return core.Job{
		ID:        id,
		Status:    core.JobStatusProcessing,
		StartedAt: &started,
	}
}

func fixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

func TestDetectStuckJobs(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	q := &fakeQueue{
		jobs: []core.Job{
			processingJob("stuck", 11*time.Minute, now),
			processingJob("fresh", 9*time.Minute, now),
			{ID: "done", Status: core.JobStatusCompleted},
			{ID: "waiting", Status: core.JobStatusPending},
		},
	}

	m := New(q, WithClock(fixedClock(now)))
	stuck := m.DetectStuckJobs()

	require.Len(t, stuck, 1)
	assert.Equal(t, "stuck", stuck[0].ID)
}

func TestResetStuckJobs(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	q := &fakeQueue{
		jobs: []core.Job{
			processingJob("a", 15*time.Minute, now),
			processingJob("b", 25*time.Minute, now),
			processingJob("c", time.Minute, now),
		},
	}

	m := New(q, WithClock(fixedClock(now)))
	assert.Equal(t, 2, m.ResetStuckJobs())
	assert.ElementsMatch(t, []string{"a", "b"}, q.failed)
}

func TestStuckThresholdOverride(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	q := &fakeQueue{jobs: []core.Job{processingJob("a", 3*time.Minute, now)}}

	m := New(q, WithClock(fixedClock(now)), WithStuckThreshold(2*time.Minute))
	assert.Len(t, m.DetectStuckJobs(), 1)
}

func TestGetQueueDepth(t *testing.T) {
	q := &fakeQueue{stats: queue.Stats{Pending: 7, Processing: 3}}
	m := New(q, WithPostStore(&fakeCounter{overdue: 4}))

	depth, err := m.GetQueueDepth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, depth.Pending)
	assert.Equal(t, 3, depth.Processing)
	assert.Equal(t, int64(4), depth.Overdue)
	assert.Equal(t, 10, depth.Total())
}

func TestSchedulerHealth_Healthy(t *testing.T) {
	q := &fakeQueue{
		stats: queue.Stats{
			Pending:           6,
			Processing:        4,
			Completed:         19,
			Failed:            1,
			SuccessRate:       0.95,
			AvgProcessingTime: 2 * time.Second,
		},
	}
	m := New(q, WithPostStore(&fakeCounter{overdue: 0}))

	health, err := m.GetSchedulerHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, health.Status)
	assert.Empty(t, health.Issues)
	assert.Equal(t, 0, health.StuckJobs)
}

func TestSchedulerHealth_DegradedOnSingleIssue(t *testing.T) {
	q := &fakeQueue{
		stats: queue.Stats{SuccessRate: 0.70, AvgProcessingTime: time.Second},
	}
	m := New(q)

	health, err := m.GetSchedulerHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, health.Status)
	require.Len(t, health.Issues, 1)
	assert.Contains(t, health.Issues[0], "success rate")
}

func TestSchedulerHealth_UnhealthyOnManyIssues(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	q := &fakeQueue{
		jobs: []core.Job{processingJob("stuck", 20*time.Minute, now)},
		stats: queue.Stats{
			Pending:           150,
			SuccessRate:       0.50,
			AvgProcessingTime: time.Minute,
		},
	}
	m := New(q, WithClock(fixedClock(now)), WithPostStore(&fakeCounter{overdue: 12}))

	health, err := m.GetSchedulerHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusUnhealthy, health.Status)
	assert.Greater(t, len(health.Issues), 2)
}

func TestSchedulerHealth_UnhealthyOnStuckPileUp(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var jobs []core.Job
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		jobs = append(jobs, processingJob(id, 30*time.Minute, now))
	}
	q := &fakeQueue{jobs: jobs, stats: queue.Stats{SuccessRate: 1}}

	m := New(q, WithClock(fixedClock(now)))
	health, err := m.GetSchedulerHealth(context.Background())
	require.NoError(t, err)

	// A single issue class, but six stuck jobs tips the verdict.
	assert.Equal(t, StatusUnhealthy, health.Status)
	assert.Equal(t, 6, health.StuckJobs)
}
