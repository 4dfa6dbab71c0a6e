package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/publora/publora/pkg/core"
)

// Handler processes one job. A nil return completes the job; an error fails
// it. Handlers own their timeouts; the queue never aborts a running job.
type Handler func(ctx context.Context, job *core.Job) error

// ErrDuplicateJob is returned when an idempotency key already has an active
// (pending or processing) job.
var ErrDuplicateJob = errors.New("queue: duplicate job for idempotency key")

// dispatch order: highest tier first, FIFO within a tier.
var tiers = []core.Priority{core.PriorityHigh, core.PriorityNormal, core.PriorityLow}

// Queue is an in-memory priority queue with a bounded worker pool.
type Queue struct {
	handler     Handler
	concurrency int
	poll        time.Duration
	logger      *slog.Logger
	now         func() time.Time

	retain int

	mu       sync.Mutex
	pending  map[core.Priority][]*core.Job
	jobs     map[string]*core.Job
	active   map[string]string // idempotency key -> job id, pending/processing only
	finished []string          // terminal job ids, oldest first, for eviction

	processing     int
	completedCount int
	failedCount    int
	totalDuration  time.Duration

	onStart    []func(*core.Job)
	onComplete []func(*core.Job)
	onFail     []func(*core.Job)

	wake chan struct{}
	wg   sync.WaitGroup
}

// New creates a queue that runs jobs through the given handler.
func New(handler Handler, opts ...Option) *Queue {
	q := &Queue{
		handler:     handler,
		concurrency: DefaultConcurrency,
		poll:        defaultPollInterval,
		retain:      DefaultRetainedJobs,
		logger:      slog.Default(),
		now:         time.Now,
		pending:     make(map[core.Priority][]*core.Job),
		jobs:        make(map[string]*core.Job),
		active:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.wake = make(chan struct{}, q.concurrency)
	return q
}

// OnStart registers a hook called when a job begins processing.
func (q *Queue) OnStart(fn func(*core.Job)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onStart = append(q.onStart, fn)
}

// OnComplete registers a hook called when a job completes successfully.
func (q *Queue) OnComplete(fn func(*core.Job)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onComplete = append(q.onComplete, fn)
}

// OnFail registers a hook called when a job fails.
func (q *Queue) OnFail(fn func(*core.Job)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onFail = append(q.onFail, fn)
}

// Enqueue adds a job to its priority tier.
func (q *Queue) Enqueue(job *core.Job) (string, error) {
	return q.enqueue(job, "")
}

// EnqueueUnique adds a job unless the idempotency key already has an active
// one, in which case ErrDuplicateJob is returned.
func (q *Queue) EnqueueUnique(job *core.Job, key string) (string, error) {
	return q.enqueue(job, key)
}

func (q *Queue) enqueue(job *core.Job, key string) (string, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.Status = core.JobStatusPending
	job.QueuedAt = q.now()

	q.mu.Lock()
	if key != "" {
		if _, exists := q.active[key]; exists {
			q.mu.Unlock()
			return "", fmt.Errorf("%w: %s", ErrDuplicateJob, key)
		}
		q.active[key] = job.ID
	}
	q.pending[job.Priority] = append(q.pending[job.Priority], job)
	q.jobs[job.ID] = job
	q.mu.Unlock()

	q.signal()
	return job.ID, nil
}

// Remove drops a job that has not started processing. It returns false when
// the job is unknown or already processing; a processing job runs to
// completion.
func (q *Queue) Remove(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok || job.Status != core.JobStatusPending {
		return false
	}

	tier := q.pending[job.Priority]
	for i, j := range tier {
		if j.ID == jobID {
			q.pending[job.Priority] = append(tier[:i], tier[i+1:]...)
			break
		}
	}
	delete(q.jobs, jobID)
	q.dropKeyLocked(jobID)
	return true
}

// FailJob forces a job out of processing into failed with an explanatory
// message. Used by the monitor to recover stuck jobs; a late handler return
// for the same job is recorded as a no-op.
func (q *Queue) FailJob(jobID, message string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok || job.Status != core.JobStatusProcessing {
		return false
	}
	now := q.now()
	job.Status = core.JobStatusFailed
	job.CompletedAt = &now
	job.Error = message
	q.processing--
	q.failedCount++
	q.totalDuration += job.Duration()
	q.dropKeyLocked(jobID)
	q.retireLocked(jobID)
	return true
}

// Start runs the worker pool. It blocks until the context is cancelled and
// every in-flight job has finished.
func (q *Queue) Start(ctx context.Context) error {
	for i := 0; i < q.concurrency; i++ {
		q.wg.Add(1)
		go q.processLoop(ctx)
	}
	<-ctx.Done()
	q.wg.Wait()
	return ctx.Err()
}

func (q *Queue) processLoop(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job := q.take()
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
			case <-ticker.C:
			}
			continue
		}
		q.process(ctx, job)
	}
}

// take pops the next job by priority and marks it processing. The status
// flip and the active counter move in one critical section.
func (q *Queue) take() *core.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, tier := range tiers {
		if len(q.pending[tier]) == 0 {
			continue
		}
		job := q.pending[tier][0]
		q.pending[tier] = q.pending[tier][1:]

		now := q.now()
		job.Status = core.JobStatusProcessing
		job.StartedAt = &now
		q.processing++
		return job
	}
	return nil
}

func (q *Queue) process(ctx context.Context, job *core.Job) {
	for _, fn := range q.hooks(&q.onStart) {
		fn(job)
	}

	err := q.run(ctx, job)
	q.finish(job, err)
}

// run executes the handler, converting panics into job failures so one bad
// job never takes down the pool.
func (q *Queue) run(ctx context.Context, job *core.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return q.handler(ctx, job)
}

func (q *Queue) finish(job *core.Job, err error) {
	q.mu.Lock()
	if job.Status != core.JobStatusProcessing {
		// The monitor already force-failed this job; record the late return
		// without disturbing counters.
		q.mu.Unlock()
		q.logger.Warn("late handler return for finalized job", "job_id", job.ID, "status", job.Status)
		return
	}

	now := q.now()
	job.CompletedAt = &now
	q.processing--
	if err != nil {
		job.Status = core.JobStatusFailed
		job.Error = err.Error()
		q.failedCount++
	} else {
		job.Status = core.JobStatusCompleted
		q.completedCount++
	}
	q.totalDuration += job.Duration()
	q.dropKeyLocked(job.ID)
	q.retireLocked(job.ID)
	q.mu.Unlock()

	if err != nil {
		q.logger.Warn("job failed", "job_id", job.ID, "error", err)
		for _, fn := range q.hooks(&q.onFail) {
			fn(job)
		}
	} else {
		for _, fn := range q.hooks(&q.onComplete) {
			fn(job)
		}
	}

	// A slot just freed: let an idle worker pick up the next pending job
	// without waiting for the poll tick.
	q.signal()
}

func (q *Queue) hooks(list *[]func(*core.Job)) []func(*core.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append(([]func(*core.Job))(nil), *list...)
}

// dropKeyLocked releases the idempotency key held by a finished job.
// Callers hold q.mu.
func (q *Queue) dropKeyLocked(jobID string) {
	for key, id := range q.active {
		if id == jobID {
			delete(q.active, key)
			return
		}
	}
}

// retireLocked records a job as terminal and evicts the oldest terminal
// jobs beyond the retention cap, so the job map stays bounded over the
// process lifetime. The Stats counters are unaffected. Callers hold q.mu.
func (q *Queue) retireLocked(jobID string) {
	q.finished = append(q.finished, jobID)
	for len(q.finished) > q.retain {
		oldest := q.finished[0]
		q.finished = q.finished[1:]
		delete(q.jobs, oldest)
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Get returns a copy of a job by ID.
func (q *Queue) Get(jobID string) (core.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return core.Job{}, false
	}
	return *job, true
}

// Snapshot returns copies of every tracked job.
func (q *Queue) Snapshot() []core.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]core.Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		out = append(out, *job)
	}
	return out
}

// Stats summarizes queue state for observability. Total counts currently
// tracked jobs (pending, processing and retained terminal jobs); Completed
// and Failed count every job ever finished, surviving eviction.
type Stats struct {
	Total             int           `json:"total"`
	Pending           int           `json:"pending"`
	Processing        int           `json:"processing"`
	Completed         int           `json:"completed"`
	Failed            int           `json:"failed"`
	SuccessRate       float64       `json:"success_rate"`
	AvgProcessingTime time.Duration `json:"avg_processing_time"`
}

// Stats reports totals, success rate and average processing time. With no
// finished jobs the success rate is 1.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := 0
	for _, tier := range q.pending {
		pending += len(tier)
	}

	finished := q.completedCount + q.failedCount
	s := Stats{
		Total:       len(q.jobs),
		Pending:     pending,
		Processing:  q.processing,
		Completed:   q.completedCount,
		Failed:      q.failedCount,
		SuccessRate: 1,
	}
	if finished > 0 {
		s.SuccessRate = float64(q.completedCount) / float64(finished)
		s.AvgProcessingTime = q.totalDuration / time.Duration(finished)
	}
	return s
}
