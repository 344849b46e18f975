package jobs

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/ai-search-assistant/pkg/log"
	"github.com/sethvargo/go-retry"
	"github.com/sourcegraph/conc"
)

// Executor runs one job. A returned error marks the job failed, or skipped
// when it wraps ErrSkip.
type Executor func(ctx context.Context, job *IngestJob) error

// ErrSkip tells the queue a job had nothing to do. It is never retried.
var ErrSkip = errors.New("skipped")

const (
	// DefaultMaxJobs bounds how many jobs are kept before finished ones are pruned.
	DefaultMaxJobs = 1000

	idPrefix = "job-"
)

type Queue struct {
	workers  int
	maxJobs  int
	attempts int
	backoff  time.Duration
	store    Store

	mu      sync.RWMutex
	jobs    map[string]*IngestJob
	active  map[string]string // dedupe key -> id of the pending or running job
	lastID  uint64
	started bool

	pending chan string
	stopCh  chan struct{}
	stop    sync.Once
	wg      conc.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

type QueueOption func(*Queue)

// WithMaxJobs sets the retention bound for finished jobs.
func WithMaxJobs(n int) QueueOption {
	return func(q *Queue) {
		q.maxJobs = n
	}
}

// WithRetry runs a failing job up to attempts times, waiting an exponential
// backoff between tries.
func WithRetry(attempts int, backoff time.Duration) QueueOption {
	return func(q *Queue) {
		if attempts > 0 {
			q.attempts = attempts
		}
		if backoff > 0 {
			q.backoff = backoff
		}
	}
}

// NewQueue builds a queue and restores unfinished jobs from store.
// Jobs that were running when the process stopped go back to pending.
func NewQueue(workers int, store Store, opts ...QueueOption) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		workers:  max(workers, 1),
		maxJobs:  DefaultMaxJobs,
		attempts: 1,
		backoff:  time.Second,
		store:    store,
		jobs:     make(map[string]*IngestJob),
		active:   make(map[string]string),
		pending:  make(chan string, 1024),
		stopCh:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.restore(ctx)
	return q
}

// Enqueue adds a job unless a pending or running job holds the same dedupe key,
// in which case that job is returned with created=false.
func (q *Queue) Enqueue(req EnqueueRequest) (*IngestJob, bool) {
	q.mu.Lock()
	if id, ok := q.active[req.DedupeKey]; ok {
		if existing, exists := q.jobs[id]; exists {
			snapshot := existing.clone()
			q.mu.Unlock()
			return snapshot, false
		}
		delete(q.active, req.DedupeKey)
	}

	q.lastID++
	now := time.Now()
	job := &IngestJob{
		ID:        idPrefix + strconv.FormatUint(q.lastID, 10),
		Source:    req.Source,
		DedupeKey: req.DedupeKey,
		Payload:   req.Payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	q.jobs[job.ID] = job
	if req.DedupeKey != "" {
		q.active[req.DedupeKey] = job.ID
	}
	started := q.started
	snapshot := job.clone()
	q.mu.Unlock()

	q.persist(snapshot)
	if started {
		q.schedule(job.ID)
	}
	return snapshot, true
}

func (q *Queue) Get(id string) (*IngestJob, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

// List returns every known job, oldest first.
func (q *Queue) List() []*IngestJob {
	q.mu.RLock()
	ret := make([]*IngestJob, 0, len(q.jobs))
	for _, job := range q.jobs {
		ret = append(ret, job.clone())
	}
	q.mu.RUnlock()

	slices.SortFunc(ret, func(a, b *IngestJob) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.seq(), b.seq())
	})
	return ret
}

// Counts returns the number of jobs per status.
func (q *Queue) Counts() map[Status]int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	ret := make(map[Status]int)
	for _, job := range q.jobs {
		ret[job.Status]++
	}
	return ret
}

// Start launches the workers and feeds them every pending job. Later calls are no-ops.
func (q *Queue) Start(exec Executor) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	waiting := make([]*IngestJob, 0)
	for _, job := range q.jobs {
		if job.Status == StatusPending {
			waiting = append(waiting, job)
		}
	}
	q.mu.Unlock()

	slices.SortFunc(waiting, func(a, b *IngestJob) int { return cmp.Compare(a.seq(), b.seq()) })
	for _, job := range waiting {
		q.schedule(job.ID)
	}
	for range q.workers {
		q.wg.Go(func() { q.work(exec) })
	}
	log.Info("Job queue started with %d workers, %d pending", q.workers, len(waiting))
}

// Stop cancels running jobs and waits for the workers to exit.
func (q *Queue) Stop() {
	q.stop.Do(func() {
		close(q.stopCh)
		q.cancel()
		q.wg.Wait()
	})
}

func (q *Queue) work(exec Executor) {
	for {
		select {
		case <-q.stopCh:
			return
		case id := <-q.pending:
			job, ok := q.claim(id)
			if !ok {
				continue
			}
			q.finish(id, q.run(exec, job))
		}
	}
}

// run executes job, retrying failures that are neither skips nor cancellations.
func (q *Queue) run(exec Executor, job *IngestJob) error {
	backoff := retry.WithMaxRetries(uint64(q.attempts-1), retry.NewExponential(q.backoff))
	return retry.Do(q.ctx, backoff, func(ctx context.Context) error {
		attempt := q.countAttempt(job.ID)
		err := exec(ctx, job)
		if err == nil || errors.Is(err, ErrSkip) || ctx.Err() != nil {
			return err
		}
		if attempt < q.attempts {
			log.Warn("Job %s attempt %d failed: %v", job.ID, attempt, err)
		}
		return retry.RetryableError(err)
	})
}

// schedule hands id to the workers without blocking the caller.
func (q *Queue) schedule(id string) {
	select {
	case q.pending <- id:
	default:
		go func() {
			select {
			case q.pending <- id:
			case <-q.stopCh:
			}
		}()
	}
}

func (q *Queue) claim(id string) (*IngestJob, bool) {
	return q.update(id, func(job *IngestJob) bool {
		if job.Status != StatusPending {
			return false
		}
		job.Status = StatusRunning
		return true
	})
}

func (q *Queue) countAttempt(id string) int {
	job, _ := q.update(id, func(job *IngestJob) bool {
		job.Attempts++
		return true
	})
	if job == nil {
		return 0
	}
	return job.Attempts
}

// finish records the outcome of a run and prunes old finished jobs.
func (q *Queue) finish(id string, err error) {
	var pruned []string
	job, ok := q.update(id, func(job *IngestJob) bool {
		job.UpdatedAt = time.Now()
		if q.interrupted(err) {
			// Left pending so restore picks it up on the next start.
			job.Status, job.Error = StatusPending, ""
			return true
		}
		switch {
		case err == nil:
			job.Status, job.Error = StatusSuccess, ""
		case errors.Is(err, ErrSkip):
			job.Status, job.Error = StatusSkipped, err.Error()
		default:
			job.Status, job.Error = StatusFailed, err.Error()
		}
		q.releaseLocked(job)
		pruned = q.pruneLocked()
		return true
	})
	if !ok {
		return
	}
	switch job.Status {
	case StatusFailed:
		log.Error("Job %s (%s) failed: %s", job.ID, job.Payload.Link, job.Error)
	case StatusPending:
		log.Info("Job %s interrupted by shutdown, left pending", job.ID)
	}
	q.forget(pruned)
}

// interrupted reports whether err comes from Stop cancelling a running job.
func (q *Queue) interrupted(err error) bool {
	return err != nil && q.ctx.Err() != nil && errors.Is(err, context.Canceled)
}

// update applies fn to the job under the lock and persists the result when fn reports a change.
func (q *Queue) update(id string, fn func(job *IngestJob) bool) (*IngestJob, bool) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || !fn(job) {
		q.mu.Unlock()
		return nil, false
	}
	job.UpdatedAt = time.Now()
	snapshot := job.clone()
	q.mu.Unlock()

	q.persist(snapshot)
	return snapshot, true
}

func (q *Queue) releaseLocked(job *IngestJob) {
	if job.DedupeKey == "" {
		return
	}
	if id, ok := q.active[job.DedupeKey]; ok && id == job.ID {
		delete(q.active, job.DedupeKey)
	}
}

// pruneLocked drops the oldest finished jobs until at most maxJobs remain.
func (q *Queue) pruneLocked() []string {
	excess := len(q.jobs) - q.maxJobs
	if q.maxJobs <= 0 || excess <= 0 {
		return nil
	}

	done := make([]*IngestJob, 0, len(q.jobs))
	for _, job := range q.jobs {
		if job.Terminal() {
			done = append(done, job)
		}
	}
	slices.SortFunc(done, func(a, b *IngestJob) int { return a.UpdatedAt.Compare(b.UpdatedAt) })

	pruned := make([]string, 0, min(excess, len(done)))
	for _, job := range done[:min(excess, len(done))] {
		q.releaseLocked(job)
		delete(q.jobs, job.ID)
		pruned = append(pruned, job.ID)
	}
	return pruned
}

func (q *Queue) forget(ids []string) {
	if q.store == nil {
		return
	}
	for _, id := range ids {
		if err := q.store.DeleteJob(context.Background(), id); err != nil {
			log.Error("Failed to delete pruned job %s from store: %v", id, err)
		}
	}
}

func (q *Queue) restore(ctx context.Context) {
	if q.store == nil {
		return
	}
	loaded, err := q.store.LoadJobs(ctx)
	if err != nil {
		log.Error("Failed to load jobs from store: %v", err)
		return
	}

	requeued := make([]*IngestJob, 0)
	q.mu.Lock()
	for _, stored := range loaded {
		if stored == nil || stored.ID == "" {
			continue
		}
		job := stored.clone()
		if job.Status == StatusRunning {
			job.Status = StatusPending
			job.UpdatedAt = time.Now()
			requeued = append(requeued, job.clone())
		}
		q.jobs[job.ID] = job
		if job.Status == StatusPending && job.DedupeKey != "" {
			q.active[job.DedupeKey] = job.ID
		}
		q.lastID = max(q.lastID, job.seq())
	}
	q.mu.Unlock()

	for _, job := range requeued {
		q.persist(job)
	}
	if len(loaded) > 0 {
		log.Info("Restored %d jobs (%d interrupted)", len(loaded), len(requeued))
	}
}

func (q *Queue) persist(job *IngestJob) {
	if q.store == nil {
		return
	}
	if err := q.store.UpsertJob(context.Background(), job); err != nil {
		log.Error("Failed to persist job %s: %v", job.ID, err)
	}
}

func (j *IngestJob) clone() *IngestJob {
	tmp := *j
	return &tmp
}

// seq is the numeric part of a queue-issued ID, or 0 for foreign IDs.
func (j *IngestJob) seq() uint64 {
	n, err := strconv.ParseUint(strings.TrimPrefix(j.ID, idPrefix), 10, 64)
	if err != nil || !strings.HasPrefix(j.ID, idPrefix) {
		return 0
	}
	return n
}
