package syncer

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"animehub/internal/events"
)

const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

var (
	ErrQueueClosed = errors.New("sync queue is shutting down")
	ErrQueueFull   = errors.New("sync queue is full")
)

// Job tracks one queued reconciliation request through its lifecycle.
type Job struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Force      bool      `json:"force"`
	Status     string    `json:"status"`
	Result     *RunStats `json:"result,omitempty"`
	Err        string    `json:"error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Queue runs reconciliation jobs on a fixed pool of workers. Jobs are
// kept in memory; a restart simply drops the queue, which is safe because
// reconciliation is idempotent.
type Queue struct {
	svc         *Service
	workers     int
	runDeadline time.Duration

	mu     sync.Mutex
	jobs   map[string]*Job
	closed bool

	ch   chan string
	wg   sync.WaitGroup
	stop context.CancelFunc
}

func NewQueue(svc *Service, workers int, runDeadline time.Duration) *Queue {
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		svc:         svc,
		workers:     workers,
		runDeadline: runDeadline,
		jobs:        make(map[string]*Job),
		ch:          make(chan string, 64),
	}
}

// Start launches the worker goroutines. Call Stop to drain and shut down.
func (q *Queue) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	q.stop = cancel
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	log.Printf("[sync] queue started with %d workers", q.workers)
}

// Stop cancels running jobs and waits for workers to exit. Enqueue calls
// arriving after Stop are rejected.
func (q *Queue) Stop() {
	if q.stop != nil {
		q.stop()
	}
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue registers a job and hands it to the pool. Returns the job for
// polling via GetJob. The submit never blocks: a full buffer returns
// ErrQueueFull instead of stalling the caller.
func (q *Queue) Enqueue(userID string, force bool) (*Job, error) {
	job := &Job{
		ID:         uuid.NewString(),
		UserID:     userID,
		Force:      force,
		Status:     JobPending,
		EnqueuedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	select {
	case q.ch <- job.ID:
	default:
		return nil, ErrQueueFull
	}
	q.jobs[job.ID] = job
	return snapshot(job), nil
}

// GetJob returns a copy of the job's current state, or nil when unknown.
func (q *Queue) GetJob(id string) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil
	}
	return snapshot(job)
}

// Jobs returns all known jobs for a user.
func (q *Queue) Jobs(userID string) []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*Job
	for _, job := range q.jobs {
		if job.UserID == userID {
			out = append(out, snapshot(job))
		}
	}
	return out
}

func snapshot(j *Job) *Job {
	cp := *j
	return &cp
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for id := range q.ch {
		if ctx.Err() != nil {
			q.finish(id, nil, ctx.Err())
			continue
		}
		q.run(ctx, id)
	}
}

func (q *Queue) run(ctx context.Context, id string) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	job.Status = JobRunning
	job.StartedAt = time.Now().UTC()
	userID, force := job.UserID, job.Force
	q.mu.Unlock()

	q.broadcast(events.TypeSyncStarted, id, userID, "")

	runCtx, cancel := context.WithTimeout(ctx, q.runDeadline)
	defer cancel()

	stats, err := q.svc.SyncUser(runCtx, userID, force)
	q.finish(id, stats, err)
}

func (q *Queue) finish(id string, stats *RunStats, err error) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	job.FinishedAt = time.Now().UTC()
	job.Result = stats
	if err != nil {
		job.Status = JobFailed
		job.Err = err.Error()
	} else {
		job.Status = JobSucceeded
	}
	userID, status, msg := job.UserID, job.Status, job.Err
	q.mu.Unlock()

	if status == JobFailed {
		q.broadcast(events.TypeSyncFailed, id, userID, msg)
	} else {
		q.broadcast(events.TypeSyncCompleted, id, userID, "")
	}
}

func (q *Queue) broadcast(eventType, jobID, userID, msg string) {
	if q.svc.Hub == nil {
		return
	}
	q.svc.Hub.Broadcast(events.SyncEvent{
		Type:    eventType,
		JobID:   jobID,
		UserID:  userID,
		Message: msg,
	})
}
