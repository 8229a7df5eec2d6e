// Package memqueue implements queue.Queue entirely in memory. It is used in
// tests and single-process deployments where durability across restarts is
// not required.
package memqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wagmirep/lahstats/internal/queue"
)

// ErrFull is returned by Push when the queue's buffer has no room left.
var ErrFull = errors.New("memqueue: queue full")

// Queue is an in-memory implementation of queue.Queue.
type Queue struct {
	mu     sync.Mutex
	nextID int64
	jobs   chan *queue.Job
	dead   []queue.DeadLetter
}

var _ queue.Queue = (*Queue)(nil)

// New creates a Queue buffering up to capacity pending jobs.
func New(capacity int) *Queue {
	return &Queue{jobs: make(chan *queue.Job, capacity)}
}

// Push appends a job for the given session. It never blocks: when the buffer
// is full it returns [ErrFull] so the caller can surface backpressure instead
// of hanging a request.
func (q *Queue) Push(ctx context.Context, sessionID string) error {
	q.mu.Lock()
	q.nextID++
	job := &queue.Job{ID: q.nextID, SessionID: sessionID, EnqueuedAt: time.Now()}
	q.mu.Unlock()

	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrFull
	}
}

// Pop removes and returns the oldest job, blocking up to timeout. It returns
// (nil, nil) when no job arrived in time.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*queue.Job, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case job := <-q.jobs:
		return job, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Fail moves a job to the dead-letter slice.
func (q *Queue) Fail(ctx context.Context, job *queue.Job, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, queue.DeadLetter{Job: *job, Reason: reason, FailedAt: time.Now()})
	return nil
}

// DeadLetters returns all dead-lettered jobs, oldest first.
func (q *Queue) DeadLetters(ctx context.Context) ([]queue.DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]queue.DeadLetter, len(q.dead))
	copy(out, q.dead)
	return out, nil
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int { return len(q.jobs) }
