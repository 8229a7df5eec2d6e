// Package queue defines the durable FIFO job queue that connects session end
// requests to the processing workers.
//
// Delivery is at-least-once: multiple worker instances may poll the same
// queue, and the pipeline's side effects are idempotent to tolerate a job
// that is retried after partial prior success.
package queue

import (
	"context"
	"time"
)

// Job is one processing request for a session.
type Job struct {
	// ID identifies the job within its queue. Zero for queues that do not
	// assign IDs.
	ID int64
	// SessionID is the session to process.
	SessionID string
	// EnqueuedAt is when the job was pushed.
	EnqueuedAt time.Time
}

// DeadLetter is a job that exhausted its retries, kept for inspection.
type DeadLetter struct {
	Job Job
	// Reason is the final error message that killed the job.
	Reason string
	// FailedAt is when the job was moved to the dead-letter sink.
	FailedAt time.Time
}

// Queue is a durable FIFO of processing jobs.
type Queue interface {
	// Push appends a job for the given session.
	Push(ctx context.Context, sessionID string) error

	// Pop removes and returns the oldest job. It blocks up to timeout and
	// returns (nil, nil) when no job arrived in time, so callers can check
	// for shutdown between polls.
	Pop(ctx context.Context, timeout time.Duration) (*Job, error)

	// Fail moves a job that exhausted its retries to the dead-letter sink.
	// Failed jobs are never silently dropped.
	Fail(ctx context.Context, job *Job, reason string) error

	// DeadLetters returns all dead-lettered jobs, oldest first.
	DeadLetters(ctx context.Context) ([]DeadLetter, error)
}
