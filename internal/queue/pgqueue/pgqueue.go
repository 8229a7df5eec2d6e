// Package pgqueue implements queue.Queue on top of PostgreSQL.
//
// Jobs are popped with DELETE ... FOR UPDATE SKIP LOCKED so that several
// worker processes can poll the same table without double-claiming a job.
// Pop polls at a fixed interval because LISTEN/NOTIFY delivery is not
// durable across reconnects.
package pgqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wagmirep/lahstats/internal/queue"
)

// Schema is the SQL DDL for the job tables. Execute it via [Queue.Migrate] or
// apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    enqueued_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dead_letter_jobs (
    id          BIGSERIAL    PRIMARY KEY,
    job_id      BIGINT       NOT NULL DEFAULT 0,
    session_id  TEXT         NOT NULL,
    enqueued_at TIMESTAMPTZ  NOT NULL,
    reason      TEXT         NOT NULL,
    failed_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

const defaultPollInterval = 250 * time.Millisecond

// DB is the database interface used by [Queue]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Queue is a PostgreSQL-backed implementation of queue.Queue.
type Queue struct {
	db           DB
	pollInterval time.Duration
}

var _ queue.Queue = (*Queue)(nil)

// Option configures a Queue.
type Option func(*Queue)

// WithPollInterval overrides the interval between Pop polls.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) { q.pollInterval = d }
}

// New creates a Queue on top of an existing database connection or pool. The
// caller is responsible for running [Queue.Migrate] before issuing queries.
func New(db DB, opts ...Option) *Queue {
	q := &Queue{db: db, pollInterval: defaultPollInterval}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Migrate executes the [Schema] DDL against the database.
func (q *Queue) Migrate(ctx context.Context) error {
	if _, err := q.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("pgqueue: migrate: %w", err)
	}
	return nil
}

// Push appends a job for the given session.
func (q *Queue) Push(ctx context.Context, sessionID string) error {
	const query = `INSERT INTO jobs (session_id) VALUES ($1)`
	if _, err := q.db.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("pgqueue: push: %w", err)
	}
	return nil
}

// Pop removes and returns the oldest job, polling until timeout. It returns
// (nil, nil) when no job arrived in time.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*queue.Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		job, err := q.tryPop(ctx)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		wait := q.pollInterval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// tryPop claims at most one job. The subquery with SKIP LOCKED ensures that
// concurrent workers each claim distinct rows.
func (q *Queue) tryPop(ctx context.Context) (*queue.Job, error) {
	const query = `
		DELETE FROM jobs
		WHERE id = (
			SELECT id FROM jobs ORDER BY id LIMIT 1 FOR UPDATE SKIP LOCKED
		)
		RETURNING id, session_id, enqueued_at`
	job := &queue.Job{}
	err := q.db.QueryRow(ctx, query).Scan(&job.ID, &job.SessionID, &job.EnqueuedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgqueue: pop: %w", err)
	}
	return job, nil
}

// Fail moves a job to the dead-letter table.
func (q *Queue) Fail(ctx context.Context, job *queue.Job, reason string) error {
	const query = `
		INSERT INTO dead_letter_jobs (job_id, session_id, enqueued_at, reason)
		VALUES ($1, $2, $3, $4)`
	if _, err := q.db.Exec(ctx, query, job.ID, job.SessionID, job.EnqueuedAt, reason); err != nil {
		return fmt.Errorf("pgqueue: fail: %w", err)
	}
	return nil
}

// DeadLetters returns all dead-lettered jobs, oldest first.
func (q *Queue) DeadLetters(ctx context.Context) ([]queue.DeadLetter, error) {
	const query = `
		SELECT job_id, session_id, enqueued_at, reason, failed_at
		FROM dead_letter_jobs ORDER BY id`
	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgqueue: dead letters: %w", err)
	}
	defer rows.Close()

	var out []queue.DeadLetter
	for rows.Next() {
		var dl queue.DeadLetter
		if err := rows.Scan(&dl.Job.ID, &dl.Job.SessionID, &dl.Job.EnqueuedAt, &dl.Reason, &dl.FailedAt); err != nil {
			return nil, fmt.Errorf("pgqueue: scan dead letter: %w", err)
		}
		out = append(out, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgqueue: dead letters: %w", err)
	}
	return out, nil
}
