// Package worker runs processing jobs popped from the durable queue.
//
// Each worker polls with a short timeout so shutdown is prompt, then runs the
// full pipeline synchronously. Transient errors are retried with exponential
// backoff; fatal errors and exhausted retries mark the session failed and
// move the job to the dead-letter sink.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wagmirep/lahstats/internal/observe"
	"github.com/wagmirep/lahstats/internal/pipeline"
	"github.com/wagmirep/lahstats/internal/queue"
	"github.com/wagmirep/lahstats/internal/session"
	"github.com/wagmirep/lahstats/internal/store"
)

// Defaults for the pool configuration.
const (
	DefaultWorkers     = 2
	DefaultMaxAttempts = 3
	DefaultPopTimeout  = time.Second
	defaultBackoffBase = 5 * time.Second
)

// Runner executes the processing pipeline for one session.
// *pipeline.Processor satisfies this interface.
type Runner interface {
	Process(ctx context.Context, sessionID string) error
}

// SessionStore is the status surface the pool needs. *store.Store satisfies
// this interface.
type SessionStore interface {
	UpdateStatus(ctx context.Context, id string, from, to session.Status) error
	MarkFailed(ctx context.Context, id, message string) error
}

// Pool runs a fixed number of workers against one queue.
type Pool struct {
	queue    queue.Queue
	runner   Runner
	sessions SessionStore

	workers     int
	maxAttempts int
	popTimeout  time.Duration
	backoff     func(attempt int) time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	metrics     *observe.Metrics
}

// Option configures a Pool.
type Option func(*Pool)

// WithWorkers sets the number of concurrent workers.
func WithWorkers(n int) Option {
	return func(p *Pool) { p.workers = n }
}

// WithMaxAttempts sets how often a job is tried before dead-lettering.
func WithMaxAttempts(n int) Option {
	return func(p *Pool) { p.maxAttempts = n }
}

// WithPopTimeout sets the queue poll timeout.
func WithPopTimeout(d time.Duration) Option {
	return func(p *Pool) { p.popTimeout = d }
}

// WithBackoff replaces the delay function between attempts. attempt counts
// from 1 for the delay after the first failure.
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(p *Pool) { p.backoff = fn }
}

// withSleep replaces the sleep implementation. Used in tests.
func withSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pool) { p.sleep = fn }
}

// New creates a Pool.
func New(q queue.Queue, r Runner, sessions SessionStore, opts ...Option) *Pool {
	p := &Pool{
		queue:       q,
		runner:      r,
		sessions:    sessions,
		workers:     DefaultWorkers,
		maxAttempts: DefaultMaxAttempts,
		popTimeout:  DefaultPopTimeout,
		backoff:     defaultBackoff,
		sleep:       sleepCtx,
		metrics:     observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// defaultBackoff doubles the base delay per attempt: 5s, 10s, 20s, ...
func defaultBackoff(attempt int) time.Duration {
	return defaultBackoffBase << (attempt - 1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run blocks until ctx is cancelled, processing jobs as they arrive. It
// returns nil on clean shutdown.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		id := i
		g.Go(func() error { return p.loop(ctx, id) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *Pool) loop(ctx context.Context, id int) error {
	slog.Info("worker started", "worker", id)
	for {
		job, err := p.queue.Pop(ctx, p.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("worker stopped", "worker", id)
				return nil
			}
			return fmt.Errorf("worker %d: pop: %w", id, err)
		}
		if job == nil {
			if ctx.Err() != nil {
				slog.Info("worker stopped", "worker", id)
				return nil
			}
			continue
		}
		p.handle(ctx, id, job)
	}
}

// handle runs one job to completion, retrying transient failures.
func (p *Pool) handle(ctx context.Context, id int, job *queue.Job) {
	slog.Info("processing job", "worker", id, "session", job.SessionID)
	started := time.Now()
	p.metrics.ActiveJobs.Add(ctx, 1)
	defer p.metrics.ActiveJobs.Add(ctx, -1)

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		lastErr = p.runAttempt(ctx, job)
		if lastErr == nil {
			slog.Info("job finished", "worker", id, "session", job.SessionID, "attempt", attempt)
			p.metrics.RecordJob(ctx, "ok", time.Since(started))
			return
		}

		if pipeline.IsFatal(lastErr) {
			slog.Error("job failed fatally",
				"worker", id, "session", job.SessionID, "attempt", attempt, "err", lastErr)
			p.bury(ctx, job, lastErr)
			p.metrics.RecordJob(ctx, "failed", time.Since(started))
			return
		}

		slog.Warn("job attempt failed",
			"worker", id, "session", job.SessionID, "attempt", attempt, "err", lastErr)
		if attempt < p.maxAttempts {
			p.metrics.JobRetries.Add(ctx, 1)
			if err := p.sleep(ctx, p.backoff(attempt)); err != nil {
				// Shutting down mid-retry: the session stays in processing and
				// the job is dead-lettered so it is never silently dropped.
				p.bury(ctx, job, lastErr)
				return
			}
		}
	}

	slog.Error("job exhausted retries",
		"worker", id, "session", job.SessionID, "attempts", p.maxAttempts, "err", lastErr)
	p.bury(ctx, job, lastErr)
	p.metrics.RecordJob(ctx, "failed", time.Since(started))
}

// runAttempt runs the pipeline and flips the session to ready_for_claiming.
// A failed flip counts as a failed attempt so the session cannot be stranded
// in processing; re-running the pipeline is safe because its writes are
// idempotent. ErrInvalidTransition means a prior attempt or another worker
// already flipped the session and counts as success.
func (p *Pool) runAttempt(ctx context.Context, job *queue.Job) error {
	if err := p.runner.Process(ctx, job.SessionID); err != nil {
		return err
	}
	err := p.sessions.UpdateStatus(ctx, job.SessionID,
		session.StatusProcessing, session.StatusReadyForClaiming)
	if err != nil && !errors.Is(err, store.ErrInvalidTransition) {
		return fmt.Errorf("worker: finish session %s: %w", job.SessionID, err)
	}
	return nil
}

// bury marks the session failed and moves the job to the dead-letter sink.
// It uses a detached context so burial still happens during shutdown.
func (p *Pool) bury(ctx context.Context, job *queue.Job, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.sessions.MarkFailed(ctx, job.SessionID, cause.Error()); err != nil {
		slog.Error("marking session failed failed", "session", job.SessionID, "err", err)
	}
	if err := p.queue.Fail(ctx, job, cause.Error()); err != nil {
		slog.Error("dead-lettering job failed", "session", job.SessionID, "err", err)
	}
}
