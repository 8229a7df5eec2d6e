package health

import (
	"context"

	"github.com/wagmirep/lahstats/internal/queue"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Database returns a Checker probing the PostgreSQL connection pool.
func Database(p Pinger) Checker {
	return Checker{
		Name:  "database",
		Probe: p.Ping,
	}
}

// Queue returns a Checker probing the job queue. A queue that cannot list its
// dead letters cannot accept new jobs either, so session end requests would
// be lost.
func Queue(q queue.Queue) Checker {
	return Checker{
		Name: "queue",
		Probe: func(ctx context.Context) error {
			_, err := q.DeadLetters(ctx)
			return err
		},
	}
}
