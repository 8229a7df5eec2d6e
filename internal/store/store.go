// Package store provides the PostgreSQL-backed persistence layer for
// sessions, audio chunks, cached chunk transcripts, diarized speakers and
// attributed word counts.
//
// All operations are safe for concurrent use and idempotent where the
// processing pipeline may retry them: speaker writes upsert on the diarized
// label and attributed counts upsert on (session, user, word).
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors returned by store operations.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateChunk is returned when a chunk with the same sequence number
	// was already uploaded for the session.
	ErrDuplicateChunk = errors.New("store: duplicate chunk sequence")
	// ErrInvalidTransition is returned when a session status update violates
	// the lifecycle state machine or loses a concurrent status race.
	ErrInvalidTransition = errors.New("store: invalid status transition")
)

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store persists all session-processing state in PostgreSQL.
type Store struct {
	db DB
}

// New creates a Store on top of an existing database connection or pool. The
// caller is responsible for running [Store.Migrate] before issuing queries.
func New(db DB) *Store {
	return &Store{db: db}
}

// Open establishes a connection pool to the PostgreSQL database at dsn, pings
// it, and runs [Store.Migrate]. The returned pool is owned by the caller and
// must be closed when the Store is no longer needed.
func Open(ctx context.Context, dsn string) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("store: ping: %w", err)
	}
	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, pool, nil
}

// isDuplicateKeyError reports whether err is a PostgreSQL unique violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
