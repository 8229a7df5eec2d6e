package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wagmirep/lahstats/internal/session"
)

// CreateSession inserts a new session in the recording state and returns it.
func (s *Store) CreateSession(ctx context.Context, groupID, createdBy string) (*Session, error) {
	sess := &Session{
		ID:        uuid.NewString(),
		GroupID:   groupID,
		CreatedBy: createdBy,
		Status:    session.StatusRecording,
	}
	const query = `
		INSERT INTO sessions (id, group_id, created_by, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`
	err := s.db.QueryRow(ctx, query, sess.ID, sess.GroupID, sess.CreatedBy, string(sess.Status)).
		Scan(&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create session: %w", err)
	}
	return sess, nil
}

// GetSession loads a session by ID. It returns ErrNotFound when no such
// session exists.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	const query = `
		SELECT id, group_id, created_by, status, progress, error_message,
		       duration_ms, created_at, updated_at
		FROM sessions WHERE id = $1`
	sess := &Session{}
	var status string
	var durationMS int64
	err := s.db.QueryRow(ctx, query, id).Scan(
		&sess.ID, &sess.GroupID, &sess.CreatedBy, &status, &sess.Progress,
		&sess.ErrorMessage, &durationMS, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("store: session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	sess.Status = session.Status(status)
	sess.Duration = time.Duration(durationMS) * time.Millisecond
	return sess, nil
}

// UpdateStatus moves a session from one status to another. The update is
// conditional on the session still being in the from status, so a concurrent
// transition loses cleanly with ErrInvalidTransition.
func (s *Store) UpdateStatus(ctx context.Context, id string, from, to session.Status) error {
	if err := session.CheckTransition(from, to); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	const query = `
		UPDATE sessions SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3`
	tag, err := s.db.Exec(ctx, query, string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("store: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: session %s is not %s", ErrInvalidTransition, id, from)
	}
	return nil
}

// SetProgress records pipeline progress as a 0-100 percentage.
func (s *Store) SetProgress(ctx context.Context, id string, progress int) error {
	const query = `UPDATE sessions SET progress = $1, updated_at = now() WHERE id = $2`
	if _, err := s.db.Exec(ctx, query, progress, id); err != nil {
		return fmt.Errorf("store: set progress: %w", err)
	}
	return nil
}

// SetDuration records the total duration of the assembled session audio.
func (s *Store) SetDuration(ctx context.Context, id string, d time.Duration) error {
	const query = `UPDATE sessions SET duration_ms = $1, updated_at = now() WHERE id = $2`
	if _, err := s.db.Exec(ctx, query, d.Milliseconds(), id); err != nil {
		return fmt.Errorf("store: set duration: %w", err)
	}
	return nil
}

// MarkFailed moves a processing session to failed and records the error
// message clients will see.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	const query = `
		UPDATE sessions SET status = $1, error_message = $2, updated_at = now()
		WHERE id = $3 AND status = $4`
	tag, err := s.db.Exec(ctx, query,
		string(session.StatusFailed), message, id, string(session.StatusProcessing))
	if err != nil {
		return fmt.Errorf("store: mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: session %s is not %s", ErrInvalidTransition, id, session.StatusProcessing)
	}
	return nil
}
