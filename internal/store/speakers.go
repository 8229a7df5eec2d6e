package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UpsertSpeaker writes one diarized speaker keyed by (session, label). A
// retried pipeline attempt overwrites the previous values for the same label
// instead of inserting a second row. The speaker's ID is populated on return.
func (s *Store) UpsertSpeaker(ctx context.Context, sp *Speaker) error {
	counts, err := json.Marshal(emptyCounts(sp.WordCounts))
	if err != nil {
		return fmt.Errorf("store: marshal word counts: %w", err)
	}
	if sp.ID == "" {
		sp.ID = uuid.NewString()
	}
	const query = `
		INSERT INTO session_speakers (id, session_id, label, word_counts, segment_count, duration_ms, sample_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, label) DO UPDATE SET
			word_counts   = EXCLUDED.word_counts,
			segment_count = EXCLUDED.segment_count,
			duration_ms   = EXCLUDED.duration_ms,
			sample_ref    = EXCLUDED.sample_ref
		RETURNING id`
	err = s.db.QueryRow(ctx, query,
		sp.ID, sp.SessionID, sp.Label, counts, sp.SegmentCount, sp.Duration.Milliseconds(), sp.SampleRef,
	).Scan(&sp.ID)
	if err != nil {
		return fmt.Errorf("store: upsert speaker: %w", err)
	}
	return nil
}

// GetSpeaker loads one speaker by ID. It returns ErrNotFound when no such
// speaker exists.
func (s *Store) GetSpeaker(ctx context.Context, id string) (*Speaker, error) {
	const query = speakerSelect + ` WHERE id = $1`
	sp, err := scanSpeaker(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("store: speaker %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get speaker: %w", err)
	}
	return sp, nil
}

// ListSpeakers returns all speakers of a session ordered by label.
func (s *Store) ListSpeakers(ctx context.Context, sessionID string) ([]*Speaker, error) {
	const query = speakerSelect + ` WHERE session_id = $1 ORDER BY label`
	rows, err := s.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: list speakers: %w", err)
	}
	defer rows.Close()

	var speakers []*Speaker
	for rows.Next() {
		sp, err := scanSpeaker(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan speaker: %w", err)
		}
		speakers = append(speakers, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list speakers: %w", err)
	}
	return speakers, nil
}

// ClaimSpeaker atomically attributes an unclaimed speaker. It reports false
// when the speaker was already claimed by a concurrent call. Claims are
// permanent.
//
// For a non-empty claimedBy the speaker's word counts are copied into
// attributed_word_counts in the same transaction, so a claim either fully
// materializes or not at all. A user claiming several speakers accumulates
// across claims, so counts are added on conflict rather than replaced.
func (s *Store) ClaimSpeaker(ctx context.Context, speakerID string, claim ClaimType, claimedBy, guestName string) (won bool, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("store: claim speaker: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const update = `
		UPDATE session_speakers
		SET claim_type = $1, claimed_by = $2, guest_name = $3, claimed_at = now()
		WHERE id = $4 AND claim_type = ''
		RETURNING session_id, word_counts`
	var sessionID string
	var rawCounts []byte
	err = tx.QueryRow(ctx, update, string(claim), claimedBy, guestName, speakerID).
		Scan(&sessionID, &rawCounts)
	if errors.Is(err, pgx.ErrNoRows) {
		err = tx.Rollback(ctx)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: claim speaker: %w", err)
	}

	if claimedBy != "" {
		var counts map[string]int
		if err = json.Unmarshal(rawCounts, &counts); err != nil {
			return false, fmt.Errorf("store: claim speaker: decode counts: %w", err)
		}
		const insert = `
			INSERT INTO attributed_word_counts (session_id, user_id, word, count)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (session_id, user_id, word)
			DO UPDATE SET count = attributed_word_counts.count + EXCLUDED.count`
		for word, count := range counts {
			if count == 0 {
				continue
			}
			if _, err = tx.Exec(ctx, insert, sessionID, claimedBy, word, count); err != nil {
				return false, fmt.Errorf("store: attribute count: %w", err)
			}
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("store: claim speaker: commit: %w", err)
	}
	return true, nil
}

// UnclaimedCount returns how many speakers of a session have not been claimed
// yet.
func (s *Store) UnclaimedCount(ctx context.Context, sessionID string) (int, error) {
	const query = `
		SELECT count(*) FROM session_speakers
		WHERE session_id = $1 AND claim_type = ''`
	var n int
	if err := s.db.QueryRow(ctx, query, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: unclaimed count: %w", err)
	}
	return n, nil
}

const speakerSelect = `
	SELECT id, session_id, label, word_counts, segment_count, duration_ms, sample_ref,
	       claim_type, claimed_by, guest_name, claimed_at
	FROM session_speakers`

func scanSpeaker(row pgx.Row) (*Speaker, error) {
	sp := &Speaker{}
	var counts []byte
	var claim string
	var durationMS int64
	if err := row.Scan(
		&sp.ID, &sp.SessionID, &sp.Label, &counts, &sp.SegmentCount, &durationMS, &sp.SampleRef,
		&claim, &sp.ClaimedBy, &sp.GuestName, &sp.ClaimedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(counts, &sp.WordCounts); err != nil {
		return nil, fmt.Errorf("unmarshal word counts: %w", err)
	}
	sp.ClaimType = ClaimType(claim)
	sp.Duration = time.Duration(durationMS) * time.Millisecond
	return sp, nil
}

// emptyCounts substitutes an empty map for nil so JSONB columns never hold
// SQL null.
func emptyCounts(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}
