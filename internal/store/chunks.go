package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// AddChunk records an uploaded audio chunk. Re-uploading a sequence number
// that already exists for the session returns ErrDuplicateChunk.
func (s *Store) AddChunk(ctx context.Context, c *Chunk) error {
	const query = `
		INSERT INTO audio_chunks (session_id, sequence, blob_ref, size_bytes, duration_ms)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	err := s.db.QueryRow(ctx, query,
		c.SessionID, c.Sequence, c.BlobRef, c.SizeBytes, c.Duration.Milliseconds(),
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%w: session %s sequence %d", ErrDuplicateChunk, c.SessionID, c.Sequence)
		}
		return fmt.Errorf("store: add chunk: %w", err)
	}
	return nil
}

// RemoveChunk deletes one chunk row. Used to release a reserved sequence
// number when the blob write behind it failed.
func (s *Store) RemoveChunk(ctx context.Context, sessionID string, sequence int) error {
	const query = `DELETE FROM audio_chunks WHERE session_id = $1 AND sequence = $2`
	if _, err := s.db.Exec(ctx, query, sessionID, sequence); err != nil {
		return fmt.Errorf("store: remove chunk: %w", err)
	}
	return nil
}

// ListChunks returns all chunks of a session ordered by sequence number.
func (s *Store) ListChunks(ctx context.Context, sessionID string) ([]Chunk, error) {
	const query = `
		SELECT id, session_id, sequence, blob_ref, size_bytes, duration_ms, created_at
		FROM audio_chunks WHERE session_id = $1 ORDER BY sequence`
	rows, err := s.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var durationMS int64
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Sequence, &c.BlobRef, &c.SizeBytes, &durationMS, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan chunk: %w", err)
		}
		c.Duration = time.Duration(durationMS) * time.Millisecond
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list chunks: %w", err)
	}
	return chunks, nil
}

// UpsertChunkTranscript stores the cached transcript for one chunk. The cache
// is written once per sequence in practice; a re-upload race simply overwrites
// with equivalent data.
func (s *Store) UpsertChunkTranscript(ctx context.Context, ct *ChunkTranscript) error {
	counts, err := json.Marshal(emptyCounts(ct.WordCounts))
	if err != nil {
		return fmt.Errorf("store: marshal word counts: %w", err)
	}
	const query = `
		INSERT INTO chunk_transcripts (session_id, sequence, raw_text, corrected_text, word_counts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, sequence) DO UPDATE SET
			raw_text       = EXCLUDED.raw_text,
			corrected_text = EXCLUDED.corrected_text,
			word_counts    = EXCLUDED.word_counts`
	if _, err := s.db.Exec(ctx, query, ct.SessionID, ct.Sequence, ct.RawText, ct.CorrectedText, counts); err != nil {
		return fmt.Errorf("store: upsert chunk transcript: %w", err)
	}
	return nil
}

// ChunkTranscripts returns all cached chunk transcripts for a session keyed
// by sequence number.
func (s *Store) ChunkTranscripts(ctx context.Context, sessionID string) (map[int]*ChunkTranscript, error) {
	const query = `
		SELECT session_id, sequence, raw_text, corrected_text, word_counts, created_at
		FROM chunk_transcripts WHERE session_id = $1`
	rows, err := s.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: chunk transcripts: %w", err)
	}
	defer rows.Close()

	out := make(map[int]*ChunkTranscript)
	for rows.Next() {
		ct := &ChunkTranscript{}
		var counts []byte
		if err := rows.Scan(&ct.SessionID, &ct.Sequence, &ct.RawText, &ct.CorrectedText, &counts, &ct.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan chunk transcript: %w", err)
		}
		if err := json.Unmarshal(counts, &ct.WordCounts); err != nil {
			return nil, fmt.Errorf("store: unmarshal word counts: %w", err)
		}
		out[ct.Sequence] = ct
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: chunk transcripts: %w", err)
	}
	return out, nil
}
