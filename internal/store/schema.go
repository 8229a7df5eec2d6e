package store

import (
	"context"
	"fmt"
)

// Schema is the SQL DDL for all tables owned by this package. Execute it via
// [Store.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id            TEXT         PRIMARY KEY,
    group_id      TEXT         NOT NULL,
    created_by    TEXT         NOT NULL,
    status        TEXT         NOT NULL DEFAULT 'recording',
    progress      INT          NOT NULL DEFAULT 0,
    error_message TEXT         NOT NULL DEFAULT '',
    duration_ms   BIGINT       NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_group ON sessions (group_id);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions (status);

CREATE TABLE IF NOT EXISTS audio_chunks (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL REFERENCES sessions(id),
    sequence    INT          NOT NULL,
    blob_ref    TEXT         NOT NULL,
    size_bytes  BIGINT       NOT NULL DEFAULT 0,
    duration_ms BIGINT       NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    UNIQUE (session_id, sequence)
);

CREATE TABLE IF NOT EXISTS chunk_transcripts (
    session_id     TEXT         NOT NULL REFERENCES sessions(id),
    sequence       INT          NOT NULL,
    raw_text       TEXT         NOT NULL,
    corrected_text TEXT         NOT NULL,
    word_counts    JSONB        NOT NULL DEFAULT '{}',
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (session_id, sequence)
);

CREATE TABLE IF NOT EXISTS session_speakers (
    id           TEXT         PRIMARY KEY,
    session_id   TEXT         NOT NULL REFERENCES sessions(id),
    label         TEXT         NOT NULL,
    word_counts   JSONB        NOT NULL DEFAULT '{}',
    segment_count INT          NOT NULL DEFAULT 0,
    duration_ms   BIGINT       NOT NULL DEFAULT 0,
    sample_ref   TEXT         NOT NULL DEFAULT '',
    claim_type   TEXT         NOT NULL DEFAULT '',
    claimed_by   TEXT         NOT NULL DEFAULT '',
    guest_name   TEXT         NOT NULL DEFAULT '',
    claimed_at   TIMESTAMPTZ,
    UNIQUE (session_id, label)
);

CREATE INDEX IF NOT EXISTS idx_session_speakers_session ON session_speakers (session_id);

CREATE TABLE IF NOT EXISTS attributed_word_counts (
    session_id  TEXT         NOT NULL REFERENCES sessions(id),
    user_id     TEXT         NOT NULL,
    word        TEXT         NOT NULL,
    count       INT          NOT NULL DEFAULT 0,
    PRIMARY KEY (session_id, user_id, word)
);

CREATE TABLE IF NOT EXISTS group_members (
    group_id  TEXT  NOT NULL,
    user_id   TEXT  NOT NULL,
    PRIMARY KEY (group_id, user_id)
);
`

// Migrate executes the [Schema] DDL against the database, creating all tables
// and indexes if they do not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}
