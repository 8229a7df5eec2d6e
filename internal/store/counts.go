package store

import (
	"context"
	"fmt"
)

// AttributedCounts returns all attributed word counts for a session keyed by
// user ID, then word.
func (s *Store) AttributedCounts(ctx context.Context, sessionID string) (map[string]map[string]int, error) {
	const query = `
		SELECT user_id, word, count FROM attributed_word_counts
		WHERE session_id = $1`
	rows, err := s.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: attributed counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]int)
	for rows.Next() {
		var userID, word string
		var count int
		if err := rows.Scan(&userID, &word, &count); err != nil {
			return nil, fmt.Errorf("store: scan attributed count: %w", err)
		}
		if out[userID] == nil {
			out[userID] = make(map[string]int)
		}
		out[userID][word] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: attributed counts: %w", err)
	}
	return out, nil
}

// AddGroupMember registers a user as a member of a group. Adding an existing
// member is a no-op.
func (s *Store) AddGroupMember(ctx context.Context, groupID, userID string) error {
	const query = `
		INSERT INTO group_members (group_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`
	if _, err := s.db.Exec(ctx, query, groupID, userID); err != nil {
		return fmt.Errorf("store: add group member: %w", err)
	}
	return nil
}

// IsGroupMember reports whether a user belongs to a group.
func (s *Store) IsGroupMember(ctx context.Context, groupID, userID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2
		)`
	var ok bool
	if err := s.db.QueryRow(ctx, query, groupID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("store: is group member: %w", err)
	}
	return ok, nil
}
