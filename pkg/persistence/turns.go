package persistence

import (
	"context"
	"fmt"
	"time"
)

// Direction of a transcript turn relative to the user.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Turn is one message exchanged on a session's chat surface.
type Turn struct {
	CreatedAt time.Time
	SessionID string
	Direction string
	Kind      string
	Text      string
	ID        int64
}

// RecordTurn appends a turn to a session's transcript.
func (s *Store) RecordTurn(ctx context.Context, sessionID, direction, kind, text string) error {
	if direction != DirectionIn && direction != DirectionOut {
		return fmt.Errorf("invalid turn direction %q", direction)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (session_id, direction, kind, text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, direction, kind, text, now())
	if err != nil {
		return fmt.Errorf("failed to record turn for session %s: %w", sessionID, err)
	}
	return nil
}

// Turns returns a session's transcript in the order it was recorded.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, direction, kind, text, created_at
		FROM turns WHERE session_id = ? ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []Turn
	for rows.Next() {
		var (
			turn      Turn
			createdAt string
		)
		if err := rows.Scan(&turn.ID, &turn.SessionID, &turn.Direction, &turn.Kind, &turn.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.CreatedAt = parseTime(createdAt)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turns: %w", err)
	}
	return turns, nil
}

// CountTurns returns how many turns of the given kind a session has; an empty kind counts all.
func (s *Store) CountTurns(ctx context.Context, sessionID, kind string) (int, error) {
	query := `SELECT COUNT(*) FROM turns WHERE session_id = ?`
	args := []any{sessionID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count turns: %w", err)
	}
	return n, nil
}
