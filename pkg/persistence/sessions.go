package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound is returned when a session row does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Session status constants.
const (
	SessionStatusActive   = "active"
	SessionStatusClosed   = "closed"
	SessionStatusCrashed  = "crashed"
	SessionStatusShutdown = "shutdown"
)

// Origin names the front end that opened a session.
const (
	OriginBridge   = "bridge"
	OriginTerminal = "terminal"
	OriginWatch    = "watch"
)

// Session is one editor connection's transcript header.
type Session struct {
	StartedAt time.Time
	EndedAt   *time.Time
	SessionID string
	Origin    string
	Status    string
	Model     string
}

// CreateSession inserts an active session row.
func (s *Store) CreateSession(ctx context.Context, sessionID, origin, model string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, origin, status, started_at, model)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, origin, SessionStatusActive, now(), model)
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", sessionID, err)
	}
	return nil
}

// EndSession marks a session finished with the given status and stamps ended_at.
func (s *Store) EndSession(ctx context.Context, sessionID, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, ended_at = ? WHERE session_id = ?
	`, status, now(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", sessionID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

// GetSession loads one session.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, origin, status, model, started_at, ended_at
		FROM sessions WHERE session_id = ?
	`, sessionID)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ListSessions returns the most recent sessions first, at most limit of them.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, origin, status, model, started_at, ended_at
		FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// MarkStaleSessions marks sessions left active by a previous process as crashed and
// returns how many were updated.
func (s *Store) MarkStaleSessions(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, ended_at = ? WHERE status = ?
	`, SessionStatusCrashed, now(), SessionStatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale sessions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		session   Session
		startedAt string
		endedAt   sql.NullString
	)
	if err := row.Scan(&session.SessionID, &session.Origin, &session.Status, &session.Model, &startedAt, &endedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	session.StartedAt = parseTime(startedAt)
	if endedAt.Valid {
		t := parseTime(endedAt.String)
		session.EndedAt = &t
	}
	return &session, nil
}
