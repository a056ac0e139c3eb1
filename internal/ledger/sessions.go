package ledger

import (
	"context"
	"fmt"
	"time"
)

const sessionColumns = `id, operator_id, login_at, logout_at, garments_scanned, tickets_completed`

// CreateSession opens a shift for an operator.
func (s *Store) CreateSession(ctx context.Context, id, operatorID string) (*Session, error) {
	now := s.stamp()
	if _, err := s.exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, NULL, 0, 0)`,
		id, operatorID, now,
	); err != nil {
		return nil, fmt.Errorf("creating session for operator %q: %w", operatorID, err)
	}
	return &Session{ID: id, OperatorID: operatorID, LoginAt: now}, nil
}

// GetSession returns one session.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	if err := s.get(ctx, &sess, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id); err != nil {
		return nil, notFound(err, "session", id)
	}
	return &sess, nil
}

// EndSession stamps the logout time of an open session.
// Ending an already closed session is a no-op.
func (s *Store) EndSession(ctx context.Context, id string) error {
	if _, err := s.GetSession(ctx, id); err != nil {
		return err
	}
	if _, err := s.exec(ctx,
		`UPDATE sessions SET logout_at = ? WHERE id = ? AND logout_at IS NULL`, s.stamp(), id,
	); err != nil {
		return fmt.Errorf("ending session %q: %w", id, err)
	}
	return nil
}

// CloseOpenSessions ends every open session of an operator and returns how
// many were closed.
func (s *Store) CloseOpenSessions(ctx context.Context, operatorID string) (int64, error) {
	n, err := s.exec(ctx,
		`UPDATE sessions SET logout_at = ? WHERE operator_id = ? AND logout_at IS NULL`,
		s.stamp(), operatorID,
	)
	if err != nil {
		return 0, fmt.Errorf("closing sessions for operator %q: %w", operatorID, err)
	}
	return n, nil
}

// IncrementGarmentsScanned bumps the scan counter of a session.
func (s *Store) IncrementGarmentsScanned(ctx context.Context, id string) error {
	return s.incrementSession(ctx, id, "garments_scanned")
}

// IncrementTicketsCompleted bumps the completed-ticket counter of a session.
func (s *Store) IncrementTicketsCompleted(ctx context.Context, id string) error {
	return s.incrementSession(ctx, id, "tickets_completed")
}

// incrementSession bumps one counter column. column is never user input.
func (s *Store) incrementSession(ctx context.Context, id, column string) error {
	n, err := s.exec(ctx,
		`UPDATE sessions SET `+column+` = `+column+` + 1 WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("incrementing %s for session %q: %w", column, id, err)
	}
	if n == 0 {
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	return nil
}

// ListSessionsBetween returns sessions that logged in within [from, to),
// oldest first.
func (s *Store) ListSessionsBetween(ctx context.Context, from, to time.Time) ([]Session, error) {
	sessions := []Session{}
	if err := s.selectAll(ctx, &sessions, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE login_at >= ? AND login_at < ?
		ORDER BY login_at`,
		NewTimestamp(from.UTC()), NewTimestamp(to.UTC()),
	); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}
