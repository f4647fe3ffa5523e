package storage

import (
	"context"
	"fmt"

	"github.com/fhaenel/frieda/pkg/models"
)

// SaveTurn appends one conversation turn to a session.
func (s *Store) SaveTurn(ctx context.Context, sessionID string, role models.Role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (session_id, role, content, timestamp) VALUES (?, ?, ?, ?)`,
		sessionID, string(role), content, now())
	if err != nil {
		return fmt.Errorf("save turn: %w", err)
	}
	return nil
}

// History returns the last limit turns of a session in chronological order.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]models.StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, timestamp FROM (
			SELECT id, session_id, role, content, timestamp
			FROM conversations WHERE session_id = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var history []models.StoredMessage
	for rows.Next() {
		var msg models.StoredMessage
		var role, ts string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		msg.Role = models.Role(role)
		msg.Timestamp = parseTime(ts)
		history = append(history, msg)
	}
	return history, rows.Err()
}

// ClearHistory removes all turns of a session.
func (s *Store) ClearHistory(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}
