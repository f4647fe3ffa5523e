package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Notification is one logged delivery attempt.
type Notification struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message"`
	Channels  []string  `json:"channels"`
	Timestamp time.Time `json:"timestamp"`
}

// LogNotification records a delivery attempt.
func (s *Store) LogNotification(ctx context.Context, message string, channels []string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (message, channels, timestamp) VALUES (?, ?, ?)`,
		message, strings.Join(channels, ","), now())
	if err != nil {
		return fmt.Errorf("log notification: %w", err)
	}
	return nil
}

// RecentNotifications returns the last limit notifications, newest first.
func (s *Store) RecentNotifications(ctx context.Context, limit int) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message, channels, timestamp FROM notifications ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}
	defer rows.Close()

	var list []Notification
	for rows.Next() {
		var n Notification
		var channels, ts string
		if err := rows.Scan(&n.ID, &n.Message, &channels, &ts); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if channels != "" {
			n.Channels = strings.Split(channels, ",")
		}
		n.Timestamp = parseTime(ts)
		list = append(list, n)
	}
	return list, rows.Err()
}
