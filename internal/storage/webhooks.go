package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Webhook is a named ingress endpoint with its shared-secret token.
type Webhook struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Token       string    `json:"-"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateWebhook persists a webhook. Duplicate names return ErrDuplicate.
func (s *Store) CreateWebhook(ctx context.Context, name, token, description string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO webhooks (name, token, description, created_at) VALUES (?, ?, ?, ?)`,
		name, token, description, now())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("webhook %q: %w", name, ErrDuplicate)
		}
		return fmt.Errorf("create webhook: %w", err)
	}
	return nil
}

// WebhookByName returns one webhook or sql.ErrNoRows.
func (s *Store) WebhookByName(ctx context.Context, name string) (Webhook, error) {
	var hook Webhook
	var ts string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, token, description, created_at FROM webhooks WHERE name = ?`, name).
		Scan(&hook.ID, &hook.Name, &hook.Token, &hook.Description, &ts)
	if err != nil {
		return Webhook{}, err
	}
	hook.CreatedAt = parseTime(ts)
	return hook, nil
}

// Webhooks returns all webhooks ordered by name.
func (s *Store) Webhooks(ctx context.Context) ([]Webhook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, token, description, created_at FROM webhooks ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("load webhooks: %w", err)
	}
	defer rows.Close()

	var hooks []Webhook
	for rows.Next() {
		var hook Webhook
		var ts string
		if err := rows.Scan(&hook.ID, &hook.Name, &hook.Token, &hook.Description, &ts); err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		hook.CreatedAt = parseTime(ts)
		hooks = append(hooks, hook)
	}
	return hooks, rows.Err()
}

// DeleteWebhook removes a webhook by name. It reports whether a row was
// removed.
func (s *Store) DeleteWebhook(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete webhook: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// IsNotFound reports whether err is the no-rows sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
