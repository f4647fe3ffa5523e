package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Rule is a persisted automation: when an event of EventType matching Filter
// arrives, run the action.
type Rule struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	Enabled      bool           `json:"enabled"`
	EventType    string         `json:"event_type"`
	Filter       map[string]any `json:"event_filter"`
	ActionType   string         `json:"action_type"`
	ActionConfig map[string]any `json:"action_config"`
	CreatedAt    time.Time      `json:"created_at"`
}

// SaveRule persists a new automation rule. Duplicate names return
// ErrDuplicate.
func (s *Store) SaveRule(ctx context.Context, rule Rule) error {
	filter, err := json.Marshal(orEmpty(rule.Filter))
	if err != nil {
		return fmt.Errorf("encode filter: %w", err)
	}
	action, err := json.Marshal(orEmpty(rule.ActionConfig))
	if err != nil {
		return fmt.Errorf("encode action config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO automations (name, enabled, event_type, event_filter, action_type, action_config, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rule.Name, boolToInt(rule.Enabled), rule.EventType, string(filter), rule.ActionType, string(action), now())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("automation %q: %w", rule.Name, ErrDuplicate)
		}
		return fmt.Errorf("save automation: %w", err)
	}
	return nil
}

// Rules returns all automation rules ordered by name.
func (s *Store) Rules(ctx context.Context) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, enabled, event_type, event_filter, action_type, action_config, created_at
		 FROM automations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("load automations: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var rule Rule
		var enabled int
		var filter, action, ts string
		if err := rows.Scan(&rule.ID, &rule.Name, &enabled, &rule.EventType, &filter, &rule.ActionType, &action, &ts); err != nil {
			return nil, fmt.Errorf("scan automation: %w", err)
		}
		rule.Enabled = enabled != 0
		rule.CreatedAt = parseTime(ts)
		if err := json.Unmarshal([]byte(filter), &rule.Filter); err != nil {
			s.logger.Warn("dropping undecodable automation filter", "rule", rule.Name, "error", err)
			rule.Filter = map[string]any{}
		}
		if err := json.Unmarshal([]byte(action), &rule.ActionConfig); err != nil {
			s.logger.Warn("dropping undecodable automation action", "rule", rule.Name, "error", err)
			rule.ActionConfig = map[string]any{}
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// SetRuleEnabled flips a rule on or off. It reports whether the rule exists.
func (s *Store) SetRuleEnabled(ctx context.Context, name string, enabled bool) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE automations SET enabled = ? WHERE name = ?`, boolToInt(enabled), name)
	if err != nil {
		return false, fmt.Errorf("toggle automation: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteRule removes a rule by name. It reports whether a row was removed.
func (s *Store) DeleteRule(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM automations WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete automation: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
