package storage

import (
	"context"
	"fmt"
	"time"
)

// Fact is one remembered key/value pair under a category.
type Fact struct {
	ID        int64     `json:"id"`
	Category  string    `json:"category"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Remember stores a fact, replacing the value when (category, key) already
// exists.
func (s *Store) Remember(ctx context.Context, category, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory (category, key, value, timestamp) VALUES (?, ?, ?, ?)
		 ON CONFLICT(category, key) DO UPDATE SET value = excluded.value, timestamp = excluded.timestamp`,
		category, key, value, now())
	if err != nil {
		return fmt.Errorf("remember: %w", err)
	}
	return nil
}

// RecentFacts returns up to limit facts, newest first.
func (s *Store) RecentFacts(ctx context.Context, limit int) ([]Fact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, key, value, timestamp FROM memory ORDER BY timestamp DESC, id DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("recent facts: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// SearchFacts finds facts whose key or value contains the query.
func (s *Store) SearchFacts(ctx context.Context, query string) ([]Fact, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, key, value, timestamp FROM memory
		 WHERE key LIKE ? OR value LIKE ? ORDER BY timestamp DESC`,
		pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("search facts: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// Forget deletes a fact. It reports whether a row was removed.
func (s *Store) Forget(ctx context.Context, category, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory WHERE category = ? AND key = ?`, category, key)
	if err != nil {
		return false, fmt.Errorf("forget: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type factRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanFacts(rows factRows) ([]Fact, error) {
	var facts []Fact
	for rows.Next() {
		var f Fact
		var ts string
		if err := rows.Scan(&f.ID, &f.Category, &f.Key, &f.Value, &ts); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		f.Timestamp = parseTime(ts)
		facts = append(facts, f)
	}
	return facts, rows.Err()
}
