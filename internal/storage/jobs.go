package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDuplicate is returned when a uniquely named row already exists.
var ErrDuplicate = errors.New("already exists")

// Job is a persisted cron job.
type Job struct {
	Name      string    `json:"name"`
	Spec      string    `json:"cron"`
	Command   string    `json:"command"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveJob persists a cron job. Duplicate names return ErrDuplicate.
func (s *Store) SaveJob(ctx context.Context, job Job) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_jobs (name, cron, command, created_at) VALUES (?, ?, ?, ?)`,
		job.Name, job.Spec, job.Command, now())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("job %q: %w", job.Name, ErrDuplicate)
		}
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

// DeleteJob removes a job. It reports whether a row was removed.
func (s *Store) DeleteJob(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Jobs returns all persisted jobs ordered by name.
func (s *Store) Jobs(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, cron, command, created_at FROM scheduled_jobs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		var ts string
		if err := rows.Scan(&job.Name, &job.Spec, &job.Command, &ts); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		job.CreatedAt = parseTime(ts)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// JobByName returns one job or sql.ErrNoRows.
func (s *Store) JobByName(ctx context.Context, name string) (Job, error) {
	var job Job
	var ts string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, cron, command, created_at FROM scheduled_jobs WHERE name = ?`, name).
		Scan(&job.Name, &job.Spec, &job.Command, &ts)
	if err != nil {
		return Job{}, err
	}
	job.CreatedAt = parseTime(ts)
	return job, nil
}

// isUniqueViolation matches on the error text; modernc.org/sqlite exports no
// sentinel for constraint failures.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
