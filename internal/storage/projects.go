package storage

import (
	"context"
	"fmt"
	"time"
)

// Project groups tasks under a name and status.
type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Task is one item inside a project.
type Task struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	Title     string    `json:"title"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateProject adds a project. Duplicate names return ErrDuplicate.
func (s *Store) CreateProject(ctx context.Context, name, description string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (name, description, status, created_at) VALUES (?, ?, 'active', ?)`,
		name, description, now())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("project %q: %w", name, ErrDuplicate)
		}
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// Projects lists all projects ordered by name.
func (s *Store) Projects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, status, created_at FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		var ts string
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &ts); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.CreatedAt = parseTime(ts)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// SetProjectStatus updates a project's status by name.
func (s *Store) SetProjectStatus(ctx context.Context, name, status string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET status = ? WHERE name = ?`, status, name)
	if err != nil {
		return false, fmt.Errorf("update project: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteProject removes a project and its tasks.
func (s *Store) DeleteProject(ctx context.Context, name string) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM projects WHERE name = ?`, name).Scan(&id)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("delete project: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE project_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete project tasks: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("delete project: %w", err)
	}
	return true, nil
}

// AddTask appends a task to a named project.
func (s *Store) AddTask(ctx context.Context, projectName, title string) error {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM projects WHERE name = ?`, projectName).Scan(&id)
	if err != nil {
		return fmt.Errorf("project %q: %w", projectName, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (project_id, title, done, created_at) VALUES (?, ?, 0, ?)`,
		id, title, now())
	if err != nil {
		return fmt.Errorf("add task: %w", err)
	}
	return nil
}

// Tasks lists the tasks of a named project.
func (s *Store) Tasks(ctx context.Context, projectName string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.project_id, t.title, t.done, t.created_at
		 FROM tasks t JOIN projects p ON p.id = t.project_id
		 WHERE p.name = ? ORDER BY t.id`, projectName)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var task Task
		var done int
		var ts string
		if err := rows.Scan(&task.ID, &task.ProjectID, &task.Title, &done, &ts); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		task.Done = done != 0
		task.CreatedAt = parseTime(ts)
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// CompleteTask marks a task done by id.
func (s *Store) CompleteTask(ctx context.Context, taskID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET done = 1 WHERE id = ?`, taskID)
	if err != nil {
		return false, fmt.Errorf("complete task: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
