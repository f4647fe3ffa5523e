// Package projects is the project_manager skill: lightweight project and
// task tracking on the SQLite store.
package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fhaenel/frieda/internal/skills"
	"github.com/fhaenel/frieda/internal/storage"
)

// Skill manages projects and their tasks.
type Skill struct {
	store *storage.Store
}

// New creates the project_manager skill.
func New(store *storage.Store) *Skill {
	return &Skill{store: store}
}

func (s *Skill) Name() string { return "project_manager" }

func (s *Skill) Description() string {
	return "Track projects and tasks: create or delete a project, change its status, add tasks, list tasks, or mark a task done."
}

func (s *Skill) Parameters() map[string]any {
	return skills.ObjectSchema(map[string]any{
		"action":      skills.Property("string", "What to do", "create", "list", "status", "delete", "add_task", "tasks", "complete_task"),
		"project":     skills.Property("string", "Project name"),
		"description": skills.Property("string", "Project description (for create)"),
		"new_status":  skills.Property("string", "New status (for status)", "active", "paused", "done"),
		"title":       skills.Property("string", "Task title (for add_task)"),
		"task_id":     skills.Property("integer", "Task id (for complete_task)"),
	}, "action")
}

func (s *Skill) Execute(ctx context.Context, args map[string]any) (string, error) {
	project := skills.StringArg(args, "project")

	switch action := skills.StringArg(args, "action"); action {
	case "create":
		if project == "" {
			return skills.Errorf("create needs a project name"), nil
		}
		if err := s.store.CreateProject(ctx, project, skills.StringArg(args, "description")); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return skills.Errorf("project '%s' already exists", project), nil
			}
			return skills.Errorf("create: %v", err), nil
		}
		return fmt.Sprintf("project '%s' created", project), nil

	case "list":
		list, err := s.store.Projects(ctx)
		if err != nil {
			return skills.Errorf("list: %v", err), nil
		}
		if len(list) == 0 {
			return "no projects yet", nil
		}
		var sb strings.Builder
		for _, p := range list {
			fmt.Fprintf(&sb, "- %s [%s]", p.Name, p.Status)
			if p.Description != "" {
				fmt.Fprintf(&sb, ": %s", p.Description)
			}
			sb.WriteString("\n")
		}
		return sb.String(), nil

	case "status":
		status := skills.StringArg(args, "new_status")
		if project == "" || status == "" {
			return skills.Errorf("status needs project and new_status"), nil
		}
		found, err := s.store.SetProjectStatus(ctx, project, status)
		if err != nil {
			return skills.Errorf("status: %v", err), nil
		}
		if !found {
			return skills.Errorf("project '%s' not found", project), nil
		}
		return fmt.Sprintf("project '%s' is now %s", project, status), nil

	case "delete":
		found, err := s.store.DeleteProject(ctx, project)
		if err != nil {
			return skills.Errorf("delete: %v", err), nil
		}
		if !found {
			return skills.Errorf("project '%s' not found", project), nil
		}
		return fmt.Sprintf("project '%s' deleted", project), nil

	case "add_task":
		title := skills.StringArg(args, "title")
		if project == "" || title == "" {
			return skills.Errorf("add_task needs project and title"), nil
		}
		if err := s.store.AddTask(ctx, project, title); err != nil {
			return skills.Errorf("add_task: %v", err), nil
		}
		return fmt.Sprintf("task added to '%s'", project), nil

	case "tasks":
		if project == "" {
			return skills.Errorf("tasks needs a project name"), nil
		}
		tasks, err := s.store.Tasks(ctx, project)
		if err != nil {
			return skills.Errorf("tasks: %v", err), nil
		}
		if len(tasks) == 0 {
			return fmt.Sprintf("project '%s' has no tasks", project), nil
		}
		var sb strings.Builder
		for _, t := range tasks {
			mark := " "
			if t.Done {
				mark = "x"
			}
			fmt.Fprintf(&sb, "- [%s] #%d %s\n", mark, t.ID, t.Title)
		}
		return sb.String(), nil

	case "complete_task":
		id := skills.IntArg(args, "task_id", 0)
		if id <= 0 {
			return skills.Errorf("complete_task needs a task_id"), nil
		}
		found, err := s.store.CompleteTask(ctx, int64(id))
		if err != nil {
			return skills.Errorf("complete_task: %v", err), nil
		}
		if !found {
			return skills.Errorf("task #%d not found", id), nil
		}
		return fmt.Sprintf("task #%d done", id), nil

	default:
		return skills.Errorf("unknown action '%s'", action), nil
	}
}
