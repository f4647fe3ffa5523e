package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/fhaenel/frieda/internal/skills"
)

// Skill exposes the scheduler to the model as task_scheduler.
type Skill struct {
	engine *Engine
}

// NewSkill creates the task_scheduler skill.
func NewSkill(engine *Engine) *Skill {
	return &Skill{engine: engine}
}

func (s *Skill) Name() string { return "task_scheduler" }

func (s *Skill) Description() string {
	return "Schedule recurring jobs with cron expressions (5 fields: minute hour day month weekday), list them, or remove one. The command runs as a shell command when the job fires."
}

func (s *Skill) Parameters() map[string]any {
	return skills.ObjectSchema(map[string]any{
		"action":  skills.Property("string", "What to do", "add", "list", "remove"),
		"name":    skills.Property("string", "Unique job name"),
		"cron":    skills.Property("string", "Cron expression, e.g. '0 7 * * 1-5' for weekday mornings"),
		"command": skills.Property("string", "Shell command to run"),
	}, "action")
}

func (s *Skill) Execute(ctx context.Context, args map[string]any) (string, error) {
	switch action := skills.StringArg(args, "action"); action {
	case "add":
		name := skills.StringArg(args, "name")
		if err := s.engine.Add(ctx, name, skills.StringArg(args, "cron"), skills.StringArg(args, "command")); err != nil {
			return skills.Errorf("%v", err), nil
		}
		return fmt.Sprintf("job '%s' scheduled", name), nil

	case "list":
		jobs, err := s.engine.Jobs(ctx)
		if err != nil {
			return skills.Errorf("list jobs: %v", err), nil
		}
		if len(jobs) == 0 {
			return "no jobs scheduled", nil
		}
		var sb strings.Builder
		for _, job := range jobs {
			fmt.Fprintf(&sb, "- %s (%s): %s\n", job.Name, job.Spec, job.Command)
		}
		return sb.String(), nil

	case "remove":
		name := skills.StringArg(args, "name")
		if err := s.engine.Remove(ctx, name); err != nil {
			return skills.Errorf("%v", err), nil
		}
		return fmt.Sprintf("job '%s' removed", name), nil

	default:
		return skills.Errorf("unknown action '%s'", action), nil
	}
}
