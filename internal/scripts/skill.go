package scripts

import (
	"context"
	"fmt"
	"strings"

	"github.com/fhaenel/frieda/internal/skills"
)

// ManagerSkill exposes the script engine to the model as script_manager.
type ManagerSkill struct {
	engine *Engine
}

// NewManagerSkill creates the script_manager skill.
func NewManagerSkill(engine *Engine) *ManagerSkill {
	return &ManagerSkill{engine: engine}
}

func (s *ManagerSkill) Name() string { return "script_manager" }

func (s *ManagerSkill) Description() string {
	return "Run, list, inspect, or delete multi-step scripts. A script executes a fixed sequence of skills; pass variables as 'key=value' lines."
}

func (s *ManagerSkill) Parameters() map[string]any {
	return skills.ObjectSchema(map[string]any{
		"action":    skills.Property("string", "What to do", "run", "list", "show", "delete"),
		"name":      skills.Property("string", "Script name"),
		"variables": skills.Property("string", "Variables for a run, one key=value per line"),
	}, "action")
}

func (s *ManagerSkill) Execute(ctx context.Context, args map[string]any) (string, error) {
	name := skills.StringArg(args, "name")

	switch action := skills.StringArg(args, "action"); action {
	case "run":
		return s.engine.Run(ctx, name, parseVars(skills.StringArg(args, "variables"))), nil

	case "list":
		names := s.engine.List()
		if len(names) == 0 {
			return "no scripts stored", nil
		}
		return "- " + strings.Join(names, "\n- "), nil

	case "show":
		script, err := s.engine.Load(name)
		if err != nil {
			return skills.Errorf("%v", err), nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s: %s\n", script.Name, script.Description)
		for i, step := range script.Steps {
			fmt.Fprintf(&sb, "%d. %s %v", i+1, step.Skill, step.Args)
			if step.StopOnError {
				sb.WriteString(" (stops on error)")
			}
			sb.WriteString("\n")
		}
		return sb.String(), nil

	case "delete":
		if err := s.engine.Delete(name); err != nil {
			return skills.Errorf("%v", err), nil
		}
		return fmt.Sprintf("script '%s' deleted", name), nil

	default:
		return skills.Errorf("unknown action '%s'", action), nil
	}
}

func parseVars(raw string) map[string]string {
	vars := map[string]string{}
	for _, line := range strings.Split(raw, "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), "=")
		if found && key != "" {
			vars[key] = value
		}
	}
	return vars
}
