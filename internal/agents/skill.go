package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/fhaenel/frieda/internal/skills"
)

// ManagerSkill lets the assistant inspect and edit its own custom agents.
type ManagerSkill struct {
	loader *Loader
}

// NewManagerSkill creates the agent_manager skill.
func NewManagerSkill(loader *Loader) *ManagerSkill {
	return &ManagerSkill{loader: loader}
}

func (s *ManagerSkill) Name() string { return "agent_manager" }

func (s *ManagerSkill) Description() string {
	return "Manage the available sub-agents: list them, show one, create or update a custom agent, or delete a custom agent."
}

func (s *ManagerSkill) Parameters() map[string]any {
	return skills.ObjectSchema(map[string]any{
		"action":        skills.Property("string", "What to do", "list", "show", "create", "update", "delete"),
		"name":          skills.Property("string", "Agent name"),
		"description":   skills.Property("string", "What the agent is for"),
		"system_prompt": skills.Property("string", "The agent's system prompt"),
		"model":         skills.Property("string", "Model override, empty for the default"),
		"skills":        skills.Property("string", "Comma-separated skill allowlist, empty for full access"),
		"max_rounds":    skills.Property("integer", "Tool-loop round budget"),
	}, "action")
}

func (s *ManagerSkill) Execute(ctx context.Context, args map[string]any) (string, error) {
	action := skills.StringArg(args, "action")
	name := skills.StringArg(args, "name")

	switch action {
	case "list":
		var sb strings.Builder
		for _, tpl := range s.loader.All() {
			kind := "custom"
			if tpl.Builtin {
				kind = "builtin"
			}
			fmt.Fprintf(&sb, "- %s (%s): %s\n", tpl.Name, kind, tpl.Description)
		}
		if sb.Len() == 0 {
			return "no agents configured", nil
		}
		return sb.String(), nil

	case "show":
		tpl, ok := s.loader.Get(name)
		if !ok {
			return skills.Errorf("agent '%s' not found", name), nil
		}
		skillList := "all"
		if tpl.Skills != nil {
			skillList = strings.Join(tpl.Skills, ", ")
		}
		return fmt.Sprintf("name: %s\ndescription: %s\nmodel: %s\nskills: %s\nmax_rounds: %d\nsystem prompt:\n%s",
			tpl.Name, tpl.Description, tpl.ResolveModel("(default)"), skillList, tpl.MaxRounds, tpl.SystemPrompt), nil

	case "create", "update":
		if name == "" {
			return skills.Errorf("a name is required"), nil
		}
		if existing, ok := s.loader.Get(name); ok && existing.Builtin && action == "update" {
			return skills.Errorf("agent '%s' is builtin and cannot be edited", name), nil
		}
		tpl := &Template{
			Name:         name,
			Description:  skills.StringArg(args, "description"),
			SystemPrompt: skills.StringArg(args, "system_prompt"),
			Model:        skills.StringArg(args, "model"),
			MaxRounds:    skills.IntArg(args, "max_rounds", DefaultMaxRounds),
		}
		if list := skills.StringArg(args, "skills"); list != "" {
			for _, part := range strings.Split(list, ",") {
				if part = strings.TrimSpace(part); part != "" {
					tpl.Skills = append(tpl.Skills, part)
				}
			}
		}
		if err := s.loader.Save(tpl); err != nil {
			return skills.Errorf("save agent: %v", err), nil
		}
		return fmt.Sprintf("agent '%s' saved", name), nil

	case "delete":
		if err := s.loader.Delete(name); err != nil {
			return skills.Errorf("%v", err), nil
		}
		return fmt.Sprintf("agent '%s' deleted", name), nil

	default:
		return skills.Errorf("unknown action '%s'", action), nil
	}
}
