package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fhaenel/frieda/internal/skills"
	"github.com/fhaenel/frieda/internal/storage"
)

// ManagerSkill exposes rule CRUD to the model as automation_manager.
type ManagerSkill struct {
	engine *Engine
}

// NewManagerSkill creates the automation_manager skill.
func NewManagerSkill(engine *Engine) *ManagerSkill {
	return &ManagerSkill{engine: engine}
}

func (s *ManagerSkill) Name() string { return "automation_manager" }

func (s *ManagerSkill) Description() string {
	return "Manage event automations: create a rule that reacts to an event type, list rules, enable or disable one, or delete one. Filters and action config are JSON objects; config strings may use {{event.type}}, {{event.source}}, and {{event.data.<path>}} placeholders."
}

func (s *ManagerSkill) Parameters() map[string]any {
	return skills.ObjectSchema(map[string]any{
		"action":        skills.Property("string", "What to do", "create", "list", "enable", "disable", "delete"),
		"name":          skills.Property("string", "Unique rule name"),
		"event_type":    skills.Property("string", "Event type to react to, e.g. schedule_triggered or webhook_received"),
		"event_filter":  skills.Property("string", "JSON filter object, e.g. {\"source\": \"scheduler:morning\"}"),
		"action_type":   skills.Property("string", "Action to run", ActionRunSkill, ActionRunScript, ActionSendNotification, ActionSendMessage),
		"action_config": skills.Property("string", "JSON action config, e.g. {\"message\": \"Guten Morgen!\"}"),
	}, "action")
}

func (s *ManagerSkill) Execute(ctx context.Context, args map[string]any) (string, error) {
	name := skills.StringArg(args, "name")

	switch action := skills.StringArg(args, "action"); action {
	case "create":
		rule := storage.Rule{
			Name:       name,
			Enabled:    true,
			EventType:  skills.StringArg(args, "event_type"),
			ActionType: skills.StringArg(args, "action_type"),
		}
		var err error
		if rule.Filter, err = parseJSONObject(skills.StringArg(args, "event_filter")); err != nil {
			return skills.Errorf("invalid event_filter: %v", err), nil
		}
		if rule.ActionConfig, err = parseJSONObject(skills.StringArg(args, "action_config")); err != nil {
			return skills.Errorf("invalid action_config: %v", err), nil
		}
		if err := s.engine.AddRule(ctx, rule); err != nil {
			return skills.Errorf("%v", err), nil
		}
		return fmt.Sprintf("rule '%s' created", name), nil

	case "list":
		rules, err := s.engine.Rules(ctx)
		if err != nil {
			return skills.Errorf("list rules: %v", err), nil
		}
		if len(rules) == 0 {
			return "no rules configured", nil
		}
		var sb strings.Builder
		for _, rule := range rules {
			state := "enabled"
			if !rule.Enabled {
				state = "disabled"
			}
			fmt.Fprintf(&sb, "- %s (%s): on %s -> %s\n", rule.Name, state, rule.EventType, rule.ActionType)
		}
		return sb.String(), nil

	case "enable", "disable":
		if err := s.engine.SetEnabled(ctx, name, action == "enable"); err != nil {
			return skills.Errorf("%v", err), nil
		}
		return fmt.Sprintf("rule '%s' %sd", name, action), nil

	case "delete":
		if err := s.engine.RemoveRule(ctx, name); err != nil {
			return skills.Errorf("%v", err), nil
		}
		return fmt.Sprintf("rule '%s' deleted", name), nil

	default:
		return skills.Errorf("unknown action '%s'", action), nil
	}
}

func parseJSONObject(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}
