package webhook

import (
	"context"
	"fmt"
	"strings"

	"github.com/fhaenel/frieda/internal/skills"
)

// ManagerSkill exposes webhook CRUD to the model as webhook_manager.
type ManagerSkill struct {
	manager *Manager
	baseURL string
}

// NewManagerSkill creates the webhook_manager skill. baseURL is the public
// prefix shown in created-webhook instructions.
func NewManagerSkill(manager *Manager, baseURL string) *ManagerSkill {
	return &ManagerSkill{manager: manager, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *ManagerSkill) Name() string { return "webhook_manager" }

func (s *ManagerSkill) Description() string {
	return "Manage incoming webhooks: create one (returns the URL and secret token once), list them, or delete one. External systems POST to the URL to trigger automations."
}

func (s *ManagerSkill) Parameters() map[string]any {
	return skills.ObjectSchema(map[string]any{
		"action":      skills.Property("string", "What to do", "create", "list", "delete"),
		"name":        skills.Property("string", "Unique webhook name"),
		"description": skills.Property("string", "What the webhook is for"),
	}, "action")
}

func (s *ManagerSkill) Execute(ctx context.Context, args map[string]any) (string, error) {
	name := skills.StringArg(args, "name")

	switch action := skills.StringArg(args, "action"); action {
	case "create":
		token, err := s.manager.Create(ctx, name, skills.StringArg(args, "description"))
		if err != nil {
			return skills.Errorf("%v", err), nil
		}
		return fmt.Sprintf("webhook '%s' created.\nURL: %s/api/webhooks/%s\nToken (shown only once): %s",
			name, s.baseURL, name, token), nil

	case "list":
		hooks, err := s.manager.List(ctx)
		if err != nil {
			return skills.Errorf("list webhooks: %v", err), nil
		}
		if len(hooks) == 0 {
			return "no webhooks registered", nil
		}
		var sb strings.Builder
		for _, hook := range hooks {
			fmt.Fprintf(&sb, "- %s: %s\n", hook.Name, hook.Description)
		}
		return sb.String(), nil

	case "delete":
		if err := s.manager.Delete(ctx, name); err != nil {
			return skills.Errorf("%v", err), nil
		}
		return fmt.Sprintf("webhook '%s' deleted", name), nil

	default:
		return skills.Errorf("unknown action '%s'", action), nil
	}
}
