package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/fhaenel/frieda/internal/skills"
	"github.com/fhaenel/frieda/internal/storage"
)

// ManagerSkill exposes the fact store to the model as memory_manager.
type ManagerSkill struct {
	store *storage.Store
}

// NewManagerSkill creates the memory_manager skill.
func NewManagerSkill(store *storage.Store) *ManagerSkill {
	return &ManagerSkill{store: store}
}

func (s *ManagerSkill) Name() string { return "memory_manager" }

func (s *ManagerSkill) Description() string {
	return "Store, search, list, or delete remembered facts. Facts are key/value pairs under a category; storing the same category and key again replaces the value."
}

func (s *ManagerSkill) Parameters() map[string]any {
	return skills.ObjectSchema(map[string]any{
		"action":   skills.Property("string", "What to do", "remember", "recall", "forget", "list"),
		"category": skills.Property("string", "Fact category, e.g. 'personen' or 'projekte'"),
		"key":      skills.Property("string", "Fact key"),
		"value":    skills.Property("string", "Fact value (for remember)"),
		"query":    skills.Property("string", "Search text (for recall)"),
	}, "action")
}

func (s *ManagerSkill) Execute(ctx context.Context, args map[string]any) (string, error) {
	category := skills.StringArg(args, "category")
	key := skills.StringArg(args, "key")

	switch action := skills.StringArg(args, "action"); action {
	case "remember":
		value := skills.StringArg(args, "value")
		if category == "" || key == "" || value == "" {
			return skills.Errorf("remember needs category, key, and value"), nil
		}
		if err := s.store.Remember(ctx, category, key, value); err != nil {
			return skills.Errorf("remember: %v", err), nil
		}
		return fmt.Sprintf("remembered %s/%s", category, key), nil

	case "recall":
		query := skills.StringArg(args, "query")
		if query == "" {
			return skills.Errorf("recall needs a query"), nil
		}
		facts, err := s.store.SearchFacts(ctx, query)
		if err != nil {
			return skills.Errorf("recall: %v", err), nil
		}
		if len(facts) == 0 {
			return "nothing found for '" + query + "'", nil
		}
		return renderFacts(facts), nil

	case "forget":
		if category == "" || key == "" {
			return skills.Errorf("forget needs category and key"), nil
		}
		found, err := s.store.Forget(ctx, category, key)
		if err != nil {
			return skills.Errorf("forget: %v", err), nil
		}
		if !found {
			return skills.Errorf("fact %s/%s not found", category, key), nil
		}
		return fmt.Sprintf("forgot %s/%s", category, key), nil

	case "list":
		facts, err := s.store.RecentFacts(ctx, 50)
		if err != nil {
			return skills.Errorf("list: %v", err), nil
		}
		if len(facts) == 0 {
			return "memory is empty", nil
		}
		return renderFacts(facts), nil

	default:
		return skills.Errorf("unknown action '%s'", action), nil
	}
}

func renderFacts(facts []storage.Fact) string {
	var sb strings.Builder
	for _, fact := range facts {
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", fact.Category, fact.Key, fact.Value)
	}
	return sb.String()
}
