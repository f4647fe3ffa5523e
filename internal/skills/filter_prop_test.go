package skills

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type schemaSkill struct {
	declared []string
}

func (s *schemaSkill) Name() string        { return "schema_skill" }
func (s *schemaSkill) Description() string { return "test" }
func (s *schemaSkill) Parameters() map[string]any {
	props := map[string]any{}
	for _, key := range s.declared {
		props[key] = Property("string", key)
	}
	return ObjectSchema(props)
}
func (s *schemaSkill) Execute(context.Context, map[string]any) (string, error) { return "", nil }

func TestFilterArgsProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	key := gen.OneConstOf("query", "path", "command", "text", "url", "halluzination", "extra", "prompt")

	properties.Property("filtered args only carry declared keys", prop.ForAll(
		func(declared, provided []string) bool {
			skill := &schemaSkill{declared: declared}
			args := map[string]any{}
			for _, k := range provided {
				args[k] = "wert"
			}
			allowed := map[string]bool{}
			for _, k := range declared {
				allowed[k] = true
			}
			for k := range FilterArgs(skill, args, nil) {
				if !allowed[k] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(key),
		gen.SliceOf(key),
	))

	properties.Property("declared keys always survive", prop.ForAll(
		func(declared []string) bool {
			skill := &schemaSkill{declared: declared}
			args := map[string]any{}
			for _, k := range declared {
				args[k] = "wert"
			}
			filtered := FilterArgs(skill, args, nil)
			return len(filtered) == len(args)
		},
		gen.SliceOf(key),
	))

	properties.TestingRun(t)
}
