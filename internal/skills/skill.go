// Package skills defines the tool surface exposed to the model: the Skill
// interface, a thread-safe registry, schema-driven argument projection, and
// a bounded concurrent executor.
//
// Failure is not exceptional at this boundary. Unknown skills, execution
// errors, and panics all resolve to an "error: ..." result string so the
// model can observe the failure and react inside the conversation.
package skills

import (
	"context"
	"fmt"
	"strings"
)

// ErrorPrefix marks operational failures inside tool results. The script
// engine halts on it and tests assert it.
const ErrorPrefix = "error: "

// Skill is a named, schema-typed callable exposed to the model as a tool.
type Skill interface {
	// Name is the unique tool identifier.
	Name() string

	// Description tells the model when to use the skill.
	Description() string

	// Parameters is a JSON-schema object of shape
	// {"type":"object","properties":{...},"required":[...]}.
	Parameters() map[string]any

	// Execute runs the skill. Arguments have already been projected onto
	// the declared properties.
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Errorf renders an operational failure as a tool-result string.
func Errorf(format string, args ...any) string {
	return ErrorPrefix + fmt.Sprintf(format, args...)
}

// IsError reports whether a tool result carries the failure prefix.
func IsError(result string) bool {
	return strings.HasPrefix(result, ErrorPrefix)
}

// StringArg reads a string argument, empty when absent or mistyped.
func StringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// IntArg reads a numeric argument, falling back to def. JSON numbers decode
// as float64; string digits from sloppy models are accepted too.
func IntArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return def
}

// BoolArg reads a boolean argument, falling back to def.
func BoolArg(args map[string]any, key string, def bool) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "true", "yes", "1":
			return true
		case "false", "no", "0":
			return false
		}
	}
	return def
}

// ObjectSchema builds the parameter schema shape every skill uses.
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Property builds one schema property entry.
func Property(typ, description string, enum ...string) map[string]any {
	p := map[string]any{
		"type":        typ,
		"description": description,
	}
	if len(enum) > 0 {
		p["enum"] = enum
	}
	return p
}
