// Package agents loads agent templates from YAML files and routes delegated
// tasks to them. An agent is a persona with its own model, system prompt,
// skill allowlist, and round budget, run on the same loop as the top-level
// orchestrator.
package agents

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fhaenel/frieda/internal/chat"
)

// GeneralAgent is the reserved default agent. It is never delegatable and
// cannot be edited or deleted.
const GeneralAgent = chat.GeneralAgent

// Default budgets applied when a template omits them.
const (
	DefaultMaxRounds     = 5
	DefaultContextWindow = 4
)

// Template is one agent definition. Skills nil means full access; an empty
// list means no tools at all.
type Template struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Model         string   `yaml:"model"`
	ModelEnv      string   `yaml:"model_env"`
	SystemPrompt  string   `yaml:"system_prompt"`
	Skills        []string `yaml:"skills"`
	MaxRounds     int      `yaml:"max_rounds"`
	Temperature   *float64 `yaml:"temperature"`
	ContextWindow int      `yaml:"context_window"`

	// Builtin templates come from the _builtin directory and refuse
	// editing and deletion. Set by the loader, not by the file.
	Builtin bool `yaml:"-"`
}

// ResolveModel returns the model to run: the env indirection when set and
// present, then the template model, then the fallback.
func (t *Template) ResolveModel(fallback string) string {
	if t.ModelEnv != "" {
		if v := os.Getenv(t.ModelEnv); v != "" {
			return v
		}
	}
	if t.Model != "" {
		return t.Model
	}
	return fallback
}

// parseTemplate decodes one YAML template. Unknown fields are ignored so
// templates stay forward-compatible; missing budgets get defaults.
func parseTemplate(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	if t.Name == "" {
		return nil, fmt.Errorf("template without a name")
	}
	if t.MaxRounds <= 0 {
		t.MaxRounds = DefaultMaxRounds
	}
	if t.ContextWindow <= 0 {
		t.ContextWindow = DefaultContextWindow
	}
	return &t, nil
}

func (t *Template) encode() ([]byte, error) {
	return yaml.Marshal(t)
}
