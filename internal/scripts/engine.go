// Package scripts runs named multi-step skill sequences defined in YAML
// files. Steps see the caller's variables plus the results of earlier steps
// through ${var} substitution.
package scripts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fhaenel/frieda/internal/skills"
)

// Script is one stored step sequence.
type Script struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

// Step is one skill invocation within a script.
type Step struct {
	Skill       string         `yaml:"skill"`
	Args        map[string]any `yaml:"args"`
	StopOnError bool           `yaml:"stop_on_error"`
}

// variable matches ${name} references inside string arguments.
var variable = regexp.MustCompile(`\$\{([a-zA-Z0-9_]+)\}`)

// Engine loads scripts from a directory and executes them through the skill
// registry.
type Engine struct {
	dir      string
	registry *skills.Registry
	logger   *slog.Logger
}

// New creates a script engine rooted at dir.
func New(dir string, registry *skills.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default().With(slog.String("component", "scripts"))
	}
	return &Engine{dir: dir, registry: registry, logger: logger}
}

// Load reads one script by name.
func (e *Engine) Load(name string) (*Script, error) {
	data, err := os.ReadFile(e.path(name))
	if err != nil {
		return nil, fmt.Errorf("script '%s' not found", name)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script '%s': %w", name, err)
	}
	if s.Name == "" {
		s.Name = name
	}
	return &s, nil
}

// List returns the names of all stored scripts, sorted.
func (e *Engine) List() []string {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Save writes a script file.
func (e *Engine) Save(s *Script) error {
	if s.Name == "" {
		return fmt.Errorf("script needs a name")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("script needs at least one step")
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode script: %w", err)
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("create script dir: %w", err)
	}
	if err := os.WriteFile(e.path(s.Name), data, 0o644); err != nil {
		return fmt.Errorf("write script: %w", err)
	}
	return nil
}

// Delete removes a script file.
func (e *Engine) Delete(name string) error {
	if err := os.Remove(e.path(name)); err != nil {
		return fmt.Errorf("script '%s' not found", name)
	}
	return nil
}

// Run executes the script's steps in order. After step i the full result is
// available to later steps as ${step_<i>_result}; a step whose result
// carries the error prefix halts the run when stop_on_error is set. The
// return value is the joined per-step report.
func (e *Engine) Run(ctx context.Context, name string, vars map[string]string) string {
	script, err := e.Load(name)
	if err != nil {
		return skills.Errorf("%v", err)
	}

	scope := make(map[string]string, len(vars))
	for k, v := range vars {
		scope[k] = v
	}

	var report []string
	for i, step := range script.Steps {
		args := substituteArgs(step.Args, scope)
		result := e.registry.Execute(ctx, step.Skill, args)
		scope[fmt.Sprintf("step_%d_result", i)] = result
		report = append(report, fmt.Sprintf("Step %d (%s): %s", i+1, step.Skill, result))

		if step.StopOnError && skills.IsError(result) {
			report = append(report, fmt.Sprintf("Script halted at step %d.", i+1))
			e.logger.Debug("script halted", "script", name, "step", i+1)
			break
		}
	}
	return strings.Join(report, "\n\n")
}

// substituteArgs resolves ${var} references in every string argument.
// Unknown variables stay as written.
func substituteArgs(args map[string]any, scope map[string]string) map[string]any {
	out := make(map[string]any, len(args))
	for key, value := range args {
		if s, ok := value.(string); ok {
			out[key] = substitute(s, scope)
		} else {
			out[key] = value
		}
	}
	return out
}

func substitute(s string, scope map[string]string) string {
	return variable.ReplaceAllStringFunc(s, func(match string) string {
		name := variable.FindStringSubmatch(match)[1]
		if v, ok := scope[name]; ok {
			return v
		}
		return match
	})
}

func (e *Engine) path(name string) string {
	return filepath.Join(e.dir, filepath.Base(name)+".yaml")
}
