package skills

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/fhaenel/frieda/internal/observability"
	"github.com/fhaenel/frieda/pkg/models"
)

// Registry maps skill names to implementations. Registration happens at
// startup; lookups are concurrent.
type Registry struct {
	mu      sync.RWMutex
	skills  map[string]Skill
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics records execution metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithTracer opens spans around executions.
func WithTracer(t *observability.Tracer) Option {
	return func(r *Registry) { r.tracer = t }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		skills: make(map[string]Skill),
		logger: slog.Default().With(slog.String("component", "skills")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a skill. The parameter schema must compile as JSON Schema
// and duplicate names are rejected; both are programming errors surfaced at
// startup.
func (r *Registry) Register(s Skill) error {
	name := s.Name()
	if name == "" {
		return fmt.Errorf("skill with empty name")
	}
	if err := validateSchema(name, s.Parameters()); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.skills[name]; exists {
		return fmt.Errorf("skill %q already registered", name)
	}
	r.skills[name] = s
	r.logger.Debug("skill registered", "skill", name)
	return nil
}

// Get returns a skill by name.
func (r *Registry) Get(name string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	return s, ok
}

// Names returns all registered skill names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the tool definitions for the named skills, or for all
// registered skills when names is nil. Unknown names are skipped.
func (r *Registry) Definitions(names []string) []models.Tool {
	if names == nil {
		names = r.Names()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]models.Tool, 0, len(names))
	for _, name := range names {
		s, ok := r.skills[name]
		if !ok {
			continue
		}
		defs = append(defs, models.NewTool(s.Name(), s.Description(), s.Parameters()))
	}
	return defs
}

// Execute runs a skill by name. The result is always a string the model can
// read; failures carry the error prefix and the returned error is nil in
// those cases so callers never have to branch twice.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) string {
	s, ok := r.Get(name)
	if !ok {
		return Errorf("skill '%s' not found", name)
	}

	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.StartSkill(ctx, name)
		defer span.End()
	}

	start := time.Now()
	result, err := s.Execute(ctx, FilterArgs(s, args, r.logger))
	if r.metrics != nil {
		r.metrics.ObserveSkillExecution(name, time.Since(start), err == nil)
	}
	if err != nil {
		r.logger.Debug("skill failed", "skill", name, "error", err)
		return Errorf("skill '%s' failed: %v", name, err)
	}
	return result
}

// FilterArgs projects the model-provided argument map onto the keys declared
// in the skill's schema properties. Unknown keys are dropped from the call
// but logged so misbehaving models stay observable.
func FilterArgs(s Skill, args map[string]any, logger *slog.Logger) map[string]any {
	props, _ := s.Parameters()["properties"].(map[string]any)
	filtered := make(map[string]any, len(args))
	for key, value := range args {
		if _, declared := props[key]; declared {
			filtered[key] = value
			continue
		}
		if logger != nil {
			logger.Debug("dropping undeclared argument", "skill", s.Name(), "key", key)
		}
	}
	return filtered
}

func validateSchema(name string, schema map[string]any) error {
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("skill %q: encode schema: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".json", bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("skill %q: invalid schema: %w", name, err)
	}
	if _, err := compiler.Compile(name + ".json"); err != nil {
		return fmt.Errorf("skill %q: invalid schema: %w", name, err)
	}
	return nil
}
