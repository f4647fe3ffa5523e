// Package automation turns events into actions: stored rules match on event
// type, source, and data paths, then run a skill, a script, a notification,
// or a full assistant turn with templated arguments.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/fhaenel/frieda/internal/events"
	"github.com/fhaenel/frieda/internal/observability"
	"github.com/fhaenel/frieda/internal/skills"
	"github.com/fhaenel/frieda/internal/storage"
)

// Action types a rule may carry.
const (
	ActionRunSkill         = "run_skill"
	ActionRunScript        = "run_script"
	ActionSendNotification = "send_notification"
	ActionSendMessage      = "send_message"
)

// placeholder matches {{event.type}}, {{event.source}}, and
// {{event.data.<dotted.path>}} references in action config strings.
var placeholder = regexp.MustCompile(`\{\{event\.([a-zA-Z0-9_.]+)\}\}`)

// ScriptRunner runs a named script. Implemented by the script engine.
type ScriptRunner interface {
	Run(ctx context.Context, name string, vars map[string]string) string
}

// Notifier delivers server-initiated messages and assistant-authored turns.
// Implemented by the notification service.
type Notifier interface {
	Notify(ctx context.Context, message string, channels []string) error
	SendAsAssistant(ctx context.Context, prompt string) error
}

// Engine subscribes to the bus and evaluates every event against the stored
// rules. Actions never run inside Emit; the bus hands each handler its own
// goroutine, which is what breaks automation/orchestrator cycles.
type Engine struct {
	store    *storage.Store
	registry *skills.Registry
	scripts  ScriptRunner
	notifier Notifier
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithScripts wires the script engine.
func WithScripts(s ScriptRunner) Option {
	return func(e *Engine) { e.scripts = s }
}

// WithNotifier wires the notification service.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics counts rule triggers.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an automation engine over the stored rules.
func New(store *storage.Store, registry *skills.Registry, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		registry: registry,
		logger:   slog.Default().With(slog.String("component", "automation")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start subscribes the engine to every bus event.
func (e *Engine) Start(bus *events.Bus) {
	bus.SubscribeAll(e.Handle)
}

// Handle evaluates one event against all rules. Failing actions are logged;
// remaining rules still run.
func (e *Engine) Handle(ctx context.Context, ev events.Event) error {
	rules, err := e.store.Rules(ctx)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	for _, rule := range rules {
		if !rule.Enabled || rule.EventType != ev.Type || !Matches(rule.Filter, ev) {
			continue
		}
		e.logger.Info("rule triggered", "rule", rule.Name, "event", ev.Type, "source", ev.Source)
		status := "ok"
		if err := e.runAction(ctx, rule, ev); err != nil {
			status = "error"
			e.logger.Error("rule action failed", "rule", rule.Name, "action", rule.ActionType, "error", err)
		}
		if e.metrics != nil {
			e.metrics.AutomationCounter.WithLabelValues(rule.Name, status).Inc()
		}
	}
	return nil
}

// Matches evaluates a rule filter against an event. A "source" key compares
// to the event source; "data.<dotted.path>" keys walk the data map. Values
// compare as strings; a missing path never matches.
func Matches(filter map[string]any, ev events.Event) bool {
	for key, want := range filter {
		var got any
		switch {
		case key == "source":
			got = ev.Source
		case strings.HasPrefix(key, "data."):
			var ok bool
			got, ok = walk(ev.Data, strings.TrimPrefix(key, "data."))
			if !ok {
				return false
			}
		default:
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// Substitute resolves event placeholders in one string. Missing data paths
// become the empty string.
func Substitute(s string, ev events.Event) string {
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		path := placeholder.FindStringSubmatch(match)[1]
		switch {
		case path == "type":
			return ev.Type
		case path == "source":
			return ev.Source
		case strings.HasPrefix(path, "data."):
			if v, ok := walk(ev.Data, strings.TrimPrefix(path, "data.")); ok {
				return fmt.Sprint(v)
			}
			return ""
		default:
			return ""
		}
	})
}

func (e *Engine) runAction(ctx context.Context, rule storage.Rule, ev events.Event) error {
	cfg := substituteConfig(rule.ActionConfig, ev)

	switch rule.ActionType {
	case ActionRunSkill:
		name, _ := cfg["skill"].(string)
		if name == "" {
			return fmt.Errorf("rule '%s': no skill configured", rule.Name)
		}
		args, _ := cfg["args"].(map[string]any)
		result := e.registry.Execute(ctx, name, args)
		e.logger.Debug("rule skill ran", "rule", rule.Name, "skill", name, "result_len", len(result))
		return nil

	case ActionRunScript:
		if e.scripts == nil {
			return fmt.Errorf("rule '%s': no script engine wired", rule.Name)
		}
		name, _ := cfg["script"].(string)
		vars := map[string]string{
			"event_type":   ev.Type,
			"event_source": ev.Source,
		}
		if extra, ok := cfg["variables"].(map[string]any); ok {
			for k, v := range extra {
				vars[k] = fmt.Sprint(v)
			}
		}
		result := e.scripts.Run(ctx, name, vars)
		e.logger.Debug("rule script ran", "rule", rule.Name, "script", name, "result_len", len(result))
		return nil

	case ActionSendNotification:
		if e.notifier == nil {
			return fmt.Errorf("rule '%s': no notifier wired", rule.Name)
		}
		message, _ := cfg["message"].(string)
		return e.notifier.Notify(ctx, message, stringSlice(cfg["channels"]))

	case ActionSendMessage:
		if e.notifier == nil {
			return fmt.Errorf("rule '%s': no notifier wired", rule.Name)
		}
		message, _ := cfg["message"].(string)
		return e.notifier.SendAsAssistant(ctx, message)

	default:
		return fmt.Errorf("rule '%s': unknown action type %q", rule.Name, rule.ActionType)
	}
}

// substituteConfig templates every string in the action config, including
// strings nested one map level down (skill args, script variables).
func substituteConfig(cfg map[string]any, ev events.Event) map[string]any {
	out := make(map[string]any, len(cfg))
	for key, value := range cfg {
		switch v := value.(type) {
		case string:
			out[key] = Substitute(v, ev)
		case map[string]any:
			nested := make(map[string]any, len(v))
			for nk, nv := range v {
				if s, ok := nv.(string); ok {
					nested[nk] = Substitute(s, ev)
				} else {
					nested[nk] = nv
				}
			}
			out[key] = nested
		default:
			out[key] = value
		}
	}
	return out
}

// walk follows a dotted path through nested maps.
func walk(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = data
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func stringSlice(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}

// AddRule validates and persists a rule.
func (e *Engine) AddRule(ctx context.Context, rule storage.Rule) error {
	switch rule.ActionType {
	case ActionRunSkill, ActionRunScript, ActionSendNotification, ActionSendMessage:
	default:
		return fmt.Errorf("unknown action type %q", rule.ActionType)
	}
	if rule.Name == "" || rule.EventType == "" {
		return fmt.Errorf("rule needs a name and an event type")
	}
	return e.store.SaveRule(ctx, rule)
}

// Rules lists the stored rules.
func (e *Engine) Rules(ctx context.Context) ([]storage.Rule, error) {
	return e.store.Rules(ctx)
}

// SetEnabled flips one rule.
func (e *Engine) SetEnabled(ctx context.Context, name string, enabled bool) error {
	found, err := e.store.SetRuleEnabled(ctx, name, enabled)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("rule '%s' not found", name)
	}
	return nil
}

// RemoveRule deletes one rule.
func (e *Engine) RemoveRule(ctx context.Context, name string) error {
	found, err := e.store.DeleteRule(ctx, name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("rule '%s' not found", name)
	}
	return nil
}
