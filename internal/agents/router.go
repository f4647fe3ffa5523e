package agents

import (
	"context"
	"log/slog"
	"sort"

	"github.com/fhaenel/frieda/internal/chat"
	"github.com/fhaenel/frieda/internal/observability"
	"github.com/fhaenel/frieda/internal/skills"
	"github.com/fhaenel/frieda/pkg/models"
)

// summarizePrompt forces an answer when an agent ran tools but never wrote
// one. German because the agents answer the owner directly.
const summarizePrompt = "Fasse die Ergebnisse der Tool-Aufrufe zusammen und beantworte die ursprüngliche Aufgabe."

// agentFallback is returned when an agent produces no text at all.
const agentFallback = "Der Agent konnte keine Antwort liefern."

// Router runs delegated tasks on sub-agents. It implements chat.Delegator,
// so the orchestrator sees it only as the delegate_to_agent tool.
type Router struct {
	loader       *Loader
	loop         *chat.Loop
	registry     *skills.Registry
	defaultModel string
	workspace    string
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the logger.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// WithRouterMetrics counts delegations.
func WithRouterMetrics(m *observability.Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

// WithRouterWorkspace prepends the persona workspace block to every agent's
// system prompt.
func WithRouterWorkspace(content string) RouterOption {
	return func(r *Router) { r.workspace = content }
}

// NewRouter creates a router over the loaded templates.
func NewRouter(loader *Loader, loop *chat.Loop, registry *skills.Registry, defaultModel string, opts ...RouterOption) *Router {
	r := &Router{
		loader:       loader,
		loop:         loop,
		registry:     registry,
		defaultModel: defaultModel,
		logger:       slog.Default().With(slog.String("component", "agents")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Eligible reports whether the agent may be delegated to under the allowed
// skill set. The general agent never is; with a restricted set only agents
// whose explicit skill list fits entirely inside it qualify.
func (r *Router) Eligible(agent string, allowed []string) bool {
	if agent == GeneralAgent {
		return false
	}
	tpl, ok := r.loader.Get(agent)
	if !ok {
		return false
	}
	if allowed == nil {
		return true
	}
	if tpl.Skills == nil {
		// Full-access agents need a full-access session.
		return false
	}
	permitted := make(map[string]bool, len(allowed))
	for _, s := range allowed {
		permitted[s] = true
	}
	for _, s := range tpl.Skills {
		if !permitted[s] {
			return false
		}
	}
	return true
}

// Tool builds the delegate_to_agent definition over the agents eligible
// under allowed. ok is false when none qualify, in which case the tool must
// not be offered.
func (r *Router) Tool(allowed []string) (models.Tool, bool) {
	var names []string
	var lines []string
	for _, tpl := range r.loader.All() {
		if !r.Eligible(tpl.Name, allowed) {
			continue
		}
		names = append(names, tpl.Name)
		lines = append(lines, tpl.Name+": "+tpl.Description)
	}
	if len(names) == 0 {
		return models.Tool{}, false
	}
	sort.Strings(names)

	description := "Delegate a task to a specialized agent. Available agents:\n"
	for _, line := range lines {
		description += "- " + line + "\n"
	}
	return models.NewTool(chat.DelegateToolName, description, skills.ObjectSchema(map[string]any{
		"agent": skills.Property("string", "Name of the agent to delegate to", names...),
		"task":  skills.Property("string", "Complete task description for the agent"),
	}, "agent", "task")), true
}

// Run executes the named agent on the task. The caller's recent history is
// folded into the agent's context; the agent's tool calls and images flow
// through sink with the agent name as prefix. The result is always text.
func (r *Router) Run(ctx context.Context, agent, task string, history []models.Message, sink chat.Sink) string {
	tpl, ok := r.loader.Get(agent)
	if !ok {
		return skills.Errorf("agent '%s' not found", agent)
	}

	messages := r.assemble(tpl, history, task)
	cfg := chat.LoopConfig{
		Model:         tpl.ResolveModel(r.defaultModel),
		MaxRounds:     tpl.MaxRounds,
		Tools:         r.registry.Definitions(tpl.Skills),
		AllowedSkills: tpl.Skills,
	}
	if tpl.Temperature != nil {
		cfg.Temperature = *tpl.Temperature
	}

	prefixed := prefixSink{agent: agent, sink: sink}
	result, err := r.loop.Run(ctx, cfg, messages, prefixed)
	if err != nil {
		r.record(agent, "error")
		r.logger.Error("agent run failed", "agent", agent, "error", err)
		return skills.Errorf("agent '%s' failed: %v", agent, err)
	}

	content := result.Content
	if content == "" && result.ToolsRan {
		content = r.summarize(ctx, cfg, result.Messages, prefixed)
	}
	if content == "" {
		r.record(agent, "error")
		return agentFallback
	}
	r.record(agent, "success")
	return content
}

// assemble builds the agent's isolated transcript: its system prompt, the
// last context_window user/assistant turns of the caller, and the task.
func (r *Router) assemble(tpl *Template, history []models.Message, task string) []models.Message {
	system := tpl.SystemPrompt
	if r.workspace != "" {
		system += "\n\n" + r.workspace
	}
	messages := []models.Message{models.SystemMessage(system)}

	var context []models.Message
	for _, msg := range history {
		if (msg.Role == models.RoleUser || msg.Role == models.RoleAssistant) && msg.Content != "" {
			context = append(context, models.Message{Role: msg.Role, Content: msg.Content})
		}
	}
	if len(context) > tpl.ContextWindow {
		context = context[len(context)-tpl.ContextWindow:]
	}
	messages = append(messages, context...)
	return append(messages, models.UserMessage(task))
}

// summarize asks the agent's model for a final answer with tools disabled.
func (r *Router) summarize(ctx context.Context, cfg chat.LoopConfig, transcript []models.Message, sink chat.Sink) string {
	cfg.Tools = nil
	cfg.MaxRounds = 1
	result, err := r.loop.Run(ctx, cfg, append(transcript, models.UserMessage(summarizePrompt)), sink)
	if err != nil {
		r.logger.Error("agent summary failed", "error", err)
		return ""
	}
	return result.Content
}

func (r *Router) record(agent, status string) {
	if r.metrics != nil {
		r.metrics.DelegationCounter.WithLabelValues(agent, status).Inc()
	}
}

// prefixSink renames the inner agent's tool events so the client can tell
// sub-agent activity apart from top-level calls.
type prefixSink struct {
	agent string
	sink  chat.Sink
}

func (p prefixSink) ToolCall(tool string, args map[string]any) {
	p.sink.ToolCall(p.agent+":"+tool, args)
}

func (p prefixSink) Image(url, alt string) {
	p.sink.Image(url, alt)
}
