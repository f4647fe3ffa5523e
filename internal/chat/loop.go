package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fhaenel/frieda/internal/llm"
	"github.com/fhaenel/frieda/internal/skills"
	"github.com/fhaenel/frieda/pkg/models"
)

// DelegateToolName is the reserved tool through which the model hands work
// to a sub-agent.
const DelegateToolName = "delegate_to_agent"

// GeneralAgent names the default persona. An explicit request for it runs
// the normal loop instead of a delegated sub-agent.
const GeneralAgent = "general"

// Sink receives the side events a loop produces while it runs: tool-call
// announcements and extracted images. The chat engine forwards them to the
// client channel; the agent router forwards them to its caller.
type Sink interface {
	ToolCall(tool string, args map[string]any)
	Image(url, alt string)
}

// Delegator runs named sub-agents. Implemented by the agent router; the loop
// only sees this surface so the router can itself be built on the loop.
type Delegator interface {
	// Tool returns the delegate_to_agent definition restricted to agents
	// eligible under the allowed skill set (nil = unrestricted). ok is
	// false when no agent qualifies.
	Tool(allowed []string) (tool models.Tool, ok bool)

	// Eligible reports whether the named agent may be delegated to under
	// the allowed skill set.
	Eligible(agent string, allowed []string) bool

	// Run executes the agent on the task with the caller's history as
	// context. The result is always text; failures carry the error prefix.
	Run(ctx context.Context, agent, task string, history []models.Message, sink Sink) string
}

// LoopConfig parameterises one bounded tool-loop run.
type LoopConfig struct {
	Model         string
	Temperature   float64 // 0 = provider default
	MaxRounds     int
	Tools         []models.Tool
	AllowedSkills []string // nil = every registered skill
	Delegator     Delegator
	History       []models.Message // passed to delegated agents as context
}

// Result is the outcome of a loop run.
type Result struct {
	// Content is the scrubbed final text; empty when the model never
	// produced any.
	Content string

	// Messages is the transcript including every tool round.
	Messages []models.Message

	// Rounds counts the model calls made.
	Rounds int

	// ToolsRan reports whether any tool executed.
	ToolsRan bool
}

// Loop is the bounded LLM/tool state machine shared by the chat engine and
// the agent router: call the model, run requested tools, append results,
// repeat until the model answers in text or the round budget is spent.
type Loop struct {
	llm         *llm.Client
	registry    *skills.Registry
	executor    *skills.Executor
	logger      *slog.Logger
	scrubFiller bool
	placeholder string
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLoopLogger sets the logger.
func WithLoopLogger(l *slog.Logger) LoopOption {
	return func(lp *Loop) { lp.logger = l }
}

// WithScrubFiller toggles the filler-line scrub heuristic.
func WithScrubFiller(on bool) LoopOption {
	return func(lp *Loop) { lp.scrubFiller = on }
}

// WithImagePlaceholder replaces the text left behind for extracted images.
func WithImagePlaceholder(p string) LoopOption {
	return func(lp *Loop) { lp.placeholder = p }
}

// NewLoop creates a loop runner over the given model client and skill layer.
func NewLoop(client *llm.Client, registry *skills.Registry, executor *skills.Executor, opts ...LoopOption) *Loop {
	lp := &Loop{
		llm:         client,
		registry:    registry,
		executor:    executor,
		logger:      slog.Default().With(slog.String("component", "chat")),
		scrubFiller: true,
		placeholder: "[Bild wurde angezeigt]",
	}
	for _, opt := range opts {
		opt(lp)
	}
	return lp
}

// Run drives the tool loop until the model stops calling tools or MaxRounds
// is reached. Only model transport failures return an error; tool failures
// flow back into the conversation as error-prefixed results.
func (lp *Loop) Run(ctx context.Context, cfg LoopConfig, messages []models.Message, sink Sink) (Result, error) {
	res := Result{}
	var options map[string]any
	if cfg.Temperature > 0 {
		options = map[string]any{"temperature": cfg.Temperature}
	}

	for res.Rounds < cfg.MaxRounds {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Rounds++

		resp, err := lp.llm.Chat(ctx, llm.ChatRequest{
			Model:    cfg.Model,
			Messages: messages,
			Tools:    cfg.Tools,
			Options:  options,
		})
		if err != nil {
			res.Messages = messages
			return res, fmt.Errorf("round %d: %w", res.Rounds, err)
		}

		res.Content = Scrub(resp.Message.Content, lp.scrubFiller)
		calls := resp.Message.ToolCalls
		if len(calls) == 0 {
			break
		}
		res.ToolsRan = true

		var delegations, regular []models.ToolCall
		for _, call := range calls {
			if call.Name == DelegateToolName {
				delegations = append(delegations, call)
			} else {
				regular = append(regular, call)
			}
		}

		// One agent's reply may shape the next delegation, so these
		// stay sequential and run before the regular fan-out.
		for _, call := range delegations {
			messages = lp.runDelegation(ctx, cfg, call, messages, sink)
		}
		messages = lp.runRegular(ctx, cfg, regular, messages, sink)
	}

	res.Messages = messages
	return res, nil
}

func (lp *Loop) runDelegation(ctx context.Context, cfg LoopConfig, call models.ToolCall, messages []models.Message, sink Sink) []models.Message {
	agent := skills.StringArg(call.Arguments, "agent")
	task := skills.StringArg(call.Arguments, "task")
	sink.ToolCall("agent:"+agent, map[string]any{"task": task})

	var result string
	switch {
	case cfg.Delegator == nil:
		result = skills.Errorf("no agents are available")
	case !cfg.Delegator.Eligible(agent, cfg.AllowedSkills):
		result = skills.Errorf("access to agent '%s' denied", agent)
	default:
		result = cfg.Delegator.Run(ctx, agent, task, cfg.History, sink)
	}

	return appendToolRound(messages, call, fmt.Sprintf("[reply from agent '%s']\n%s", agent, result))
}

// runRegular fans the non-delegation calls out through the bounded executor.
// Every tool_call event fires before any result is appended, and results are
// appended in call order.
func (lp *Loop) runRegular(ctx context.Context, cfg LoopConfig, calls []models.ToolCall, messages []models.Message, sink Sink) []models.Message {
	if len(calls) == 0 {
		return messages
	}

	allowed := allowedSet(cfg.AllowedSkills)
	prepared := make([]skills.Call, len(calls))
	denied := make([]bool, len(calls))
	for i, call := range calls {
		args := call.Arguments
		if s, ok := lp.registry.Get(call.Name); ok {
			args = skills.FilterArgs(s, args, lp.logger)
		}
		// The tool list handed to the model was already filtered; this
		// second check catches a model that calls a tool anyway.
		if allowed != nil && !allowed[call.Name] {
			denied[i] = true
		}
		sink.ToolCall(call.Name, args)
		prepared[i] = skills.Call{Name: call.Name, Args: args}
	}

	var runnable []skills.Call
	for i, call := range prepared {
		if !denied[i] {
			runnable = append(runnable, call)
		}
	}
	executed := lp.executor.ExecuteAll(ctx, runnable)

	next := 0
	for i, call := range calls {
		var result string
		if denied[i] {
			lp.logger.Warn("blocked tool call outside allowed set", "skill", call.Name)
			result = skills.Errorf("access to skill '%s' denied", call.Name)
		} else {
			result = executed[next]
			next++
		}
		result = extractImages(result, sink, lp.placeholder)
		messages = appendToolRound(messages, call, fmt.Sprintf("[result of %s]\n%s", call.Name, result))
	}
	return messages
}

func allowedSet(names []string) map[string]bool {
	if names == nil {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func appendToolRound(messages []models.Message, call models.ToolCall, result string) []models.Message {
	messages = append(messages, models.Message{
		Role:      models.RoleAssistant,
		ToolCalls: []models.ToolCall{call},
	})
	messages = append(messages, models.ToolMessage(call.Name, result))
	return messages
}
