// Package chat holds the conversation orchestrator: the bounded LLM/tool
// loop shared with the agent router, think-block scrubbing, and the engine
// that turns one user message into one assistant reply.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/fhaenel/frieda/internal/channels"
	"github.com/fhaenel/frieda/internal/config"
	"github.com/fhaenel/frieda/internal/events"
	"github.com/fhaenel/frieda/internal/llm"
	"github.com/fhaenel/frieda/internal/observability"
	"github.com/fhaenel/frieda/internal/skills"
	"github.com/fhaenel/frieda/internal/storage"
	"github.com/fhaenel/frieda/pkg/models"
)

// SessionAutomation is the synthetic session server-initiated turns run on.
const SessionAutomation = "automation-internal"

// ContextProvider supplies the memory block for the system prompt.
type ContextProvider interface {
	MemoryContext(ctx context.Context) string
}

// FactExtractor mines durable facts from a finished exchange. Runs in the
// background; implementations log their own failures.
type FactExtractor interface {
	Extract(ctx context.Context, userText, assistantText string)
}

// Synthesizer turns text into speech and returns the audio URL.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Options carries the per-turn request flags.
type Options struct {
	Image         string   // base64 payload, optional
	TTS           bool     // synthesize the reply
	AllowedSkills []string // nil = full access
	Agent         string   // direct dispatch to a sub-agent, bypassing the loop
}

// Engine orchestrates one turn: history and memory assembly, the tool loop,
// delegation, streaming, persistence, and the background follow-ups.
type Engine struct {
	cfg       config.ChatConfig
	persona   config.PersonaConfig
	model     string
	temp      float64
	llm       *llm.Client
	store     *storage.Store
	loop      *Loop
	registry  *skills.Registry
	delegator Delegator
	memory    ContextProvider
	extractor FactExtractor
	tts       Synthesizer
	bus       *events.Bus
	workspace string
	logger    *slog.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer

	bg sync.WaitGroup
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithDelegator wires the agent router.
func WithDelegator(d Delegator) EngineOption {
	return func(e *Engine) { e.delegator = d }
}

// WithMemory wires the memory context provider.
func WithMemory(m ContextProvider) EngineOption {
	return func(e *Engine) { e.memory = m }
}

// WithExtractor wires the background fact extractor.
func WithExtractor(x FactExtractor) EngineOption {
	return func(e *Engine) { e.extractor = x }
}

// WithSynthesizer wires text-to-speech.
func WithSynthesizer(s Synthesizer) EngineOption {
	return func(e *Engine) { e.tts = s }
}

// WithBus emits a message_processed event per finished turn.
func WithBus(b *events.Bus) EngineOption {
	return func(e *Engine) { e.bus = b }
}

// WithWorkspace prepends the persona workspace block to the system prompt.
func WithWorkspace(content string) EngineOption {
	return func(e *Engine) { e.workspace = content }
}

// WithEngineLogger sets the logger.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithEngineMetrics records per-turn metrics.
func WithEngineMetrics(m *observability.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithEngineTracer opens a span per turn.
func WithEngineTracer(t *observability.Tracer) EngineOption {
	return func(e *Engine) { e.tracer = t }
}

// NewEngine creates the orchestrator.
func NewEngine(cfg *config.Config, client *llm.Client, store *storage.Store, loop *Loop, registry *skills.Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:      cfg.Chat,
		persona:  cfg.Persona,
		model:    cfg.LLM.Model(),
		temp:     cfg.LLM.Temperature,
		llm:      client,
		store:    store,
		loop:     loop,
		registry: registry,
		logger:   slog.Default().With(slog.String("component", "chat")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Wait blocks until all background follow-ups have finished. Used by
// shutdown and tests.
func (e *Engine) Wait() {
	e.bg.Wait()
}

// Respond runs a full turn on behalf of the server with an in-process
// collector and returns the assistant text. Used for automation-driven
// turns.
func (e *Engine) Respond(ctx context.Context, sessionID, text string) (string, error) {
	return e.HandleMessage(ctx, sessionID, text, channels.NewCollector(), Options{})
}

// HandleMessage produces one assistant turn for the user message and streams
// its events through the adapter. The returned string is the final assistant
// text, already scrubbed.
func (e *Engine) HandleMessage(ctx context.Context, sessionID, text string, adapter channels.Adapter, opts Options) (string, error) {
	if strings.TrimSpace(text) == "" && opts.Image == "" {
		return "", fmt.Errorf("empty message")
	}
	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.StartMessage(ctx, adapter.Name(), sessionID)
		defer span.End()
	}
	if e.metrics != nil {
		e.metrics.MessageCounter.WithLabelValues(adapter.Name(), "inbound").Inc()
	}

	userText, display := e.userTurn(text, opts.Image)
	if err := e.store.SaveTurn(ctx, sessionID, models.RoleUser, display); err != nil {
		return "", fmt.Errorf("persist user turn: %w", err)
	}

	history, err := e.store.History(ctx, sessionID, e.cfg.MaxHistory)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	messages := e.assemble(ctx, history, userText, opts.Image)

	var content string
	var streamed bool
	if opts.Agent != "" && opts.Agent != GeneralAgent {
		content = e.runAgentOverride(ctx, opts.Agent, userText, messages, adapter)
	} else {
		content, streamed, err = e.runLoop(ctx, messages, adapter, opts)
		if err != nil {
			e.logger.Error("turn failed", "session", sessionID, "error", err)
			adapter.SendError("Die Anfrage ist fehlgeschlagen. Versuch es bitte noch einmal.")
			return "", err
		}
	}

	if content == "" {
		content = e.cfg.FallbackReply
	}
	if !streamed {
		if err := adapter.SendMessage(content); err != nil {
			e.logger.Debug("message delivery failed", "session", sessionID, "error", err)
		}
	}

	if err := e.store.SaveTurn(ctx, sessionID, models.RoleAssistant, content); err != nil {
		return content, fmt.Errorf("persist assistant turn: %w", err)
	}
	if e.metrics != nil {
		e.metrics.MessageCounter.WithLabelValues(adapter.Name(), "outbound").Inc()
	}
	if e.bus != nil {
		e.bus.Emit(ctx, events.Event{
			Type:   events.TypeMessageProcessed,
			Source: "chat:" + adapter.Name(),
			Data:   map[string]any{"session_id": sessionID},
		})
	}

	e.spawnFollowups(ctx, userText, content, opts.TTS, adapter)
	return content, nil
}

// userTurn resolves the model-facing text and the persisted display form of
// the incoming message.
func (e *Engine) userTurn(text, image string) (userText, display string) {
	userText = strings.TrimSpace(text)
	display = userText
	if image != "" {
		if userText == "" {
			userText = e.cfg.ImageQuestion
		}
		display = e.cfg.ImageMarker + " " + userText
	}
	return userText, display
}

// assemble builds the model transcript: system prompt, stored history, and
// the current turn (carrying the image when present).
func (e *Engine) assemble(ctx context.Context, history []models.StoredMessage, userText, image string) []models.Message {
	messages := []models.Message{models.SystemMessage(e.systemContent(ctx))}
	// The current turn is already persisted, so it arrives as the last
	// history entry; it is replaced with the model-facing form.
	for i, turn := range history {
		if i == len(history)-1 && turn.Role == models.RoleUser {
			break
		}
		messages = append(messages, models.Message{Role: turn.Role, Content: turn.Content})
	}
	current := models.UserMessage(userText)
	if image != "" {
		current.Images = []string{image}
	}
	return append(messages, current)
}

func (e *Engine) systemContent(ctx context.Context) string {
	var sb strings.Builder
	sb.WriteString(e.persona.SystemPrompt)
	if e.workspace != "" {
		sb.WriteString("\n\n")
		sb.WriteString(e.workspace)
	}
	if e.memory != nil {
		if block := e.memory.MemoryContext(ctx); block != "" {
			sb.WriteString("\n\n")
			sb.WriteString(block)
		}
	}
	return sb.String()
}

// runAgentOverride dispatches directly to a named sub-agent and forwards its
// events through the adapter.
func (e *Engine) runAgentOverride(ctx context.Context, agent, task string, messages []models.Message, adapter channels.Adapter) string {
	if e.delegator == nil {
		return skills.Errorf("no agents are available")
	}
	sink := adapterSink{adapter: adapter, logger: e.logger}
	sink.ToolCall("agent:"+agent, map[string]any{"task": task})
	// History context excludes the system prompt and the task itself.
	history := messages[1 : len(messages)-1]
	return e.delegator.Run(ctx, agent, task, history, sink)
}

// runLoop drives the normal path and the forced-summary streaming fallback.
func (e *Engine) runLoop(ctx context.Context, messages []models.Message, adapter channels.Adapter, opts Options) (content string, streamed bool, err error) {
	tools := e.registry.Definitions(opts.AllowedSkills)
	cfg := LoopConfig{
		Model:         e.model,
		Temperature:   e.temp,
		MaxRounds:     e.cfg.MaxRounds,
		Tools:         tools,
		AllowedSkills: opts.AllowedSkills,
		Delegator:     e.delegator,
		History:       messages[1:],
	}
	if e.delegator != nil {
		if tool, ok := e.delegator.Tool(opts.AllowedSkills); ok {
			cfg.Tools = append(cfg.Tools, tool)
		}
	}

	result, err := e.loop.Run(ctx, cfg, messages, adapterSink{adapter: adapter, logger: e.logger})
	if err != nil {
		return "", false, err
	}
	if result.Content != "" || !result.ToolsRan {
		return result.Content, false, nil
	}

	// Tools ran but the model never answered: ask it to summarise, this
	// time streaming and without tools.
	summary := append(result.Messages, models.UserMessage(e.cfg.SummarizePrompt))
	content, err = e.streamAnswer(ctx, summary, adapter)
	if err != nil {
		e.logger.Error("summary stream failed", "error", err)
		return "", false, nil
	}
	return content, true, nil
}

// streamAnswer runs one streaming model call, holding tokens back until any
// leading think block closes, and terminates the stream with stream_end.
func (e *Engine) streamAnswer(ctx context.Context, messages []models.Message, adapter channels.Adapter) (string, error) {
	chunks, err := e.llm.ChatStream(ctx, llm.ChatRequest{
		Model:    e.model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}

	var raw strings.Builder
	var pending string
	emitting := false
	delivery := true

	emit := func(token string) {
		if token == "" || !delivery {
			return
		}
		if err := adapter.SendStreamToken(token); err != nil {
			delivery = false
		}
	}

	for chunk := range chunks {
		if chunk.Err != nil {
			if raw.Len() == 0 {
				return "", chunk.Err
			}
			break
		}
		if chunk.Content == "" {
			continue
		}
		raw.WriteString(chunk.Content)
		if emitting {
			emit(chunk.Content)
			continue
		}

		pending += chunk.Content
		trimmed := strings.TrimLeft(pending, " \t\r\n")
		lower := strings.ToLower(trimmed)
		switch {
		case strings.HasPrefix(lower, "<think>"):
			if loc := closeThink.FindStringIndex(trimmed); loc != nil {
				rest := strings.TrimLeft(trimmed[loc[1]:], " \t\r\n")
				emitting = true
				emit(rest)
				pending = ""
			}
		case strings.HasPrefix("<think>", lower):
			// Could still become an opening tag; keep buffering.
		default:
			emitting = true
			emit(pending)
			pending = ""
		}
	}
	if !emitting && pending != "" {
		// Unclosed think block: nothing was worth streaming.
		emit(Scrub(pending, e.cfg.ScrubFillerLines))
	}
	if delivery {
		if err := adapter.SendStreamEnd(); err != nil {
			e.logger.Debug("stream end delivery failed", "error", err)
		}
	}
	return Scrub(raw.String(), e.cfg.ScrubFillerLines), nil
}

// spawnFollowups fires the post-turn background tasks. They never block or
// fail the response.
func (e *Engine) spawnFollowups(ctx context.Context, userText, content string, wantTTS bool, adapter channels.Adapter) {
	bgCtx := context.WithoutCancel(ctx)
	if e.extractor != nil {
		e.bg.Add(1)
		go func() {
			defer e.bg.Done()
			e.extractor.Extract(bgCtx, userText, content)
		}()
	}
	if wantTTS && e.tts != nil {
		e.bg.Add(1)
		go func() {
			defer e.bg.Done()
			url, err := e.tts.Synthesize(bgCtx, content)
			if err != nil {
				e.logger.Debug("tts failed", "error", err)
				return
			}
			if err := adapter.SendAudio(url); err != nil {
				e.logger.Debug("audio delivery failed", "error", err)
			}
		}()
	}
}

// adapterSink forwards loop events to a channel adapter, swallowing send
// failures so a vanished client cannot abort tool execution.
type adapterSink struct {
	adapter channels.Adapter
	logger  *slog.Logger
}

func (s adapterSink) ToolCall(tool string, args map[string]any) {
	if err := s.adapter.SendToolCall(tool, args); err != nil {
		s.logger.Debug("tool_call delivery failed", "tool", tool, "error", err)
	}
}

func (s adapterSink) Image(url, alt string) {
	if err := s.adapter.SendImage(url, alt); err != nil {
		s.logger.Debug("image delivery failed", "url", url, "error", err)
	}
}
