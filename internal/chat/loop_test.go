package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fhaenel/frieda/internal/llm"
	"github.com/fhaenel/frieda/internal/skills"
	"github.com/fhaenel/frieda/pkg/models"
)

// fakeModel serves scripted /api/chat responses in order. Streaming requests
// replay streamTokens as NDJSON.
type fakeModel struct {
	mu           sync.Mutex
	responses    []string
	streamTokens []string
	requests     []map[string]any
	server       *httptest.Server
}

func newFakeModel(t *testing.T, responses ...string) *fakeModel {
	t.Helper()
	f := &fakeModel{responses: responses}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		streaming := req["stream"] == true
		var body string
		if !streaming {
			if len(f.responses) == 0 {
				t.Error("fake model ran out of scripted responses")
				f.mu.Unlock()
				return
			}
			body = f.responses[0]
			f.responses = f.responses[1:]
		}
		tokens := f.streamTokens
		f.mu.Unlock()

		if streaming {
			flusher := w.(http.Flusher)
			for _, tok := range tokens {
				fmt.Fprintf(w, `{"message":{"content":%q},"done":false}`+"\n", tok)
				flusher.Flush()
			}
			fmt.Fprint(w, `{"message":{"content":""},"done":true}`+"\n")
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeModel) client() *llm.Client { return llm.New(f.server.URL) }

func (f *fakeModel) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeModel) lastRequest() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

func answer(content string) string {
	b, _ := json.Marshal(map[string]any{
		"message": map[string]any{"role": "assistant", "content": content},
		"done":    true,
	})
	return string(b)
}

func toolCallResponse(name string, args map[string]any) string {
	b, _ := json.Marshal(map[string]any{
		"message": map[string]any{
			"role":    "assistant",
			"content": "",
			"tool_calls": []map[string]any{
				{"function": map[string]any{"name": name, "arguments": args}},
			},
		},
		"done": true,
	})
	return string(b)
}

// recordSink captures loop events in order.
type recordSink struct {
	mu     sync.Mutex
	events []string
	images []string
}

func (s *recordSink) ToolCall(tool string, args map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "tool:"+tool)
}

func (s *recordSink) Image(url, alt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append(s.images, url)
}

// stubSkill is a minimal skill for loop tests.
type stubSkill struct {
	name   string
	params map[string]any
	run    func(args map[string]any) string
}

func (s *stubSkill) Name() string               { return s.name }
func (s *stubSkill) Description() string        { return "test skill" }
func (s *stubSkill) Parameters() map[string]any { return s.params }
func (s *stubSkill) Execute(_ context.Context, args map[string]any) (string, error) {
	return s.run(args), nil
}

func newTestLoop(t *testing.T, f *fakeModel, skillList ...skills.Skill) (*Loop, *skills.Registry) {
	t.Helper()
	registry := skills.NewRegistry()
	for _, s := range skillList {
		if err := registry.Register(s); err != nil {
			t.Fatalf("register %s: %v", s.Name(), err)
		}
	}
	executor, err := skills.NewExecutor(registry, 3, nil)
	if err != nil {
		t.Fatalf("executor: %v", err)
	}
	t.Cleanup(executor.Release)
	return NewLoop(f.client(), registry, executor), registry
}

func echoSkillStub() *stubSkill {
	return &stubSkill{
		name:   "echo",
		params: skills.ObjectSchema(map[string]any{"text": skills.Property("string", "text")}, "text"),
		run:    func(args map[string]any) string { return skills.StringArg(args, "text") },
	}
}

func TestLoopToolRoundThenAnswer(t *testing.T) {
	f := newFakeModel(t,
		toolCallResponse("echo", map[string]any{"text": "hallo"}),
		answer("<think>fertig überlegt</think>Fertig."),
	)
	loop, _ := newTestLoop(t, f, echoSkillStub())

	sink := &recordSink{}
	res, err := loop.Run(context.Background(), LoopConfig{
		Model:     "m",
		MaxRounds: 5,
		Tools:     []models.Tool{models.NewTool("echo", "test", skills.ObjectSchema(map[string]any{}))},
	}, []models.Message{models.UserMessage("sag hallo")}, sink)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if res.Content != "Fertig." {
		t.Errorf("content = %q", res.Content)
	}
	if res.Rounds != 2 {
		t.Errorf("rounds = %d, want 2", res.Rounds)
	}
	if !res.ToolsRan {
		t.Error("ToolsRan not set")
	}
	if len(sink.events) != 1 || sink.events[0] != "tool:echo" {
		t.Errorf("sink events = %v", sink.events)
	}

	// Transcript: user, assistant tool call, tool result.
	if len(res.Messages) != 3 {
		t.Fatalf("transcript length = %d, want 3", len(res.Messages))
	}
	toolMsg := res.Messages[2]
	if toolMsg.Role != models.RoleTool {
		t.Errorf("role = %q", toolMsg.Role)
	}
	if want := "[result of echo]\nhallo"; toolMsg.Content != want {
		t.Errorf("tool result = %q, want %q", toolMsg.Content, want)
	}
}

func TestLoopRoundBudget(t *testing.T) {
	f := newFakeModel(t,
		toolCallResponse("echo", map[string]any{"text": "1"}),
		toolCallResponse("echo", map[string]any{"text": "2"}),
	)
	loop, _ := newTestLoop(t, f, echoSkillStub())

	res, err := loop.Run(context.Background(), LoopConfig{Model: "m", MaxRounds: 2},
		[]models.Message{models.UserMessage("weiter")}, &recordSink{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Rounds != 2 {
		t.Errorf("rounds = %d, want 2", res.Rounds)
	}
	if res.Content != "" {
		t.Errorf("content = %q, want empty", res.Content)
	}
	if !res.ToolsRan {
		t.Error("ToolsRan not set")
	}
	if f.requestCount() != 2 {
		t.Errorf("model calls = %d, want 2", f.requestCount())
	}
}

func TestLoopDeniedSkill(t *testing.T) {
	f := newFakeModel(t,
		toolCallResponse("echo", map[string]any{"text": "geheim"}),
		answer("Ok."),
	)
	loop, _ := newTestLoop(t, f, echoSkillStub())

	res, err := loop.Run(context.Background(), LoopConfig{
		Model:         "m",
		MaxRounds:     5,
		AllowedSkills: []string{"calculator"},
	}, []models.Message{models.UserMessage("los")}, &recordSink{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	toolMsg := res.Messages[2]
	if !strings.Contains(toolMsg.Content, "error: access to skill 'echo' denied") {
		t.Errorf("tool result = %q", toolMsg.Content)
	}
}

func TestLoopArgProjection(t *testing.T) {
	var got map[string]any
	skill := &stubSkill{
		name:   "echo",
		params: skills.ObjectSchema(map[string]any{"text": skills.Property("string", "text")}, "text"),
		run: func(args map[string]any) string {
			got = args
			return "ok"
		},
	}
	f := newFakeModel(t,
		toolCallResponse("echo", map[string]any{"text": "bleibt", "halluzination": true}),
		answer("Ok."),
	)
	loop, _ := newTestLoop(t, f, skill)

	if _, err := loop.Run(context.Background(), LoopConfig{Model: "m", MaxRounds: 5},
		[]models.Message{models.UserMessage("x")}, &recordSink{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, ok := got["halluzination"]; ok {
		t.Errorf("undeclared argument survived projection: %v", got)
	}
	if got["text"] != "bleibt" {
		t.Errorf("declared argument lost: %v", got)
	}
}

func TestLoopImageExtraction(t *testing.T) {
	skill := &stubSkill{
		name:   "painter",
		params: skills.ObjectSchema(map[string]any{"prompt": skills.Property("string", "p")}, "prompt"),
		run: func(map[string]any) string {
			return "![eine Katze](/generated/img-1.png)"
		},
	}
	f := newFakeModel(t,
		toolCallResponse("painter", map[string]any{"prompt": "Katze"}),
		answer("Hier ist dein Bild."),
	)
	loop, _ := newTestLoop(t, f, skill)

	sink := &recordSink{}
	res, err := loop.Run(context.Background(), LoopConfig{Model: "m", MaxRounds: 5},
		[]models.Message{models.UserMessage("mal eine Katze")}, sink)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sink.images) != 1 || sink.images[0] != "/generated/img-1.png" {
		t.Errorf("images = %v", sink.images)
	}
	toolMsg := res.Messages[2]
	if strings.Contains(toolMsg.Content, "/generated/") {
		t.Errorf("image markdown leaked into transcript: %q", toolMsg.Content)
	}
	if !strings.Contains(toolMsg.Content, "[Bild wurde angezeigt]") {
		t.Errorf("placeholder missing: %q", toolMsg.Content)
	}
}

// scriptedDelegator answers every delegation with a fixed reply.
type scriptedDelegator struct {
	eligible map[string]bool
	reply    string
	gotTask  string
	gotAgent string
}

func (d *scriptedDelegator) Tool(allowed []string) (models.Tool, bool) {
	var agents []string
	for name, ok := range d.eligible {
		if ok {
			agents = append(agents, name)
		}
	}
	if len(agents) == 0 {
		return models.Tool{}, false
	}
	return models.NewTool(DelegateToolName, "delegate", skills.ObjectSchema(map[string]any{
		"agent": skills.Property("string", "agent", agents...),
		"task":  skills.Property("string", "task"),
	}, "agent", "task")), true
}

func (d *scriptedDelegator) Eligible(agent string, _ []string) bool {
	return d.eligible[agent]
}

func (d *scriptedDelegator) Run(_ context.Context, agent, task string, _ []models.Message, sink Sink) string {
	d.gotAgent, d.gotTask = agent, task
	return d.reply
}

func TestLoopDelegation(t *testing.T) {
	f := newFakeModel(t,
		toolCallResponse(DelegateToolName, map[string]any{"agent": "recherche", "task": "such was"}),
		answer("Erledigt."),
	)
	loop, _ := newTestLoop(t, f)
	delegator := &scriptedDelegator{eligible: map[string]bool{"recherche": true}, reply: "gefunden"}

	sink := &recordSink{}
	res, err := loop.Run(context.Background(), LoopConfig{
		Model:     "m",
		MaxRounds: 5,
		Delegator: delegator,
	}, []models.Message{models.UserMessage("frag den rechercheur")}, sink)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if delegator.gotAgent != "recherche" || delegator.gotTask != "such was" {
		t.Errorf("delegation = %q/%q", delegator.gotAgent, delegator.gotTask)
	}
	if len(sink.events) != 1 || sink.events[0] != "tool:agent:recherche" {
		t.Errorf("sink events = %v", sink.events)
	}
	toolMsg := res.Messages[2]
	if want := "[reply from agent 'recherche']\ngefunden"; toolMsg.Content != want {
		t.Errorf("tool result = %q, want %q", toolMsg.Content, want)
	}
}

func TestLoopDelegationDenied(t *testing.T) {
	f := newFakeModel(t,
		toolCallResponse(DelegateToolName, map[string]any{"agent": "admin", "task": "x"}),
		answer("Ok."),
	)
	loop, _ := newTestLoop(t, f)
	delegator := &scriptedDelegator{eligible: map[string]bool{}}

	res, err := loop.Run(context.Background(), LoopConfig{
		Model:     "m",
		MaxRounds: 5,
		Delegator: delegator,
	}, []models.Message{models.UserMessage("x")}, &recordSink{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(res.Messages[2].Content, "error: access to agent 'admin' denied") {
		t.Errorf("tool result = %q", res.Messages[2].Content)
	}
}
