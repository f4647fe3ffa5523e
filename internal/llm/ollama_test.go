package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fhaenel/frieda/pkg/models"
)

func TestChatDecodesToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["stream"] != false {
			t.Error("blocking chat must send stream:false")
		}
		if req["model"] != "qwen3:14b" {
			t.Errorf("model = %v", req["model"])
		}
		if _, ok := req["tools"]; !ok {
			t.Error("tools missing from request")
		}
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"calculator","arguments":{"expression":"2+3"}}}]},"done":true}`)
	}))
	defer server.Close()

	client := New(server.URL)
	resp, err := client.Chat(context.Background(), ChatRequest{
		Model:    "qwen3:14b",
		Messages: []models.Message{models.UserMessage("what is 2+3?")},
		Tools:    []models.Tool{models.NewTool("calculator", "math", map[string]any{"type": "object"})},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.Name != "calculator" || tc.Arguments["expression"] != "2+3" {
		t.Errorf("tool call = %+v", tc)
	}
}

func TestChatStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New(server.URL).Chat(context.Background(), ChatRequest{Model: "missing"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "model not found") {
		t.Errorf("error = %v", err)
	}
}

func TestChatStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["stream"] != true {
			t.Error("streaming chat must send stream:true")
		}
		flusher := w.(http.Flusher)
		for _, tok := range []string{"Hal", "lo", "!"} {
			fmt.Fprintf(w, `{"message":{"content":%q},"done":false}`+"\n", tok)
			flusher.Flush()
		}
		fmt.Fprint(w, `{"message":{"content":""},"done":true}`+"\n")
	}))
	defer server.Close()

	chunks, err := New(server.URL).ChatStream(context.Background(), ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	var text strings.Builder
	var done bool
	for chunk := range chunks {
		if chunk.Err != nil {
			t.Fatalf("chunk error: %v", chunk.Err)
		}
		text.WriteString(chunk.Content)
		done = chunk.Done
	}
	if text.String() != "Hallo!" {
		t.Errorf("streamed text = %q", text.String())
	}
	if !done {
		t.Error("terminal chunk must set Done")
	}
}

func TestChatStreamCancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message":{"content":"a"},"done":false}`+"\n")
		w.(http.Flusher).Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	chunks, err := New(server.URL).ChatStream(ctx, ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	<-chunks // first delta
	cancel()

	sawErr := false
	for chunk := range chunks {
		if chunk.Err != nil {
			sawErr = true
		}
	}
	if !sawErr {
		t.Error("expected an error chunk after cancellation")
	}
}

func TestGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"response":"[{\"category\":\"technik\"}]"}`)
	}))
	defer server.Close()

	out, err := New(server.URL).Generate(context.Background(), "m", "extract facts")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(out, "technik") {
		t.Errorf("response = %q", out)
	}
}

func TestEmbedReturnsFirstVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"embeddings":[[0.25,-0.5],[1,1]]}`)
	}))
	defer server.Close()

	vec, err := New(server.URL).Embed(context.Background(), "m", "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.25 {
		t.Errorf("vector = %v", vec)
	}
}

func TestAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			fmt.Fprint(w, `{"models":[]}`)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	if !New(server.URL).Available(context.Background()) {
		t.Error("expected available")
	}
	server.Close()
	if New(server.URL).Available(context.Background()) {
		t.Error("expected unavailable after server close")
	}
}
