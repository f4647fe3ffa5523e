// Package llm is a thin client for the native Ollama HTTP API.
//
// Only the endpoints the daemon uses are wrapped: /api/chat (blocking and
// streaming), /api/generate, /api/embed, and /api/tags for availability.
// Tool calls arrive as typed models.ToolCall records with object arguments.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/fhaenel/frieda/internal/observability"
	"github.com/fhaenel/frieda/pkg/models"
)

// DefaultBaseURL is the stock local Ollama endpoint.
const DefaultBaseURL = "http://localhost:11434"

// Client talks to one Ollama instance. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics enables request metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTracer enables request spans.
func WithTracer(t *observability.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithTimeout overrides the default 120s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a client for the given base URL (DefaultBaseURL when empty).
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 120 * time.Second},
		logger:  slog.Default().With(slog.String("component", "llm")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChatRequest is one conversation turn request against /api/chat.
type ChatRequest struct {
	Model    string
	Messages []models.Message
	Tools    []models.Tool
	Options  map[string]any
}

// ChatResponse is the assistant turn Ollama returns.
type ChatResponse struct {
	Message models.Message `json:"message"`
	Done    bool           `json:"done"`
}

// StreamChunk is one delta from a streaming chat response. Err is set on the
// terminal chunk when the stream failed.
type StreamChunk struct {
	Content string
	Done    bool
	Err     error
}

type chatWireRequest struct {
	Model    string           `json:"model"`
	Messages []models.Message `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []models.Tool    `json:"tools,omitempty"`
	Options  map[string]any   `json:"options,omitempty"`
}

// Chat sends a blocking chat request and returns the full assistant message.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()
	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.StartLLM(ctx, "chat", req.Model)
		defer span.End()
	}

	body, err := json.Marshal(chatWireRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   false,
		Tools:    req.Tools,
		Options:  req.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: encode chat request: %w", err)
	}

	var out ChatResponse
	err = c.postJSON(ctx, "/api/chat", body, &out)
	c.record("chat", req.Model, start, err)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatStream sends a streaming chat request. The returned channel closes
// after the terminal chunk; cancellation of ctx ends the stream early.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	start := time.Now()
	body, err := json.Marshal(chatWireRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   true,
		Tools:    req.Tools,
		Options:  req.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.record("chat", req.Model, start, err)
		return nil, fmt.Errorf("ollama: chat stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := c.statusError("chat", resp)
		resp.Body.Close()
		c.record("chat", req.Model, start, err)
		return nil, err
	}

	chunks := make(chan StreamChunk)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()
		defer c.record("chat", req.Model, start, nil)

		reader := bufio.NewReader(resp.Body)
		for {
			select {
			case <-ctx.Done():
				chunks <- StreamChunk{Err: ctx.Err(), Done: true}
				return
			default:
			}

			line, err := reader.ReadBytes('\n')
			if len(bytes.TrimSpace(line)) > 0 {
				var delta struct {
					Message struct {
						Content string `json:"content"`
					} `json:"message"`
					Done bool `json:"done"`
				}
				if jerr := json.Unmarshal(line, &delta); jerr != nil {
					chunks <- StreamChunk{Err: fmt.Errorf("ollama: decode stream line: %w", jerr), Done: true}
					return
				}
				if delta.Message.Content != "" {
					chunks <- StreamChunk{Content: delta.Message.Content}
				}
				if delta.Done {
					chunks <- StreamChunk{Done: true}
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					chunks <- StreamChunk{Err: err, Done: true}
				} else {
					chunks <- StreamChunk{Done: true}
				}
				return
			}
		}
	}()
	return chunks, nil
}

// Generate runs a bare prompt through /api/generate and returns the text.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	start := time.Now()
	body, err := json.Marshal(map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": false,
	})
	if err != nil {
		return "", fmt.Errorf("ollama: encode generate request: %w", err)
	}

	var out struct {
		Response string `json:"response"`
	}
	err = c.postJSON(ctx, "/api/generate", body, &out)
	c.record("generate", model, start, err)
	if err != nil {
		return "", err
	}
	return out.Response, nil
}

// Embed returns the embedding vector for the input text.
func (c *Client) Embed(ctx context.Context, model, input string) ([]float32, error) {
	start := time.Now()
	body, err := json.Marshal(map[string]any{
		"model": model,
		"input": input,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: encode embed request: %w", err)
	}

	var out struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err = c.postJSON(ctx, "/api/embed", body, &out)
	c.record("embed", model, start, err)
	if err != nil {
		return nil, err
	}
	if len(out.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama: embed returned no vectors")
	}
	return out.Embeddings[0], nil
}

// Available reports whether the Ollama instance answers /api/tags.
func (c *Client) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (c *Client) postJSON(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.statusError(path, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ollama: decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) statusError(what string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("ollama: %s: status %d: %s", what, resp.StatusCode, strings.TrimSpace(string(snippet)))
}

func (c *Client) record(endpoint, model string, start time.Time, err error) {
	if c.metrics != nil {
		c.metrics.ObserveLLMRequest(endpoint, model, time.Since(start), err)
	}
	if err != nil {
		c.logger.Debug("request failed", "endpoint", endpoint, "model", model, "error", err)
	}
}
