package channels

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeTimeout bounds a single frame write so one stuck client cannot hold
// the engine's goroutine forever.
const writeTimeout = 10 * time.Second

// Frame is one outbound WebSocket message. Only the fields matching the type
// are set.
type Frame struct {
	Type      string         `json:"type"`
	Tool      string         `json:"tool,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
	URL       string         `json:"url,omitempty"`
	Alt       string         `json:"alt,omitempty"`
	Token     string         `json:"token,omitempty"`
	Text      string         `json:"text,omitempty"`
	Message   string         `json:"message,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// Inbound is one client request frame.
type Inbound struct {
	Message string `json:"message"`
	TTS     bool   `json:"tts,omitempty"`
	Image   string `json:"image,omitempty"` // base64 payload
	Agent   string `json:"agent,omitempty"` // direct dispatch to a sub-agent
}

// WebSocketAdapter writes JSON frames to one gorilla connection. gorilla
// permits a single concurrent writer, so all sends go through one mutex.
type WebSocketAdapter struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	logger *slog.Logger
}

// NewWebSocketAdapter wraps an upgraded connection.
func NewWebSocketAdapter(conn *websocket.Conn, logger *slog.Logger) *WebSocketAdapter {
	if logger == nil {
		logger = slog.Default().With(slog.String("component", "channels"))
	}
	return &WebSocketAdapter{conn: conn, logger: logger}
}

func (a *WebSocketAdapter) Name() string { return "web" }

func (a *WebSocketAdapter) send(f Frame) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := a.conn.WriteJSON(f); err != nil {
		a.logger.Debug("websocket send failed", "type", f.Type, "error", err)
		return err
	}
	return nil
}

func (a *WebSocketAdapter) SendToolCall(tool string, args map[string]any) error {
	return a.send(Frame{Type: "tool_call", Tool: tool, Args: args})
}

func (a *WebSocketAdapter) SendImage(url, alt string) error {
	return a.send(Frame{Type: "image", URL: url, Alt: alt})
}

func (a *WebSocketAdapter) SendStreamToken(token string) error {
	return a.send(Frame{Type: "stream", Token: token})
}

func (a *WebSocketAdapter) SendStreamEnd() error {
	return a.send(Frame{Type: "stream_end"})
}

func (a *WebSocketAdapter) SendMessage(text string) error {
	return a.send(Frame{Type: "message", Text: text})
}

func (a *WebSocketAdapter) SendError(message string) error {
	return a.send(Frame{Type: "error", Message: message})
}

func (a *WebSocketAdapter) SendAudio(url string) error {
	return a.send(Frame{Type: "audio", URL: url})
}

func (a *WebSocketAdapter) SendNotification(text string) error {
	return a.send(Frame{
		Type:      "notification",
		Text:      text,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
