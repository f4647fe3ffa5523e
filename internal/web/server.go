// Package web is the HTTP surface: the WebSocket chat endpoint, webhook
// ingress, health and metrics, and the generated-media directory.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fhaenel/frieda/internal/channels"
	"github.com/fhaenel/frieda/internal/chat"
	"github.com/fhaenel/frieda/internal/notify"
	"github.com/fhaenel/frieda/internal/observability"
	"github.com/fhaenel/frieda/internal/webhook"
)

// maxWebhookBody caps incoming webhook payloads.
const maxWebhookBody = 1 << 20

// Server wires the HTTP handlers over the assistant's services.
type Server struct {
	addr         string
	engine       *chat.Engine
	hooks        *webhook.Manager
	notifier     *notify.Service
	generatedDir string
	upgrader     websocket.Upgrader
	logger       *slog.Logger
	metrics      *observability.Metrics
	http         *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics tracks active WebSocket connections.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates the server. generatedDir is served under /generated/.
func New(addr string, engine *chat.Engine, hooks *webhook.Manager, notifier *notify.Service, generatedDir string, opts ...Option) *Server {
	s := &Server{
		addr:         addr,
		engine:       engine,
		hooks:        hooks,
		notifier:     notifier,
		generatedDir: generatedDir,
		logger:       slog.Default().With(slog.String("component", "web")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Local single-user deployment; the browser UI is served from
			// the same origin or opened as a file.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("POST /api/webhooks/{name}", s.handleWebhook)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /generated/", http.StripPrefix("/generated/", http.FileServer(http.Dir(generatedDir))))

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// handleWS upgrades the connection and pumps inbound frames through the
// chat engine. One connection is one session.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	adapter := channels.NewWebSocketAdapter(conn, s.logger)
	sessionID := "web:" + r.RemoteAddr
	s.logger.Info("websocket connected", "session", sessionID)

	if s.metrics != nil {
		s.metrics.ActiveWebsockets.Inc()
		defer s.metrics.ActiveWebsockets.Dec()
	}
	if s.notifier != nil {
		s.notifier.Subscribe(adapter)
		defer s.notifier.Unsubscribe(adapter)
	}

	for {
		var in channels.Inbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read failed", "session", sessionID, "error", err)
			}
			return
		}
		if strings.TrimSpace(in.Message) == "" && in.Image == "" {
			adapter.SendError("Leere Nachricht.")
			continue
		}
		_, err := s.engine.HandleMessage(r.Context(), sessionID, in.Message, adapter, chat.Options{
			Image: in.Image,
			TTS:   in.TTS,
			Agent: in.Agent,
		})
		if err != nil {
			s.logger.Error("websocket turn failed", "session", sessionID, "error", err)
		}
	}
}

// handleWebhook authenticates and ingests one webhook delivery. The body may
// be a JSON object or arbitrary bytes; non-JSON lands under "raw".
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.hooks.Exists(r.Context(), name) {
		http.Error(w, "unknown webhook", http.StatusNotFound)
		return
	}
	if !s.hooks.Verify(r.Context(), name, bearerToken(r)) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	var payload map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			payload = map[string]any{"raw": string(body)}
		}
	}
	if payload == nil {
		payload = map[string]any{}
	}

	s.hooks.HandleIncoming(r.Context(), name, payload)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// bearerToken extracts the webhook token from the query or the
// Authorization header.
func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	auth := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return after
	}
	return ""
}
