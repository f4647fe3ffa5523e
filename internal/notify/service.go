// Package notify fans server-initiated messages out to the connected
// clients: WebSocket subscribers and the Discord bridge. It also lets the
// system speak through the assistant by running a full orchestrator turn.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fhaenel/frieda/internal/chat"
	"github.com/fhaenel/frieda/internal/observability"
	"github.com/fhaenel/frieda/internal/storage"
)

// Subscriber is a live client that can receive notifications. A failed send
// drops the subscriber.
type Subscriber interface {
	SendNotification(text string) error
}

// DirectMessenger delivers a message to the owner outside the WebSocket
// world. Implemented by the Discord bridge.
type DirectMessenger interface {
	DirectMessage(ctx context.Context, text string) error
}

// Responder runs a full assistant turn on a synthetic session. Implemented
// by the chat engine.
type Responder interface {
	Respond(ctx context.Context, sessionID, text string) (string, error)
}

// Service keeps the subscriber set and performs the fan-out.
type Service struct {
	store     *storage.Store
	logger    *slog.Logger
	metrics   *observability.Metrics
	discord   DirectMessenger
	responder Responder

	mu   sync.Mutex
	subs map[Subscriber]struct{}
}

// Option configures a Service.
type Option func(*Service)

// WithDiscord wires the Discord DM channel.
func WithDiscord(d DirectMessenger) Option {
	return func(s *Service) { s.discord = d }
}

// WithResponder wires the orchestrator for SendAsAssistant.
func WithResponder(r Responder) Option {
	return func(s *Service) { s.responder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics counts deliveries.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates the notification service.
func New(store *storage.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default().With(slog.String("component", "notify")),
		subs:   map[Subscriber]struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a live client.
func (s *Service) Subscribe(sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub] = struct{}{}
}

// Unsubscribe removes a client.
func (s *Service) Unsubscribe(sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub)
}

// Notify delivers message to the selected channels (nil = all). Dead
// WebSocket subscribers are dropped silently; every attempt is recorded.
func (s *Service) Notify(ctx context.Context, message string, channels []string) error {
	if message == "" {
		return fmt.Errorf("empty notification")
	}
	targets := map[string]bool{}
	if len(channels) == 0 {
		targets["web"] = true
		targets["discord"] = true
	} else {
		for _, c := range channels {
			targets[c] = true
		}
	}

	if targets["web"] {
		s.notifyWeb(message)
	}
	if targets["discord"] && s.discord != nil {
		if err := s.discord.DirectMessage(ctx, message); err != nil {
			s.logger.Debug("discord notification failed", "error", err)
			s.count("discord", "failed")
		} else {
			s.count("discord", "sent")
		}
	}

	if err := s.store.LogNotification(ctx, message, channels); err != nil {
		s.logger.Debug("notification log failed", "error", err)
	}
	return nil
}

func (s *Service) notifyWeb(message string) {
	s.mu.Lock()
	subs := make([]Subscriber, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		if err := sub.SendNotification(message); err != nil {
			s.logger.Debug("dropping dead subscriber", "error", err)
			s.Unsubscribe(sub)
			s.count("web", "failed")
			continue
		}
		s.count("web", "sent")
	}
}

// SendAsAssistant feeds the prompt to the orchestrator as a user message on
// the automation session and broadcasts the assistant's reply. This is how
// automations reach out with model-authored text.
func (s *Service) SendAsAssistant(ctx context.Context, prompt string) error {
	if s.responder == nil {
		return fmt.Errorf("no responder wired")
	}
	reply, err := s.responder.Respond(ctx, chat.SessionAutomation, prompt)
	if err != nil {
		return fmt.Errorf("assistant turn: %w", err)
	}
	return s.Notify(ctx, reply, nil)
}

func (s *Service) count(channel, status string) {
	if s.metrics != nil {
		s.metrics.NotificationCounter.WithLabelValues(channel, status).Inc()
	}
}
