// Package events is the in-process pub/sub spine: schedulers, webhooks, and
// the heartbeat publish here, the automation engine listens.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fhaenel/frieda/internal/observability"
)

// Well-known event types.
const (
	TypeMessageProcessed  = "message_processed"
	TypeScheduleTriggered = "schedule_triggered"
	TypeWebhookReceived   = "webhook_received"
	TypeHeartbeat         = "heartbeat"
	TypeSystemEvent       = "system_event"
)

// historyCap bounds the in-memory event ring.
const historyCap = 100

// Event is one occurrence on the bus.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// Handler consumes one event. Handlers run on their own goroutines; returned
// errors are logged, never propagated to the emitter.
type Handler func(ctx context.Context, ev Event) error

// Bus fans events out to subscribers and keeps a bounded history.
type Bus struct {
	mu       sync.RWMutex
	byType   map[string][]Handler
	all      []Handler
	history  []Event
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// WithMetrics counts emitted events.
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		byType: make(map[string][]Handler),
		logger: slog.Default().With(slog.String("component", "events")),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byType[eventType] = append(b.byType[eventType], h)
}

// SubscribeAll registers a handler for every event.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Emit records the event and dispatches it to subscribers, each on its own
// goroutine. Emit never blocks on handlers and never returns their errors.
func (b *Bus) Emit(ctx context.Context, ev Event) Event {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Data == nil {
		ev.Data = map[string]any{}
	}

	b.mu.Lock()
	b.history = append(b.history, ev)
	if len(b.history) > historyCap {
		b.history = b.history[len(b.history)-historyCap:]
	}
	handlers := make([]Handler, 0, len(b.byType[ev.Type])+len(b.all))
	handlers = append(handlers, b.byType[ev.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.EventCounter.WithLabelValues(ev.Type).Inc()
	}
	b.logger.Debug("event emitted", "type", ev.Type, "source", ev.Source, "handlers", len(handlers))

	for _, h := range handlers {
		go b.safeCall(ctx, h, ev)
	}
	return ev
}

func (b *Bus) safeCall(ctx context.Context, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "type", ev.Type, "panic", r)
		}
	}()
	if err := h(ctx, ev); err != nil {
		b.logger.Error("event handler failed", "type", ev.Type, "source", ev.Source, "error", err)
	}
}

// Recent returns up to n events, newest first.
func (b *Bus) Recent(n int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n <= 0 || n > len(b.history) {
		n = len(b.history)
	}
	out := make([]Event, n)
	for i := 0; i < n; i++ {
		out[i] = b.history[len(b.history)-1-i]
	}
	return out
}
