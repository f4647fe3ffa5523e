package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/fhaenel/frieda/internal/events"
)

// Heartbeat emits a periodic event automations can hang routines on.
type Heartbeat struct {
	interval time.Duration
	bus      *events.Bus
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHeartbeat creates a heartbeat with the given interval (minimum one
// minute).
func NewHeartbeat(interval time.Duration, bus *events.Bus, logger *slog.Logger) *Heartbeat {
	if interval < time.Minute {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default().With(slog.String("component", "heartbeat"))
	}
	return &Heartbeat{interval: interval, bus: bus, logger: logger}
}

// Start launches the ticking goroutine.
func (h *Heartbeat) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})
	go func() {
		defer close(h.done)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.logger.Debug("heartbeat")
				h.bus.Emit(ctx, events.Event{
					Type:   events.TypeHeartbeat,
					Source: "heartbeat",
					Data:   map[string]any{"interval_minutes": h.interval.Minutes()},
				})
			}
		}
	}()
	h.logger.Info("heartbeat started", "interval", h.interval)
}

// Stop cancels the driving goroutine and waits for it to exit.
func (h *Heartbeat) Stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
	h.logger.Info("heartbeat stopped")
}
