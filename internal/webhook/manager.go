// Package webhook lets external systems push events into the assistant.
// Each webhook has a name and a random bearer token; incoming payloads
// become webhook_received events that automations can react to.
package webhook

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fhaenel/frieda/internal/events"
	"github.com/fhaenel/frieda/internal/storage"
)

const tokenBytes = 32

// Manager creates, verifies, and dispatches webhooks.
type Manager struct {
	store  *storage.Store
	bus    *events.Bus
	logger *slog.Logger
}

// New creates a Manager.
func New(store *storage.Store, bus *events.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default().With(slog.String("component", "webhook"))
	}
	return &Manager{store: store, bus: bus, logger: logger}
}

// Create registers a webhook under name and returns its fresh token. The
// token is shown exactly once; only its stored copy is compared later.
func (m *Manager) Create(ctx context.Context, name, description string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("webhook needs a name")
	}
	token, err := newToken()
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	if err := m.store.CreateWebhook(ctx, name, token, description); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return "", fmt.Errorf("webhook '%s' already exists", name)
		}
		return "", err
	}
	return token, nil
}

// Verify checks the presented token against the stored one in constant
// time. Unknown names and wrong tokens are indistinguishable to the caller.
func (m *Manager) Verify(ctx context.Context, name, token string) bool {
	hook, err := m.store.WebhookByName(ctx, name)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hook.Token), []byte(token)) == 1
}

// Exists reports whether a webhook with this name is registered.
func (m *Manager) Exists(ctx context.Context, name string) bool {
	_, err := m.store.WebhookByName(ctx, name)
	return err == nil
}

// HandleIncoming turns an authenticated payload into a webhook_received
// event on the bus.
func (m *Manager) HandleIncoming(ctx context.Context, name string, payload map[string]any) {
	m.logger.Info("webhook received", "name", name)
	// The payload is copied so the caller's map stays untouched.
	data := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		data[k] = v
	}
	data["_name"] = name
	m.bus.Emit(ctx, events.Event{
		Type:   events.TypeWebhookReceived,
		Source: "webhook:" + name,
		Data:   data,
	})
}

// List returns all registered webhooks, tokens omitted.
func (m *Manager) List(ctx context.Context) ([]storage.Webhook, error) {
	hooks, err := m.store.Webhooks(ctx)
	if err != nil {
		return nil, err
	}
	for i := range hooks {
		hooks[i].Token = ""
	}
	return hooks, nil
}

// Delete removes a webhook.
func (m *Manager) Delete(ctx context.Context, name string) error {
	found, err := m.store.DeleteWebhook(ctx, name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("webhook '%s' not found", name)
	}
	return nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
