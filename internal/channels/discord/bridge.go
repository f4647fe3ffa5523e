// Package discord bridges the assistant to Discord direct messages. Only
// the configured owner may talk to it; everyone else is ignored.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/fhaenel/frieda/internal/channels"
)

// Bridge owns the Discord session and routes owner DMs into the assistant.
type Bridge struct {
	session *discordgo.Session
	ownerID string
	handler func(ctx context.Context, sessionID, text string, adapter channels.Adapter) error
	chunker *channels.Chunker
	logger  *slog.Logger
	remove  func()

	mu sync.Mutex // serialises turns per connection
}

// New creates the bridge. handler is invoked for every owner DM with a
// ready-made adapter; it runs on the discordgo event goroutine's child.
func New(token, ownerID string, handler func(ctx context.Context, sessionID, text string, adapter channels.Adapter) error, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default().With(slog.String("component", "discord"))
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	b := &Bridge{
		session: session,
		ownerID: ownerID,
		handler: handler,
		chunker: channels.NewChunker(2000),
		logger:  logger,
	}
	b.remove = session.AddHandler(b.onMessage)
	return b, nil
}

// Start opens the gateway connection.
func (b *Bridge) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	b.logger.Info("discord bridge connected", "owner", b.ownerID)
	return nil
}

// Stop closes the gateway connection.
func (b *Bridge) Stop() error {
	if b.remove != nil {
		b.remove()
	}
	return b.session.Close()
}

func (b *Bridge) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}
	if m.Author.ID != b.ownerID {
		b.logger.Debug("ignoring message from stranger", "user", m.Author.ID)
		return
	}
	if m.GuildID != "" {
		return // DMs only
	}
	text := strings.TrimSpace(m.Content)
	if text == "" {
		return
	}

	go func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		adapter := b.adapterFor(m.ChannelID)
		sessionID := "discord:" + m.Author.ID
		if err := b.handler(context.Background(), sessionID, text, adapter); err != nil {
			b.logger.Error("discord turn failed", "session", sessionID, "error", err)
		}
	}()
}

// DirectMessage sends a notification to the owner's DM channel. Implements
// the notify DirectMessenger interface.
func (b *Bridge) DirectMessage(ctx context.Context, text string) error {
	ch, err := b.session.UserChannelCreate(b.ownerID)
	if err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}
	return b.adapterFor(ch.ID).SendMessage(text)
}

func (b *Bridge) adapterFor(channelID string) *Adapter {
	return &Adapter{
		send: func(text string) error {
			_, err := b.session.ChannelMessageSend(channelID, text)
			return err
		},
		chunker: b.chunker,
		logger:  b.logger,
	}
}

// Adapter renders assistant events as Discord messages. Streaming tokens
// are buffered; Discord gets the final text in one or more chunks.
type Adapter struct {
	send    func(text string) error
	chunker *channels.Chunker
	logger  *slog.Logger

	mu     sync.Mutex
	stream strings.Builder
}

func (a *Adapter) Name() string { return "discord" }

func (a *Adapter) SendMessage(text string) error {
	for _, chunk := range a.chunker.Chunk(text) {
		if err := a.send(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) SendToolCall(tool string, args map[string]any) error {
	var parts []string
	for k, v := range args {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return a.send(fmt.Sprintf("⚙ %s(%s)", tool, strings.Join(parts, ", ")))
}

func (a *Adapter) SendImage(url, alt string) error {
	if alt != "" {
		return a.send(alt + "\n" + url)
	}
	return a.send(url)
}

func (a *Adapter) SendStreamToken(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stream.WriteString(token)
	return nil
}

func (a *Adapter) SendStreamEnd() error {
	a.mu.Lock()
	text := a.stream.String()
	a.stream.Reset()
	a.mu.Unlock()
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return a.SendMessage(text)
}

func (a *Adapter) SendError(message string) error {
	return a.send("⚠ " + message)
}

func (a *Adapter) SendAudio(url string) error {
	return a.send(url)
}

func (a *Adapter) SendNotification(text string) error {
	return a.SendMessage(text)
}
