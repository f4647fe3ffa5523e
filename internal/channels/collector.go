package channels

import (
	"strings"
	"sync"
)

// Collector is an in-process adapter for server-initiated turns and tests.
// It records everything instead of delivering it.
type Collector struct {
	mu            sync.Mutex
	toolCalls     []CollectedToolCall
	images        []CollectedImage
	streamTokens  []string
	streamEnds    int
	messages      []string
	errors        []string
	audio         []string
	notifications []string
}

// CollectedToolCall is one recorded tool announcement.
type CollectedToolCall struct {
	Tool string
	Args map[string]any
}

// CollectedImage is one recorded image event.
type CollectedImage struct {
	URL string
	Alt string
}

// NewCollector creates an empty collector.
func NewCollector() *Collector { return &Collector{} }

func (c *Collector) Name() string { return "collector" }

func (c *Collector) SendToolCall(tool string, args map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolCalls = append(c.toolCalls, CollectedToolCall{Tool: tool, Args: args})
	return nil
}

func (c *Collector) SendImage(url, alt string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.images = append(c.images, CollectedImage{URL: url, Alt: alt})
	return nil
}

func (c *Collector) SendStreamToken(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamTokens = append(c.streamTokens, token)
	return nil
}

func (c *Collector) SendStreamEnd() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamEnds++
	return nil
}

func (c *Collector) SendMessage(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, text)
	return nil
}

func (c *Collector) SendError(message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, message)
	return nil
}

func (c *Collector) SendAudio(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audio = append(c.audio, url)
	return nil
}

func (c *Collector) SendNotification(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications = append(c.notifications, text)
	return nil
}

// ToolCalls returns the recorded tool announcements.
func (c *Collector) ToolCalls() []CollectedToolCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CollectedToolCall(nil), c.toolCalls...)
}

// Images returns the recorded image events.
func (c *Collector) Images() []CollectedImage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CollectedImage(nil), c.images...)
}

// Messages returns the recorded complete messages.
func (c *Collector) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}

// Errors returns the recorded error sends.
func (c *Collector) Errors() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.errors...)
}

// Notifications returns the recorded notification sends.
func (c *Collector) Notifications() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.notifications...)
}

// Audio returns the recorded audio URLs.
func (c *Collector) Audio() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.audio...)
}

// StreamedText joins all stream tokens.
func (c *Collector) StreamedText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.streamTokens, "")
}

// StreamTokens returns the recorded stream tokens.
func (c *Collector) StreamTokens() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.streamTokens...)
}

// StreamEnds returns how many stream_end events were sent.
func (c *Collector) StreamEnds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamEnds
}
