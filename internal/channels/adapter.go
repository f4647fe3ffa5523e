// Package channels abstracts the client transports the assistant speaks
// through: a WebSocket connection, the Discord DM bridge, or an in-process
// collector for server-initiated turns.
package channels

// Adapter is the outbound surface the chat engine writes to. Methods may be
// called from concurrent goroutines; implementations serialise internally.
// A failed send aborts delivery for the caller but must leave the adapter
// usable.
type Adapter interface {
	// SendToolCall announces a tool invocation before it runs.
	SendToolCall(tool string, args map[string]any) error

	// SendImage delivers a generated or fetched image by URL.
	SendImage(url, alt string) error

	// SendStreamToken delivers one token of a streamed answer.
	SendStreamToken(token string) error

	// SendStreamEnd closes a streamed answer.
	SendStreamEnd() error

	// SendMessage delivers a complete assistant message.
	SendMessage(text string) error

	// SendError delivers a user-visible failure.
	SendError(message string) error

	// SendAudio delivers a synthesized speech file by URL.
	SendAudio(url string) error

	// SendNotification delivers a server-initiated message.
	SendNotification(text string) error

	// Name identifies the transport (web, discord, collector).
	Name() string
}
