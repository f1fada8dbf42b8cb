package message

import (
	"encoding/json"
	"time"
)

// InboundMessage represents one normalized update received from a channel:
// a user message, a slash command, or an inline-keyboard callback.
type InboundMessage struct {
	// ID is the platform identifier of the update. It is unique per bot and
	// feeds the dedupe journal; it is not a chat-scoped message identifier.
	ID string `json:"id"`

	// MessageID is the chat-scoped identifier of the message itself, used
	// for reply threading. Empty when the update carries no message.
	MessageID string    `json:"message_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Channel   string          `json:"channel"`
	Sender    Sender          `json:"sender"`
	Chat      Chat            `json:"chat"`
	ThreadID  string          `json:"thread_id,omitempty"`
	ReplyToID string          `json:"reply_to_id,omitempty"`
	Blocks    []ContentBlock  `json:"blocks"`
	Mentions  *Mentions       `json:"mentions,omitempty"`
	Command   string          `json:"command,omitempty"`
	Args      string          `json:"args,omitempty"`
	Callback  *Callback       `json:"callback,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// MarshalJSON implements json.Marshaler. It normalizes empty Mentions to nil
// so that the field is omitted from JSON output.
func (m InboundMessage) MarshalJSON() ([]byte, error) {
	if m.Mentions.IsEmpty() {
		m.Mentions = nil
	}
	type alias InboundMessage
	return json.Marshal(alias(m))
}

// TextContent returns the concatenated text of all text blocks.
func (m *InboundMessage) TextContent() string {
	return textContent(m.Blocks)
}

// HasMedia reports whether the message contains media blocks.
func (m *InboundMessage) HasMedia() bool {
	return hasMedia(m.Blocks)
}

// IsCommand reports whether the update is a slash command such as /start.
func (m *InboundMessage) IsCommand() bool {
	return m.Command != ""
}

// IsCallback reports whether the update is an inline-keyboard press.
func (m *InboundMessage) IsCallback() bool {
	return m.Callback != nil
}

// IsGroup reports whether the message was sent in a group chat.
func (m *InboundMessage) IsGroup() bool {
	return m.Chat.IsGroup()
}

// IsDirectMessage reports whether the message is a direct message.
func (m *InboundMessage) IsDirectMessage() bool {
	return m.Chat.IsDirectMessage()
}
