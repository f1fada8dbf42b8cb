// Package message defines the data contract between the Telegram channel and
// the dispatch layer: inbound updates normalized to one shape, outbound
// responses with rendering hints, and the inline-keyboard types used by the
// confirmation flow.
package message

// ChatType indicates the kind of conversation.
type ChatType string

const (
	// ChatDM is a direct (one-to-one) conversation.
	ChatDM ChatType = "dm"
	// ChatGroup is a multi-participant group conversation.
	ChatGroup ChatType = "group"
	// ChatBroadcast is a one-to-many broadcast channel.
	ChatBroadcast ChatType = "broadcast"
)

// BlockType discriminates the variant stored in a ContentBlock.
type BlockType string

// Supported block types.
const (
	BlockText     BlockType = "text"
	BlockImage    BlockType = "image"
	BlockAudio    BlockType = "audio"
	BlockFile     BlockType = "file"
	BlockLocation BlockType = "location"
)

// Sender identifies the author of an inbound message.
type Sender struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID    string   `json:"id"`
	Type  ChatType `json:"type"`
	Title string   `json:"title,omitempty"`
}

// IsGroup reports whether the chat is a group conversation.
func (c Chat) IsGroup() bool {
	return c.Type == ChatGroup
}

// IsDirectMessage reports whether the chat is a direct message.
func (c Chat) IsDirectMessage() bool {
	return c.Type == ChatDM
}

// Mentions holds mention metadata extracted from an inbound message.
type Mentions struct {
	// IDs lists the user identifiers that were mentioned.
	IDs []string `json:"ids,omitempty"`
	// IsMentioned is true when the bot itself was mentioned.
	IsMentioned bool `json:"is_mentioned,omitempty"`
}

// IsEmpty reports whether the Mentions carries no data.
func (m *Mentions) IsEmpty() bool {
	return m == nil || (len(m.IDs) == 0 && !m.IsMentioned)
}

// Callback is an inline-keyboard button press. Data carries the opaque
// payload the button was created with, for example "confirm:<id>".
type Callback struct {
	// ID is the platform identifier of the press, used to acknowledge it.
	ID   string `json:"id"`
	Data string `json:"data"`

	// MessageID identifies the message carrying the pressed keyboard, so
	// the channel can disarm that keyboard once the press is resolved.
	MessageID string `json:"message_id,omitempty"`
}

// Button is one inline-keyboard button. Pressing it produces an inbound
// message whose Callback.Data equals Data.
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Keyboard is an inline keyboard: rows of buttons attached to a message.
type Keyboard [][]Button

// ConfirmKeyboard builds the standard single-row approve/reject keyboard for
// a pending action identified by id.
func ConfirmKeyboard(id string) Keyboard {
	return Keyboard{{
		{Label: "✅ Confirm", Data: "confirm:" + id},
		{Label: "❌ Reject", Data: "reject:" + id},
	}}
}
