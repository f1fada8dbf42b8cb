// Package channel defines the bridge between messaging platforms and the
// update dispatcher. It provides the Channel interface, outbound routing,
// streaming support, message chunking, and allow-list filtering.
package channel

import (
	"context"

	"github.com/telegate/telegate/pkg/markup"
	"github.com/telegate/telegate/pkg/message"
)

// Channel is the bridge between a messaging platform and the dispatcher.
// Every concrete channel (Telegram today, others later) must implement it.
//
// A channel receives updates from its platform, checks the allow-list, and
// pushes them to the dispatcher via the inbox callback. Outbound traffic
// arrives through Send and the editing methods.
//
// Channels may additionally implement StreamingChannel when they can render
// a response incrementally.
type Channel interface {
	// Name identifies the channel for outbound routing ("telegram").
	Name() string

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg message.OutboundMessage) error

	// SendTyping shows a single typing indicator in the chat. Channels
	// without a typing concept return nil.
	SendTyping(ctx context.Context, chat message.Chat) error

	// AnswerCallback acknowledges a keyboard press. text, when non-empty,
	// is shown to the user as a short notice.
	AnswerCallback(ctx context.Context, callbackID, text string) error

	// EditMessage rewrites a previously sent message in place. An empty
	// msg.Text leaves the text alone and replaces only the inline keyboard;
	// an empty keyboard removes it.
	EditMessage(ctx context.Context, chat message.Chat, messageID string, msg markup.FormattedMessage, keyboard message.Keyboard) error

	// SetInbox gives the channel a function to push inbound messages to the
	// dispatcher. The wiring layer calls this before Start().
	SetInbox(fn func(msg message.InboundMessage) error)
}
