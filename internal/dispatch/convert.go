package dispatch

import (
	"context"

	"github.com/telegate/telegate/internal/channel"
	"github.com/telegate/telegate/pkg/markup"
	"github.com/telegate/telegate/pkg/message"
)

// ResponseSender delivers outbound messages to a channel.
type ResponseSender interface {
	Send(ctx context.Context, msg message.OutboundMessage) error
}

// ChannelLookup resolves a channel by name. Implemented by channel.Dispatcher.
type ChannelLookup interface {
	Get(name string) (channel.Channel, bool)
}

// buildReply creates an outbound reply carrying raw agent markdown,
// preserving thread/reply context. The channel formats it on send.
func buildReply(original message.InboundMessage, text string) message.OutboundMessage {
	out := message.NewTextMessage(original.Chat, text)
	out.Channel = original.Channel
	out.ThreadID = original.ThreadID
	out.ReplyToID = quoteTarget(original)
	return out
}

// buildRendered creates an outbound message whose text is already valid in
// the given markup mode. The ParseMode hint tells the channel to send it
// as-is instead of re-rendering.
func buildRendered(original message.InboundMessage, fm markup.FormattedMessage, keyboard message.Keyboard) message.OutboundMessage {
	out := message.NewTextMessage(original.Chat, fm.Text)
	out.Channel = original.Channel
	out.ThreadID = original.ThreadID
	out.ReplyToID = quoteTarget(original)
	out.Keyboard = keyboard
	if fm.Mode != markup.ModeNone {
		out.Hints = &message.OutboundHints{ParseMode: string(fm.Mode)}
	}
	return out
}

// quoteTarget returns the message to quote-reply to. Replies quote the
// triggering message only in group chats, where several conversations
// interleave; in a DM quoting every message is noise.
func quoteTarget(original message.InboundMessage) string {
	if original.Chat.IsGroup() {
		return original.MessageID
	}
	return ""
}
