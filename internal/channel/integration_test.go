package channel_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/telegate/telegate/internal/channel"
	"github.com/telegate/telegate/internal/channel/channeltest"
	"github.com/telegate/telegate/pkg/markup"
	"github.com/telegate/telegate/pkg/message"
)

// TestEndToEnd_InboxToFormattedReply wires a mock channel's inbox to a
// handler that formats a markdown reply and sends it back through the
// dispatcher, the same round trip the update dispatcher performs.
func TestEndToEnd_InboxToFormattedReply(t *testing.T) {
	t.Parallel()

	ch := channeltest.NewMockChannel("telegram", nil)
	dispatcher := channel.NewDispatcher()
	if err := dispatcher.Register(ch); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ch.SetInbox(func(msg message.InboundMessage) error {
		formatted := markup.Format("You said: **" + msg.TextContent() + "**")
		out := message.OutboundMessage{
			Channel:   msg.Channel,
			Chat:      msg.Chat,
			ReplyToID: msg.ID,
			Blocks:    []message.ContentBlock{message.NewTextBlock(formatted.Text)},
			Hints:     &message.OutboundHints{ParseMode: string(formatted.Mode)},
		}
		return dispatcher.Send(context.Background(), out)
	})

	in := message.InboundMessage{
		ID:     "msg-1",
		Sender: message.Sender{ID: "alice"},
		Chat:   message.Chat{ID: "chat-1", Type: message.ChatDM},
		Blocks: []message.ContentBlock{message.NewTextBlock("hello")},
	}
	if err := ch.SimulateMessage(in); err != nil {
		t.Fatalf("SimulateMessage: %v", err)
	}

	sent := ch.SentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(sent))
	}
	if got, want := sent[0].TextContent(), "You said: <b>hello</b>"; got != want {
		t.Errorf("reply text = %q, want %q", got, want)
	}
	if sent[0].Hints.ParseMode != "HTML" {
		t.Errorf("reply parse mode = %q, want HTML", sent[0].Hints.ParseMode)
	}
	if sent[0].ReplyToID != "msg-1" {
		t.Errorf("reply ReplyToID = %q, want msg-1", sent[0].ReplyToID)
	}
}

// TestEndToEnd_DeniedUserNeverReachesInbox verifies that a configured
// allow-list blocks unlisted senders before the inbox.
func TestEndToEnd_DeniedUserNeverReachesInbox(t *testing.T) {
	t.Parallel()

	al := channel.NewAllowList([]string{"alice"}, nil)
	ch := channeltest.NewMockChannel("telegram", al)

	reached := false
	ch.SetInbox(func(_ message.InboundMessage) error {
		reached = true
		return nil
	})

	msg := message.InboundMessage{
		ID:     "msg-denied",
		Sender: message.Sender{ID: "bob"},
		Chat:   message.Chat{ID: "chat-1", Type: message.ChatDM},
		Blocks: []message.ContentBlock{message.NewTextBlock("sneaky")},
	}

	err := ch.SimulateMessage(msg)
	if !errors.Is(err, channel.ErrDenied) {
		t.Errorf("error = %v, want ErrDenied", err)
	}
	if reached {
		t.Error("denied message must not reach the inbox")
	}
}

// TestEndToEnd_LongReplyChunksThroughDispatcher verifies chunked sends keep
// ordering and stay under the platform limit.
func TestEndToEnd_LongReplyChunksThroughDispatcher(t *testing.T) {
	t.Parallel()

	ch := channeltest.NewMockChannel("telegram", nil)
	dispatcher := channel.NewDispatcher()
	_ = dispatcher.Register(ch)

	long := strings.Repeat("line one\n", 30) + strings.Repeat("line two\n", 30)
	out := message.OutboundMessage{
		Channel: "telegram",
		Chat:    message.Chat{ID: "chat-1"},
		Blocks:  []message.ContentBlock{message.NewTextBlock(long)},
	}

	for _, chunk := range channel.SplitMessage(out, channel.ChunkConfig{MaxLength: 200}) {
		if err := dispatcher.Send(context.Background(), chunk); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	sent := ch.SentMessages()
	if len(sent) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(sent))
	}
	var rebuilt []string
	for i, m := range sent {
		text := m.TextContent()
		if len(text) > 200 {
			t.Errorf("chunk %d exceeds limit: %d bytes", i, len(text))
		}
		rebuilt = append(rebuilt, text)
	}
	joined := strings.Join(rebuilt, "\n") + "\n"
	if joined != long {
		t.Errorf("chunks do not reassemble the original text (got %d bytes, want %d)", len(joined), len(long))
	}
}

// TestEndToEnd_MultipleChannels verifies that the dispatcher routes
// responses to the correct channel.
func TestEndToEnd_MultipleChannels(t *testing.T) {
	t.Parallel()

	ch1 := channeltest.NewMockChannel("telegram", nil)
	ch2 := channeltest.NewMockChannel("matrix", nil)

	dispatcher := channel.NewDispatcher()
	_ = dispatcher.Register(ch1)
	_ = dispatcher.Register(ch2)

	out := message.OutboundMessage{
		Channel: "telegram",
		Chat:    message.Chat{ID: "chat-1"},
		Blocks:  []message.ContentBlock{message.NewTextBlock("routed")},
	}
	if err := dispatcher.Send(context.Background(), out); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(ch1.SentMessages()) != 1 {
		t.Errorf("telegram channel should have 1 message, got %d", len(ch1.SentMessages()))
	}
	if len(ch2.SentMessages()) != 0 {
		t.Errorf("matrix channel received %d unexpected messages", len(ch2.SentMessages()))
	}
}

// TestEndToEnd_TypingIndicator verifies that StartTypingLoop sends
// indicators and stops when context is cancelled.
func TestEndToEnd_TypingIndicator(t *testing.T) {
	t.Parallel()

	ch := channeltest.NewMockStreamingChannel("telegram", nil)
	chat := message.Chat{ID: "chat-1", Type: message.ChatDM}

	ctx, cancel := context.WithCancel(context.Background())

	// Start typing with a short interval.
	channel.StartTypingLoop(ctx, ch, chat, 20*time.Millisecond)

	// Let it tick a few times.
	time.Sleep(100 * time.Millisecond)
	cancel()

	// Give the goroutine time to exit.
	time.Sleep(20 * time.Millisecond)

	chats := ch.TypingChats()
	if len(chats) < 2 {
		t.Errorf("expected at least 2 typing indicators, got %d", len(chats))
	}
}

// TestEndToEnd_StreamingChannel verifies that SendStream collects chunks.
func TestEndToEnd_StreamingChannel(t *testing.T) {
	t.Parallel()

	ch := channeltest.NewMockStreamingChannel("telegram", nil)

	if !ch.SupportsStreaming() {
		t.Fatal("mock streaming channel should support streaming")
	}

	chat := message.Chat{ID: "chat-1", Type: message.ChatDM}
	stream := make(chan string, 3)
	stream <- "Hello "
	stream <- "World"
	stream <- "!"
	close(stream)

	if err := ch.SendStream(context.Background(), chat, stream); err != nil {
		t.Fatalf("SendStream: %v", err)
	}

	chunks := ch.StreamChunks()
	if len(chunks) != 3 {
		t.Fatalf("expected 3 stream chunks, got %d", len(chunks))
	}
	if chunks[0] != "Hello " || chunks[1] != "World" || chunks[2] != "!" {
		t.Errorf("unexpected chunks: %q", chunks)
	}
}
