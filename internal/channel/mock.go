package channel

import (
	"context"
	"sync"

	"github.com/telegate/telegate/pkg/markup"
	"github.com/telegate/telegate/pkg/message"
)

// MockChannel is a test double that implements Channel. It records sent
// messages, edits, typing indicators and callback answers, and allows
// simulating inbound messages via SimulateMessage.
type MockChannel struct {
	name      string
	inbox     func(msg message.InboundMessage) error
	mu        sync.Mutex
	sent      []message.OutboundMessage
	edits     []MockEdit
	answered  []MockAnswer
	typing    []message.Chat
	allowList *AllowList

	// SendFunc, if set, is called instead of the default recording behavior.
	SendFunc func(ctx context.Context, msg message.OutboundMessage) error

	// EditFunc, if set, is called instead of the default recording behavior.
	EditFunc func(ctx context.Context, chat message.Chat, messageID string, msg markup.FormattedMessage, keyboard message.Keyboard) error
}

// MockEdit records one EditMessage call.
type MockEdit struct {
	Chat      message.Chat
	MessageID string
	Message   markup.FormattedMessage
	Keyboard  message.Keyboard
}

// MockAnswer records one AnswerCallback call.
type MockAnswer struct {
	CallbackID string
	Text       string
}

// Compile-time interface guards.
var _ Channel = (*MockChannel)(nil)

// NewMockChannel creates a MockChannel with the given name and an optional
// allow-list. Pass nil for allowList to admit everyone.
func NewMockChannel(name string, allowList *AllowList) *MockChannel {
	return &MockChannel{
		name:      name,
		allowList: allowList,
	}
}

// Name implements Channel.
func (m *MockChannel) Name() string {
	return m.name
}

// Send records the outbound message. If SendFunc is set, it delegates to it.
func (m *MockChannel) Send(ctx context.Context, msg message.OutboundMessage) error {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// SendTyping records the chat that received a typing indicator.
func (m *MockChannel) SendTyping(_ context.Context, chat message.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typing = append(m.typing, chat)
	return nil
}

// AnswerCallback records the acknowledgement.
func (m *MockChannel) AnswerCallback(_ context.Context, callbackID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answered = append(m.answered, MockAnswer{CallbackID: callbackID, Text: text})
	return nil
}

// EditMessage records the edit. If EditFunc is set, it delegates to it.
func (m *MockChannel) EditMessage(ctx context.Context, chat message.Chat, messageID string, msg markup.FormattedMessage, keyboard message.Keyboard) error {
	if m.EditFunc != nil {
		return m.EditFunc(ctx, chat, messageID, msg, keyboard)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, MockEdit{Chat: chat, MessageID: messageID, Message: msg, Keyboard: keyboard})
	return nil
}

// SetInbox stores the inbox callback provided by the dispatcher wiring.
func (m *MockChannel) SetInbox(fn func(msg message.InboundMessage) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbox = fn
}

// SimulateMessage pushes an inbound message through the allow-list and into
// the inbox. It returns ErrDenied if the sender is not allowed, and ErrNoInbox
// if SetInbox has not been called.
func (m *MockChannel) SimulateMessage(msg message.InboundMessage) error {
	m.mu.Lock()
	al := m.allowList
	inbox := m.inbox
	m.mu.Unlock()

	if !al.IsAllowed(msg) {
		return ErrDenied
	}
	if inbox == nil {
		return ErrNoInbox
	}

	// Tag the message with this channel's name.
	msg.Channel = m.name
	return inbox(msg)
}

// SentMessages returns a copy of all outbound messages recorded by Send.
func (m *MockChannel) SentMessages() []message.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]message.OutboundMessage, len(m.sent))
	copy(cp, m.sent)
	return cp
}

// Edits returns a copy of all recorded EditMessage calls.
func (m *MockChannel) Edits() []MockEdit {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]MockEdit, len(m.edits))
	copy(cp, m.edits)
	return cp
}

// Answered returns a copy of all recorded AnswerCallback calls.
func (m *MockChannel) Answered() []MockAnswer {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]MockAnswer, len(m.answered))
	copy(cp, m.answered)
	return cp
}

// TypingChats returns a copy of all chats that received typing indicators.
func (m *MockChannel) TypingChats() []message.Chat {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]message.Chat, len(m.typing))
	copy(cp, m.typing)
	return cp
}

// Reset clears all recorded interactions.
func (m *MockChannel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
	m.edits = nil
	m.answered = nil
	m.typing = nil
}

// MockStreamingChannel extends MockChannel with streaming support.
type MockStreamingChannel struct {
	*MockChannel

	mu           sync.Mutex
	streaming    bool
	streamChunks []string

	// SupportsStreamingFunc overrides the default SupportsStreaming behavior.
	SupportsStreamingFunc func() bool
}

// Compile-time interface guard.
var _ StreamingChannel = (*MockStreamingChannel)(nil)

// NewMockStreamingChannel creates a MockStreamingChannel.
func NewMockStreamingChannel(name string, allowList *AllowList) *MockStreamingChannel {
	return &MockStreamingChannel{
		MockChannel: NewMockChannel(name, allowList),
		streaming:   true,
	}
}

// SupportsStreaming implements StreamingChannel.
func (m *MockStreamingChannel) SupportsStreaming() bool {
	if m.SupportsStreamingFunc != nil {
		return m.SupportsStreamingFunc()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streaming
}

// SendStream implements StreamingChannel. It collects all chunks.
func (m *MockStreamingChannel) SendStream(_ context.Context, _ message.Chat, stream <-chan string) error {
	for chunk := range stream {
		m.mu.Lock()
		m.streamChunks = append(m.streamChunks, chunk)
		m.mu.Unlock()
	}
	return nil
}

// StreamChunks returns a copy of all stream chunks received.
func (m *MockStreamingChannel) StreamChunks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]string, len(m.streamChunks))
	copy(cp, m.streamChunks)
	return cp
}
