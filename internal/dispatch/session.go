package dispatch

import (
	"time"

	"github.com/telegate/telegate/pkg/message"
)

// ChatKey is the composite key for O(1) chat state lookups. It uniquely
// identifies a conversation lane by channel and chat.
type ChatKey struct {
	Channel string
	ChatID  string
}

// ChatKeyFromMessage derives a ChatKey from an inbound update.
// Updates in the same channel/chat share a lane and a session.
func ChatKeyFromMessage(msg message.InboundMessage) ChatKey {
	return ChatKey{
		Channel: msg.Channel,
		ChatID:  msg.Chat.ID,
	}
}

// Session is the per-chat activity record. Conversation continuity lives in
// the link store; the session only tracks liveness so idle chats can have
// their lanes and limiter buckets reclaimed.
type Session struct {
	ID           string
	Key          ChatKey
	CreatedAt    time.Time
	LastActiveAt time.Time

	// Turns counts completed agent turns for the chat since the session
	// was created. Exposed through the status API.
	Turns int
}

// SessionStore manages session lifecycle.
// Implementations must be safe for concurrent use.
type SessionStore interface {
	// GetOrCreate returns an existing session or creates a new one.
	// The bool return indicates whether the session was newly created.
	GetOrCreate(key ChatKey) (*Session, bool)

	// Get returns the session for the given key, or nil if none exists.
	Get(key ChatKey) *Session

	// Touch updates the session's LastActiveAt timestamp.
	Touch(key ChatKey)

	// RecordTurn marks a completed agent turn: bumps the turn counter and
	// the activity timestamp.
	RecordTurn(key ChatKey)

	// Delete removes the session for the given key.
	Delete(key ChatKey)

	// Prune removes sessions that have been idle longer than maxIdle
	// and returns the number of sessions pruned.
	Prune(maxIdle time.Duration) int

	// Len returns the number of active sessions.
	Len() int

	// Range calls fn for each session. If fn returns false, iteration stops.
	Range(fn func(ChatKey, *Session) bool)
}
