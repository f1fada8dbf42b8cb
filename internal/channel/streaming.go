package channel

import (
	"context"
	"time"

	"github.com/telegate/telegate/pkg/message"
)

// StreamingChannel is implemented by channels that can render a response
// incrementally while the agent is still producing it.
type StreamingChannel interface {
	Channel

	// SupportsStreaming reports whether this channel currently supports
	// streaming. A channel may dynamically disable it (platform rate limit).
	SupportsStreaming() bool

	// SendStream delivers a stream of text deltas to the platform. The
	// channel aggregates deltas into a draft message and flushes edits
	// periodically. The stream is closed by the caller when the response
	// is complete; the channel then applies the final formatting.
	SendStream(ctx context.Context, chat message.Chat, stream <-chan string) error
}

// StartTypingLoop launches a goroutine that sends typing indicators at the
// given interval until the context is cancelled. It is safe to call from
// multiple goroutines; the loop stops when ctx is done. A non-positive
// interval falls back to 4s, just under how long the platform shows one
// indicator.
func StartTypingLoop(ctx context.Context, ch Channel, chat message.Chat, interval time.Duration) {
	if interval <= 0 {
		interval = 4 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		// Send an initial typing indicator immediately.
		_ = ch.SendTyping(ctx, chat)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = ch.SendTyping(ctx, chat)
			}
		}
	}()
}
