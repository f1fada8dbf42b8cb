// Package hook provides an update lifecycle hook system for the dispatch
// pipeline. Hooks intercept updates at three positions: when an update is
// received, before a reply is sent, and after it is sent. This enables audit
// logging, update filtering, and reply mutation.
package hook

import (
	"context"
	"log/slog"

	"github.com/telegate/telegate/internal/account"
	"github.com/telegate/telegate/pkg/message"
)

// Position identifies where in the pipeline a hook executes.
type Position string

const (
	// UpdateReceived runs after dedupe and rate limiting, before the chat
	// lane. Hooks here can drop updates.
	UpdateReceived Position = "update_received"

	// BeforeSend runs after the agent turn, before the reply is sent.
	// Hooks here can modify the outbound message.
	BeforeSend Position = "before_send"

	// AfterSend runs after the reply has been sent and persisted.
	// Hooks here are fire-and-forget (errors are logged, never propagated).
	AfterSend Position = "after_send"
)

// Action signals the pipeline what to do after a hook executes.
type Action int

const (
	// ActionContinue tells the pipeline to proceed normally.
	ActionContinue Action = iota

	// ActionDrop tells the pipeline to stop processing this update.
	// Only valid for UpdateReceived hooks.
	ActionDrop

	// ActionModify signals that the hook mutated the outbound message.
	// Only meaningful for BeforeSend hooks.
	ActionModify
)

// Context carries data available to hooks. Shared across all three
// positions within a single pipeline execution.
type Context struct {
	Position Position
	Inbound  message.InboundMessage

	// Account is the link resolved for the chat, or nil when the chat
	// is not linked yet.
	Account *account.Link

	// ConversationID is the backend conversation the turn belongs to.
	// Empty for a fresh conversation.
	ConversationID string

	// Outbound is non-nil for BeforeSend and AfterSend.
	Outbound *message.OutboundMessage

	// Metadata is shared across all 3 positions, allowing hooks
	// to communicate data through the pipeline.
	Metadata map[string]any

	Logger *slog.Logger
}

// Hook is the extension point interface for pipeline interception.
type Hook interface {
	// Position returns where this hook should execute.
	Position() Position

	// Priority determines execution order within a position.
	// Lower values run first.
	Priority() int

	// Execute runs the hook logic. The returned Action tells the
	// pipeline how to proceed.
	Execute(ctx context.Context, hctx *Context) (Action, error)
}
