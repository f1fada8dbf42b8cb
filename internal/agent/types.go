// Package agent defines the client contract for the web application's
// conversational backend: turn invocation, event streaming, pending-action
// resolution, and link-token verification. The backend does the reasoning;
// the bridge only relays.
package agent

// EventType identifies the kind of turn event.
type EventType string

// EventType constants for turn events.
const (
	// EventDelta is an incremental text fragment of the reply in progress.
	EventDelta EventType = "delta"

	// EventMessage is a complete reply message.
	EventMessage EventType = "message"

	// EventStep is a progress marker for an action the backend performs.
	EventStep EventType = "step"

	// EventPendingAction asks the user to confirm or reject an action
	// before the backend proceeds.
	EventPendingAction EventType = "pending_action"

	// EventDone closes the turn.
	EventDone EventType = "done"

	// EventError reports a mid-stream failure; the turn is over.
	EventError EventType = "error"
)

// PendingAction is an action the backend wants to perform. For
// EventPendingAction the ID is the handle the user's decision resolves;
// EventStep reuses the shape with an empty ID for plain progress markers.
type PendingAction struct {
	ID     string
	Name   string
	Params map[string]any
}

// Event is a single event emitted during a streamed turn.
type Event struct {
	Type   EventType
	Text   string
	Action *PendingAction

	// ConversationID is set on EventDone so the caller can persist
	// conversation continuity for the chat.
	ConversationID string

	Err error
}

// Request opens a turn with the backend.
type Request struct {
	// AccountID is the linked web-app account the turn runs as.
	AccountID string

	// ConversationID continues an existing conversation; empty starts
	// a new one.
	ConversationID string

	// Text is the user's message, raw as typed.
	Text string

	// Metadata carries channel context the backend may surface
	// (chat ID, sender display name).
	Metadata map[string]string
}

// ResumeRequest resolves a pending action and continues its turn.
type ResumeRequest struct {
	AccountID      string
	ConversationID string

	// ActionID is the pending action being resolved.
	ActionID string

	// Approve is the user's decision.
	Approve bool
}

// Account is a verified web-app account, as returned by link-token
// resolution.
type Account struct {
	ID          string
	DisplayName string
}
