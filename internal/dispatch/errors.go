// Package dispatch routes inbound updates to the agent backend, serializing
// turns within a chat while letting distinct chats proceed in parallel.
package dispatch

import "errors"

// Sentinel errors for dispatcher operations.
var (
	// ErrInboxFull indicates the dispatcher's update inbox is at capacity
	// and the incoming update was dropped. Callers should back off or
	// alert the operator.
	ErrInboxFull = errors.New("dispatch: inbox full, update dropped")

	// ErrStopped indicates the dispatcher has been shut down and is no
	// longer accepting updates.
	ErrStopped = errors.New("dispatch: stopped")

	// ErrDuplicateUpdate indicates the update ID was already processed.
	// Transports retry deliveries; duplicates are dropped silently.
	ErrDuplicateUpdate = errors.New("dispatch: duplicate update")

	// ErrNoInvoker indicates no agent invoker has been configured.
	// The dispatcher cannot run turns without one.
	ErrNoInvoker = errors.New("dispatch: no agent invoker configured")

	// ErrNoSender indicates no response sender has been configured.
	// The dispatcher cannot deliver replies without one.
	ErrNoSender = errors.New("dispatch: no response sender configured")

	// ErrNoLinkStore indicates no link store has been configured.
	// The dispatcher cannot resolve accounts without one.
	ErrNoLinkStore = errors.New("dispatch: no link store configured")
)
