package agent

import (
	"context"
	"errors"
)

// Sentinel errors for backend interactions.
var (
	// ErrInvalidLinkToken indicates the token is unknown, expired, or
	// already consumed.
	ErrInvalidLinkToken = errors.New("agent: invalid link token")

	// ErrBackendUnavailable indicates the backend could not be reached.
	ErrBackendUnavailable = errors.New("agent: backend unavailable")

	// ErrUnknownAction indicates a resume referenced an action the backend
	// no longer tracks.
	ErrUnknownAction = errors.New("agent: unknown pending action")
)

// Invoker is the bridge's view of the conversational backend.
// Implementations must be safe for concurrent use; the dispatcher runs one
// turn per chat but many chats in parallel.
//
// Invoke and Resume return an event channel the implementation closes when
// the turn is over. Errors establishing the turn are returned directly;
// failures after that arrive as a final Event with Err set.
type Invoker interface {
	// Invoke opens a turn for a user message and streams its events.
	Invoke(ctx context.Context, req Request) (<-chan Event, error)

	// Resume resolves a pending action and streams the outcome.
	Resume(ctx context.Context, req ResumeRequest) (<-chan Event, error)

	// ResolveLinkToken verifies a link token minted by the web app and
	// returns the account it belongs to. Returns ErrInvalidLinkToken for
	// tokens the backend rejects.
	ResolveLinkToken(ctx context.Context, token string) (Account, error)

	// HealthCheck probes the backend. A nil return means a turn opened now
	// would be expected to succeed.
	HealthCheck(ctx context.Context) error
}
