package backend

import (
	"errors"

	"github.com/telegate/telegate/internal/agent"
)

// Turn request kinds sent over the socket.
const (
	turnKindInvoke = "invoke"
	turnKindResume = "resume"
)

// turnRequest opens a turn on the socket. Exactly one is sent per dial;
// everything after it flows backend-to-bridge.
type turnRequest struct {
	Kind           string            `json:"kind"`
	AccountID      string            `json:"account_id"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Text           string            `json:"text,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	ActionID       string            `json:"action_id,omitempty"`
	Approve        *bool             `json:"approve,omitempty"`
}

// eventFrame is one streamed turn event from the backend.
type eventFrame struct {
	Type           string       `json:"type"`
	Text           string       `json:"text,omitempty"`
	Action         *actionFrame `json:"action,omitempty"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Error          string       `json:"error,omitempty"`
}

// actionFrame describes a step or pending action inside an event frame.
type actionFrame struct {
	ID     string         `json:"id,omitempty"`
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// linkVerifyRequest asks the backend to resolve a link token.
type linkVerifyRequest struct {
	Token string `json:"token"`
}

// linkVerifyResponse is the backend's answer to a valid link token.
type linkVerifyResponse struct {
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name,omitempty"`
}

// convertFrame maps a wire frame to an agent.Event. Unknown event types
// return false so the reader can skip them without ending the turn.
func convertFrame(frame eventFrame) (agent.Event, bool) {
	ev := agent.Event{
		Type:           agent.EventType(frame.Type),
		Text:           frame.Text,
		ConversationID: frame.ConversationID,
	}

	if frame.Action != nil {
		ev.Action = &agent.PendingAction{
			ID:     frame.Action.ID,
			Name:   frame.Action.Name,
			Params: frame.Action.Params,
		}
	}

	switch ev.Type {
	case agent.EventDelta, agent.EventMessage, agent.EventStep, agent.EventPendingAction, agent.EventDone:
	case agent.EventError:
		msg := frame.Error
		if msg == "" {
			msg = "unspecified error"
		}
		ev.Err = errors.New("backend: " + msg)
	default:
		return agent.Event{}, false
	}

	return ev, true
}
