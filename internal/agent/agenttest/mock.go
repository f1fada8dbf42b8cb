// Package agenttest provides test helpers for the agent package.
package agenttest

import (
	"context"
	"sync"

	"github.com/telegate/telegate/internal/agent"
)

// MockInvoker is a configurable test double for agent.Invoker.
// Set the Func fields to control behavior; unset funcs fall back to
// emitting an empty done event (Invoke/Resume), rejecting tokens
// (ResolveLinkToken), or reporting healthy (HealthCheck).
// All methods are safe for concurrent use.
type MockInvoker struct {
	InvokeFunc           func(ctx context.Context, req agent.Request) (<-chan agent.Event, error)
	ResumeFunc           func(ctx context.Context, req agent.ResumeRequest) (<-chan agent.Event, error)
	ResolveLinkTokenFunc func(ctx context.Context, token string) (agent.Account, error)
	HealthCheckFunc      func(ctx context.Context) error

	mu          sync.Mutex
	invocations []agent.Request
	resumes     []agent.ResumeRequest
	tokens      []string
	healthCalls int
}

// Interface guard.
var _ agent.Invoker = (*MockInvoker)(nil)

// Invoke records the request and delegates to InvokeFunc.
func (m *MockInvoker) Invoke(ctx context.Context, req agent.Request) (<-chan agent.Event, error) {
	m.mu.Lock()
	m.invocations = append(m.invocations, req)
	m.mu.Unlock()

	if m.InvokeFunc != nil {
		return m.InvokeFunc(ctx, req)
	}
	return EventStream(agent.Event{Type: agent.EventDone}), nil
}

// Resume records the request and delegates to ResumeFunc.
func (m *MockInvoker) Resume(ctx context.Context, req agent.ResumeRequest) (<-chan agent.Event, error) {
	m.mu.Lock()
	m.resumes = append(m.resumes, req)
	m.mu.Unlock()

	if m.ResumeFunc != nil {
		return m.ResumeFunc(ctx, req)
	}
	return EventStream(agent.Event{Type: agent.EventDone}), nil
}

// ResolveLinkToken records the token and delegates to ResolveLinkTokenFunc.
func (m *MockInvoker) ResolveLinkToken(ctx context.Context, token string) (agent.Account, error) {
	m.mu.Lock()
	m.tokens = append(m.tokens, token)
	m.mu.Unlock()

	if m.ResolveLinkTokenFunc != nil {
		return m.ResolveLinkTokenFunc(ctx, token)
	}
	return agent.Account{}, agent.ErrInvalidLinkToken
}

// HealthCheck tracks the call and delegates to HealthCheckFunc.
func (m *MockInvoker) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	m.healthCalls++
	m.mu.Unlock()

	if m.HealthCheckFunc != nil {
		return m.HealthCheckFunc(ctx)
	}
	return nil
}

// Invocations returns a copy of all recorded Invoke requests.
func (m *MockInvoker) Invocations() []agent.Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]agent.Request, len(m.invocations))
	copy(cp, m.invocations)
	return cp
}

// Resumes returns a copy of all recorded Resume requests.
func (m *MockInvoker) Resumes() []agent.ResumeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]agent.ResumeRequest, len(m.resumes))
	copy(cp, m.resumes)
	return cp
}

// ResolvedTokens returns a copy of all tokens passed to ResolveLinkToken.
func (m *MockInvoker) ResolvedTokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]string, len(m.tokens))
	copy(cp, m.tokens)
	return cp
}

// HealthCalls returns how many times HealthCheck was invoked.
func (m *MockInvoker) HealthCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthCalls
}

// EventStream returns a closed channel preloaded with the given events,
// in order. Handy for scripting a whole turn in one line.
func EventStream(events ...agent.Event) <-chan agent.Event {
	ch := make(chan agent.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}
