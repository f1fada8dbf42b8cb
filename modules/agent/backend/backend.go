// Package backend implements the agent.Invoker client for the web
// application's conversational backend. Turns are streamed over a per-turn
// WebSocket (one dial per invocation, JSON event frames, ping keepalive,
// bounded reads); link-token verification and health probes use plain HTTP
// against the same base URL. The module registers the client as service
// "agent.invoker".
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/telegate/telegate/internal/agent"
	"github.com/telegate/telegate/internal/core"
	"github.com/telegate/telegate/internal/security"
)

func init() {
	core.RegisterModule(&Backend{})
}

// Compile-time interface guards.
var (
	_ agent.Invoker     = (*Client)(nil)
	_ core.Configurable = (*Backend)(nil)
	_ core.Provisioner  = (*Backend)(nil)
	_ core.Validator    = (*Backend)(nil)
	_ core.Starter      = (*Backend)(nil)
	_ core.Stopper      = (*Backend)(nil)
)

// startProbeTimeout caps the health probe at Start.
const startProbeTimeout = 5 * time.Second

// Backend is the agent backend client module.
type Backend struct {
	config Config
	client *Client
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (b *Backend) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "agent.backend",
		New: func() core.Module { return &Backend{} },
	}
}

// Configure implements core.Configurable.
func (b *Backend) Configure(node *yaml.Node) error {
	if err := node.Decode(&b.config); err != nil {
		return fmt.Errorf("backend: decode config: %w", err)
	}
	b.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (b *Backend) Provision(ctx *core.AppContext) error {
	b.config.defaults()
	b.logger = ctx.Logger

	b.client = NewClient(b.config.URL, b.config.Token, b.logger)
	b.client.turnTimeout = b.config.TurnTimeout
	b.client.pingInterval = b.config.PingInterval

	// Register the backend token so the redacting log handler masks it.
	if svc, ok := ctx.Service("security.credentials"); ok {
		if creds, ok := svc.(*security.CredentialStore); ok && b.config.Token != "" {
			creds.Set("backend.token", b.config.Token)
		}
	}

	ctx.RegisterService("agent.invoker", b.client)

	return nil
}

// Validate implements core.Validator.
func (b *Backend) Validate() error {
	return b.config.validate()
}

// Start implements core.Starter. A dead backend at boot is logged, not
// fatal: the bridge keeps receiving updates and turns fail with a user
// notice until the backend comes back.
func (b *Backend) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), startProbeTimeout)
	defer cancel()

	if err := b.client.HealthCheck(ctx); err != nil {
		b.logger.Warn("agent backend unreachable at startup", "url", b.config.URL, "error", err)
	} else {
		b.logger.Info("agent backend reachable", "url", b.config.URL)
	}

	return nil
}

// Stop implements core.Stopper.
func (b *Backend) Stop(_ context.Context) error {
	if b.client != nil {
		b.client.http.CloseIdleConnections()
	}
	return nil
}

// Invoker returns the agent.Invoker implementation.
func (b *Backend) Invoker() agent.Invoker {
	return b.client
}
