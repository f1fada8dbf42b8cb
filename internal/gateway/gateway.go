// Package gateway provides the bridge's HTTP surface: liveness and metrics,
// webhook ingestion, the admin API, and the MCP mount. It binds to loopback
// by default; everything except /health, /metrics, and the webhook endpoint
// sits behind admin auth.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/telegate/telegate/internal/account"
	"github.com/telegate/telegate/internal/agent"
	"github.com/telegate/telegate/internal/channel"
	"github.com/telegate/telegate/internal/core"
	"github.com/telegate/telegate/internal/security"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)

// Gateway is the HTTP gateway module.
type Gateway struct {
	config     Config
	appCtx     *core.AppContext
	logger     *slog.Logger
	server     *http.Server
	metrics    *Metrics
	dispatcher *WebhookDispatcher
	startedAt  time.Time

	// Resolved at Start via the service registry; each one optional so the
	// gateway serves whatever the rest of the deployment provides.
	links    account.LinkStore
	invoker  agent.Invoker
	channels *channel.Dispatcher
	audit    *security.AuditLogger
	limiter  *security.RateLimiter
	mcp      http.Handler
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner. The metrics registry and the
// webhook dispatcher are registered here so channel and dispatch wiring can
// resolve them before Start.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.metrics = NewMetrics()
	g.dispatcher = NewWebhookDispatcher(g.logger)

	ctx.RegisterService("gateway.metrics", g.metrics)
	ctx.RegisterService("gateway.webhook_dispatcher", g.dispatcher)

	// Config-declared webhook secrets apply even before the source's
	// handler registers.
	for source, cfg := range g.config.Webhooks {
		if cfg.Secret != "" {
			g.dispatcher.SetSecret(source, cfg.Secret)
			g.logger.Info("webhook source configured", "source", source)
		}
	}

	// Register the admin token so the redacting log handler masks it.
	if g.config.Auth.BearerToken != "" {
		if svc, ok := ctx.Service("security.credentials"); ok {
			if creds, ok := svc.(*security.CredentialStore); ok {
				creds.Set("gateway.admin_token", g.config.Auth.BearerToken)
			}
		}
	}

	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	return nil
}

// Start implements core.Starter. It resolves cross-module dependencies from
// the service registry (all optional, lazy binding) and starts the HTTP
// server.
func (g *Gateway) Start() error {
	if svc, ok := g.appCtx.Service("store.links"); ok {
		if links, ok := svc.(account.LinkStore); ok {
			g.links = links
		}
	}
	if svc, ok := g.appCtx.Service("agent.invoker"); ok {
		if inv, ok := svc.(agent.Invoker); ok {
			g.invoker = inv
		}
	}
	if svc, ok := g.appCtx.Service("channel.dispatcher"); ok {
		if d, ok := svc.(*channel.Dispatcher); ok {
			g.channels = d
		}
	}
	if svc, ok := g.appCtx.Service("security.audit"); ok {
		if a, ok := svc.(*security.AuditLogger); ok {
			g.audit = a
		}
	}
	if svc, ok := g.appCtx.Service("security.ratelimiter"); ok {
		if rl, ok := svc.(*security.RateLimiter); ok {
			g.limiter = rl
		}
	}
	if svc, ok := g.appCtx.Service("mcp.handler"); ok {
		if h, ok := svc.(http.Handler); ok {
			g.mcp = h
		}
	}

	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.config.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
