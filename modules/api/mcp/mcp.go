// Package mcp exposes the bridge to agent tooling over the Model Context
// Protocol. The server registers the telegram_send_message and
// telegram_list_links tools and hands its SSE transport to the gateway as
// service "mcp.handler". Tool failures come back as MCP tool results so
// the calling agent can read them in-band, never as transport errors.
package mcp

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"

	"github.com/telegate/telegate/internal/account"
	"github.com/telegate/telegate/internal/channel"
	"github.com/telegate/telegate/internal/core"
	"github.com/telegate/telegate/internal/security"
	"github.com/telegate/telegate/internal/version"
)

// basePath is where the gateway mounts the MCP transport.
const basePath = "/mcp"

func init() {
	core.RegisterModule(&MCP{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*MCP)(nil)
	_ core.Provisioner  = (*MCP)(nil)
	_ core.Starter      = (*MCP)(nil)
)

// MCP is the agent tooling API module.
type MCP struct {
	config Config
	appCtx *core.AppContext
	logger *slog.Logger
	server *server.MCPServer

	// Resolved at Start. Tool handlers nil-check at call time so a tool
	// call before full startup degrades to an in-band error.
	links    account.LinkStore
	channels *channel.Dispatcher
	audit    *security.AuditLogger
}

// ModuleInfo implements core.Module.
func (m *MCP) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "api.mcp",
		New: func() core.Module { return &MCP{} },
	}
}

// Configure implements core.Configurable.
func (m *MCP) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("mcp: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner. The gateway picks up
// "mcp.handler" at its own Start, so the server and its transport are
// built here; cross-module lookups wait until Start.
func (m *MCP) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.appCtx = ctx
	m.logger = ctx.Logger

	m.server = server.NewMCPServer(m.config.ServerName, version.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	m.registerTools()

	sse := server.NewSSEServer(m.server, server.WithStaticBasePath(basePath))

	var handler http.Handler = sse
	if m.config.AuthToken != "" {
		handler = bearerAuth(m.config.AuthToken, handler)

		// Register the token so the redacting log handler masks it.
		if svc, ok := ctx.Service("security.credentials"); ok {
			if creds, ok := svc.(*security.CredentialStore); ok {
				creds.Set("mcp.auth_token", m.config.AuthToken)
			}
		}
	}
	ctx.RegisterService("mcp.handler", handler)

	return nil
}

// Start implements core.Starter. All lookups are optional; a tool whose
// dependency is missing reports that as a tool result.
func (m *MCP) Start() error {
	if svc, ok := m.appCtx.Service("store.links"); ok {
		if links, ok := svc.(account.LinkStore); ok {
			m.links = links
		}
	}
	if svc, ok := m.appCtx.Service("channel.dispatcher"); ok {
		if d, ok := svc.(*channel.Dispatcher); ok {
			m.channels = d
		}
	}
	if svc, ok := m.appCtx.Service("security.audit"); ok {
		if a, ok := svc.(*security.AuditLogger); ok {
			m.audit = a
		}
	}

	if m.config.AuthToken == "" {
		m.logger.Warn("mcp transport serving without authentication")
	}
	m.logger.Info("mcp server ready", "tools", []string{toolSendMessage, toolListLinks})
	return nil
}

// bearerAuth guards the MCP transport with a constant-time bearer check.
func bearerAuth(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
