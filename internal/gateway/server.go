package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Public, no auth.
	r.Get("/health", g.handleHealth())
	r.Method(http.MethodGet, "/metrics", g.metrics.Handler())

	// Webhooks authenticate per source (HMAC or the handler's own check).
	r.Post("/webhooks/{source}", g.dispatcher.ServeHTTP)

	// MCP transport, mounted when the module is loaded. The MCP handler
	// carries its own session auth.
	if g.mcp != nil {
		r.Mount("/mcp", g.mcp)
	}

	// Admin endpoints. Not mounted at all when no auth is configured.
	if g.config.Auth.IsConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth, g.audit, g.limiter))
			r.Get("/status", g.handleStatus())
			r.Route("/api", func(r chi.Router) {
				r.Get("/links", g.handleListLinks())
				r.Delete("/links/{chatID}", g.handleDeleteLink())
				r.Get("/channels", g.handleListChannels())
				r.Post("/notify", g.handleNotify())
				r.Post("/config/reload", g.handleReloadConfig())
			})
		})
	}

	return r
}
