package gateway

import (
	"context"
	"net/http"
	"time"
)

// backendProbeTimeout caps the backend health probe per /status request.
const backendProbeTimeout = 2 * time.Second

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Status         string          `json:"status"`
	UptimeSeconds  int64           `json:"uptime_seconds"`
	Channels       []string        `json:"channels"`
	WebhookSources []string        `json:"webhook_sources"`
	Links          int             `json:"links"`
	Backend        string          `json:"backend"`
	Metrics        MetricsSnapshot `json:"metrics"`
}

// handleStatus reports uptime, counters, registered channels, which sources
// deliver over webhooks (an empty list means everything polls), the link
// count, and a live backend probe.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Status:         "ok",
			UptimeSeconds:  int64(time.Since(g.startedAt) / time.Second),
			Channels:       []string{},
			WebhookSources: g.dispatcher.Sources(),
			Backend:        "unknown",
			Metrics:        g.metrics.Snapshot(),
		}

		if g.channels != nil {
			resp.Channels = g.channels.Channels()
		}

		if g.links != nil {
			if links, err := g.links.List(r.Context()); err == nil {
				resp.Links = len(links)
			}
		}

		if g.invoker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), backendProbeTimeout)
			if err := g.invoker.HealthCheck(ctx); err != nil {
				resp.Backend = "unreachable"
				resp.Status = "degraded"
			} else {
				resp.Backend = "ok"
			}
			cancel()
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
