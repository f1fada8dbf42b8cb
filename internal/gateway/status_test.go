package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/telegate/telegate/internal/account"
	"github.com/telegate/telegate/internal/agent/agenttest"
	"github.com/telegate/telegate/internal/channel"
)

func decodeStatus(t *testing.T, g *Gateway) StatusResponse {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rr := httptest.NewRecorder()
	g.handleStatus().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}

	var resp StatusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestStatus_Bare(t *testing.T) {
	t.Parallel()

	g := &Gateway{
		logger:     testLogger(),
		metrics:    NewMetrics(),
		dispatcher: NewWebhookDispatcher(testLogger()),
		startedAt:  time.Now().Add(-5 * time.Minute),
	}

	resp := decodeStatus(t, g)

	if resp.Status != "ok" {
		t.Errorf("status = %q, want %q", resp.Status, "ok")
	}
	if resp.UptimeSeconds < 290 {
		t.Errorf("uptime = %d, expected >= 290", resp.UptimeSeconds)
	}
	if len(resp.Channels) != 0 {
		t.Errorf("channels = %v, want none", resp.Channels)
	}
	if len(resp.WebhookSources) != 0 {
		t.Errorf("webhook_sources = %v, want none", resp.WebhookSources)
	}
	// No invoker wired means the backend state is simply unknown.
	if resp.Backend != "unknown" {
		t.Errorf("backend = %q, want %q", resp.Backend, "unknown")
	}
}

func TestStatus_FullyWired(t *testing.T) {
	t.Parallel()

	links := account.NewInMemoryStore()
	for i, chatID := range []string{"100", "200"} {
		err := links.Save(t.Context(), account.Link{
			AccountID: "acc-1",
			ChatID:    chatID,
			LinkedAt:  time.Now().Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	channels := channel.NewDispatcher()
	if err := channels.Register(channel.NewMockChannel("telegram", nil)); err != nil {
		t.Fatal(err)
	}

	dispatcher := NewWebhookDispatcher(testLogger())
	dispatcher.Register("telegram", &mockWebhookHandler{}, "")

	metrics := NewMetrics()
	metrics.UpdateReceived("telegram", "message")
	metrics.MessageSent("telegram")

	g := &Gateway{
		logger:     testLogger(),
		metrics:    metrics,
		dispatcher: dispatcher,
		startedAt:  time.Now(),
		links:      links,
		channels:   channels,
		invoker:    &agenttest.MockInvoker{},
	}

	resp := decodeStatus(t, g)

	if resp.Status != "ok" {
		t.Errorf("status = %q, want %q", resp.Status, "ok")
	}
	if len(resp.Channels) != 1 || resp.Channels[0] != "telegram" {
		t.Errorf("channels = %v, want [telegram]", resp.Channels)
	}
	if len(resp.WebhookSources) != 1 || resp.WebhookSources[0] != "telegram" {
		t.Errorf("webhook_sources = %v, want [telegram]", resp.WebhookSources)
	}
	if resp.Links != 2 {
		t.Errorf("links = %d, want 2", resp.Links)
	}
	if resp.Backend != "ok" {
		t.Errorf("backend = %q, want %q", resp.Backend, "ok")
	}
	if resp.Metrics.Updates != 1 || resp.Metrics.Sends != 1 {
		t.Errorf("metrics = %+v, want 1 update / 1 send", resp.Metrics)
	}
}

func TestStatus_BackendUnreachable(t *testing.T) {
	t.Parallel()

	g := &Gateway{
		logger:     testLogger(),
		metrics:    NewMetrics(),
		dispatcher: NewWebhookDispatcher(testLogger()),
		startedAt:  time.Now(),
		invoker: &agenttest.MockInvoker{
			HealthCheckFunc: func(context.Context) error {
				return errors.New("connection refused")
			},
		},
	}

	resp := decodeStatus(t, g)

	if resp.Backend != "unreachable" {
		t.Errorf("backend = %q, want %q", resp.Backend, "unreachable")
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want %q", resp.Status, "degraded")
	}
}
