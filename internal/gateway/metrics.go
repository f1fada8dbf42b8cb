package gateway

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the bridge's Prometheus registry, exposed at /metrics and
// registered as service "gateway.metrics". The dispatcher and the channel
// senders record through the small interfaces they declare; this type
// satisfies all of them. A parallel set of atomic counters backs the
// /status snapshot so status reads never scrape the registry.
type Metrics struct {
	registry *prometheus.Registry

	updates         *prometheus.CounterVec
	dispatchSeconds prometheus.Histogram
	sends           *prometheus.CounterVec
	markupFallbacks *prometheus.CounterVec
	pendingActions  prometheus.Gauge
	agentEvents     *prometheus.CounterVec

	updatesTotal   atomic.Int64
	sendsTotal     atomic.Int64
	sendErrors     atomic.Int64
	fallbacksTotal atomic.Int64
	eventsTotal    atomic.Int64
	pendingNow     atomic.Int64
	dispatchNanos  atomic.Int64
	dispatchCount  atomic.Int64
}

// NewMetrics creates the registry with all bridge collectors plus the
// standard Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telegate",
			Name:      "updates_total",
			Help:      "Inbound updates by channel and kind.",
		}, []string{"channel", "kind"}),
		dispatchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "telegate",
			Name:      "dispatch_duration_seconds",
			Help:      "Wall time of one dispatch pipeline execution.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telegate",
			Name:      "sends_total",
			Help:      "Outbound messages by channel and result.",
		}, []string{"channel", "result"}),
		markupFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telegate",
			Name:      "markup_fallbacks_total",
			Help:      "Messages re-sent as plain text after a markup rejection.",
		}, []string{"channel"}),
		pendingActions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "telegate",
			Name:      "pending_actions",
			Help:      "Confirmations currently awaiting a user verdict.",
		}),
		agentEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telegate",
			Name:      "agent_events_total",
			Help:      "Agent stream events by type.",
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		m.updates,
		m.dispatchSeconds,
		m.sends,
		m.markupFallbacks,
		m.pendingActions,
		m.agentEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler returns the /metrics scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// UpdateReceived counts one inbound update.
func (m *Metrics) UpdateReceived(channel, kind string) {
	m.updates.WithLabelValues(channel, kind).Inc()
	m.updatesTotal.Add(1)
}

// ObserveDispatch records one pipeline execution's wall time.
func (m *Metrics) ObserveDispatch(d time.Duration) {
	m.dispatchSeconds.Observe(d.Seconds())
	m.dispatchNanos.Add(int64(d))
	m.dispatchCount.Add(1)
}

// AgentEvent counts one agent stream event.
func (m *Metrics) AgentEvent(eventType string) {
	m.agentEvents.WithLabelValues(eventType).Inc()
	m.eventsTotal.Add(1)
}

// SetPendingActions sets the unresolved-confirmation gauge.
func (m *Metrics) SetPendingActions(n int) {
	m.pendingActions.Set(float64(n))
	m.pendingNow.Store(int64(n))
}

// MessageSent counts one delivered outbound message.
func (m *Metrics) MessageSent(channel string) {
	m.sends.WithLabelValues(channel, "ok").Inc()
	m.sendsTotal.Add(1)
}

// MessageFailed counts one outbound message the channel could not deliver.
func (m *Metrics) MessageFailed(channel string) {
	m.sends.WithLabelValues(channel, "error").Inc()
	m.sendErrors.Add(1)
}

// MarkupFallback counts one plain-text retry after a markup rejection.
func (m *Metrics) MarkupFallback(channel string) {
	m.markupFallbacks.WithLabelValues(channel).Inc()
	m.fallbacksTotal.Add(1)
}

// Snapshot returns a point-in-time view of the counters for /status.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Updates:         m.updatesTotal.Load(),
		Sends:           m.sendsTotal.Load(),
		SendErrors:      m.sendErrors.Load(),
		MarkupFallbacks: m.fallbacksTotal.Load(),
		AgentEvents:     m.eventsTotal.Load(),
		PendingActions:  m.pendingNow.Load(),
	}
	if n := m.dispatchCount.Load(); n > 0 {
		snap.AvgDispatchMillis = m.dispatchNanos.Load() / n / int64(time.Millisecond)
	}
	return snap
}

// MetricsSnapshot is the serializable counter view embedded in /status.
type MetricsSnapshot struct {
	Updates           int64 `json:"updates"`
	Sends             int64 `json:"sends"`
	SendErrors        int64 `json:"send_errors"`
	MarkupFallbacks   int64 `json:"markup_fallbacks"`
	AgentEvents       int64 `json:"agent_events"`
	PendingActions    int64 `json:"pending_actions"`
	AvgDispatchMillis int64 `json:"avg_dispatch_ms"`
}
