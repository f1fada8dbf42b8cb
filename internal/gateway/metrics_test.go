package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/telegate/telegate/internal/dispatch"
)

// The dispatch pipeline records through its own narrow interface; Metrics
// must keep satisfying it.
var _ dispatch.Metrics = (*Metrics)(nil)

func TestMetrics_Snapshot(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.UpdateReceived("telegram", "message")
	m.UpdateReceived("telegram", "callback")
	m.MessageSent("telegram")
	m.MessageFailed("telegram")
	m.MarkupFallback("telegram")
	m.AgentEvent("delta")
	m.AgentEvent("delta")
	m.AgentEvent("done")
	m.SetPendingActions(2)
	m.ObserveDispatch(100 * time.Millisecond)
	m.ObserveDispatch(300 * time.Millisecond)

	snap := m.Snapshot()
	if snap.Updates != 2 {
		t.Errorf("Updates = %d, want 2", snap.Updates)
	}
	if snap.Sends != 1 {
		t.Errorf("Sends = %d, want 1", snap.Sends)
	}
	if snap.SendErrors != 1 {
		t.Errorf("SendErrors = %d, want 1", snap.SendErrors)
	}
	if snap.MarkupFallbacks != 1 {
		t.Errorf("MarkupFallbacks = %d, want 1", snap.MarkupFallbacks)
	}
	if snap.AgentEvents != 3 {
		t.Errorf("AgentEvents = %d, want 3", snap.AgentEvents)
	}
	if snap.PendingActions != 2 {
		t.Errorf("PendingActions = %d, want 2", snap.PendingActions)
	}
	if snap.AvgDispatchMillis != 200 {
		t.Errorf("AvgDispatchMillis = %d, want 200", snap.AvgDispatchMillis)
	}
}

func TestMetrics_SnapshotEmpty(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	snap := m.Snapshot()

	if snap != (MetricsSnapshot{}) {
		t.Errorf("empty snapshot should be all zeros: %+v", snap)
	}
}

func TestMetrics_PendingActionsGaugeFollows(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.SetPendingActions(5)
	m.SetPendingActions(1)

	if got := m.Snapshot().PendingActions; got != 1 {
		t.Errorf("PendingActions = %d, want 1 (gauge, not counter)", got)
	}
}

func TestMetrics_Scrape(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.UpdateReceived("telegram", "message")
	m.MessageSent("telegram")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	body := rr.Body.String()
	for _, want := range []string{
		`telegate_updates_total{channel="telegram",kind="message"} 1`,
		`telegate_sends_total{channel="telegram",result="ok"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestMetrics_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	var wg sync.WaitGroup

	for range 100 {
		wg.Add(3)
		go func() {
			defer wg.Done()
			m.UpdateReceived("telegram", "message")
		}()
		go func() {
			defer wg.Done()
			m.MessageSent("telegram")
		}()
		go func() {
			defer wg.Done()
			m.ObserveDispatch(time.Millisecond)
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	if snap.Updates != 100 {
		t.Errorf("Updates = %d, want 100", snap.Updates)
	}
	if snap.Sends != 100 {
		t.Errorf("Sends = %d, want 100", snap.Sends)
	}
}
