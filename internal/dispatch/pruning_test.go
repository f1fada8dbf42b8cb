package dispatch

import (
	"testing"
	"time"

	"github.com/telegate/telegate/internal/security"
)

func TestLazyPruner_RateLimitsRuns(t *testing.T) {
	t.Parallel()

	current := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	store := NewInMemorySessionStore()
	store.now = now
	pruner := newLazyPruner(store, NewLaneLock(), time.Second)
	pruner.now = now

	store.GetOrCreate(chatKey("1"))
	current = current.Add(2 * time.Second)

	// First call always runs; the session is past maxIdle.
	if got := pruner.TryPrune(); got != 1 {
		t.Fatalf("first TryPrune = %d, want 1", got)
	}

	// A second call inside the interval is a no-op even though the next
	// session is already idle.
	store.GetOrCreate(chatKey("2"))
	current = current.Add(2 * time.Second)
	if got := pruner.TryPrune(); got != 0 {
		t.Fatalf("rate-limited TryPrune = %d, want 0", got)
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want the idle session kept until the next window", store.Len())
	}

	// Past the interval the idle session goes.
	current = current.Add(defaultPruneInterval)
	if got := pruner.TryPrune(); got != 1 {
		t.Fatalf("third TryPrune = %d, want 1", got)
	}
	if store.Len() != 0 {
		t.Errorf("Len = %d, want 0", store.Len())
	}
}

func TestLazyPruner_CleansLanesAndPendingActions(t *testing.T) {
	t.Parallel()

	current := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	store := NewInMemorySessionStore()
	store.now = now
	lanes := NewLaneLock()
	pending := NewPendingActions(time.Minute)
	pending.now = now

	pruner := newLazyPruner(store, lanes, 30*time.Minute)
	pruner.now = now
	pruner.pending = pending
	pruner.limiter = security.NewRateLimiter(security.RateLimitConfig{})

	key := chatKey("100")
	store.GetOrCreate(key)
	lanes.Acquire(key)
	lanes.Release(key)
	pending.Register("act-1", testEntry("100", "acct-1"))

	current = current.Add(time.Hour)
	if got := pruner.TryPrune(); got != 1 {
		t.Fatalf("TryPrune = %d, want 1 pruned session", got)
	}

	lanes.mu.Lock()
	laneCount := len(lanes.lanes)
	lanes.mu.Unlock()
	if laneCount != 0 {
		t.Errorf("lanes = %d, want 0 after cleanup", laneCount)
	}

	if pending.Len() != 0 {
		t.Errorf("pending = %d, want 0 after expiry", pending.Len())
	}
}
