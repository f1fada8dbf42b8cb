package dispatch

import (
	"sync"
	"time"

	"github.com/telegate/telegate/internal/security"
)

const defaultPruneInterval = 5 * time.Minute

// lazyPruner performs rate-limited housekeeping: idle sessions, stale
// lanes, expired pending actions, and empty limiter buckets. It runs at
// most once per interval to avoid excessive map iteration.
type lazyPruner struct {
	mu       sync.Mutex
	store    SessionStore
	laneLock *LaneLock
	pending  *PendingActions
	limiter  *security.RateLimiter
	maxIdle  time.Duration
	interval time.Duration
	lastRun  time.Time
	now      func() time.Time
}

type activeKeysProvider interface {
	ActiveKeys() map[ChatKey]struct{}
}

// newLazyPruner creates a pruner with the given configuration.
// pending and limiter may be nil.
func newLazyPruner(store SessionStore, laneLock *LaneLock, maxIdle time.Duration) *lazyPruner {
	return &lazyPruner{
		store:    store,
		laneLock: laneLock,
		maxIdle:  maxIdle,
		interval: defaultPruneInterval,
		now:      time.Now,
	}
}

// TryPrune runs housekeeping if enough time has elapsed since the last run.
// Returns the number of sessions pruned, or 0 if rate-limited.
func (p *lazyPruner) TryPrune() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if now.Sub(p.lastRun) < p.interval {
		return 0
	}
	p.lastRun = now

	pruned := p.store.Prune(p.maxIdle)

	if p.laneLock != nil {
		if provider, ok := p.store.(activeKeysProvider); ok {
			p.laneLock.Cleanup(provider.ActiveKeys())
		}
	}

	if p.pending != nil {
		p.pending.Expire()
	}
	if p.limiter != nil {
		p.limiter.Prune()
	}

	return pruned
}
