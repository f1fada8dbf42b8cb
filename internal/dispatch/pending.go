package dispatch

import (
	"strings"
	"sync"
	"time"

	"github.com/telegate/telegate/internal/agent"
)

// DefaultPendingTTL bounds how long an unanswered confirmation stays
// resolvable. Past it the inline keyboard answers with a gentle notice.
const DefaultPendingTTL = 15 * time.Minute

// Callback data prefixes for the confirmation keyboard.
const (
	callbackConfirmPrefix = "confirm:"
	callbackRejectPrefix  = "reject:"
)

// PendingEntry ties a registered pending action to the chat that must
// answer it. The message carrying the keyboard is not recorded here; the
// callback press identifies it, and the press is what disarms it.
type PendingEntry struct {
	Action         agent.PendingAction
	Key            ChatKey
	AccountID      string
	ConversationID string
}

// ResolvedAction is a pending entry popped from the registry together
// with the user's verdict.
type ResolvedAction struct {
	Entry   PendingEntry
	Approve bool
}

// pendingRecord wraps an entry with its registration time for TTL checks.
type pendingRecord struct {
	entry     PendingEntry
	createdAt time.Time
}

// PendingActions tracks actions awaiting user confirmation, keyed by the
// backend's action ID. Resolution pops the entry, so a double press of the
// same button fails deterministically.
type PendingActions struct {
	mu      sync.Mutex
	pending map[string]*pendingRecord
	ttl     time.Duration
	now     func() time.Time
}

// NewPendingActions creates a registry with the given TTL.
// If ttl <= 0, DefaultPendingTTL is used.
func NewPendingActions(ttl time.Duration) *PendingActions {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	return &PendingActions{
		pending: make(map[string]*pendingRecord),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Register stores a pending action for later resolution.
// Re-registering an ID replaces the earlier entry.
func (pa *PendingActions) Register(id string, entry PendingEntry) {
	pa.mu.Lock()
	defer pa.mu.Unlock()
	pa.pending[id] = &pendingRecord{
		entry:     entry,
		createdAt: pa.now(),
	}
}

// Resolve removes and returns the entry for id. The bool return is false
// when the ID is unknown, already resolved, or past its TTL.
func (pa *PendingActions) Resolve(id string) (PendingEntry, bool) {
	pa.mu.Lock()
	defer pa.mu.Unlock()

	rec, ok := pa.pending[id]
	if !ok {
		return PendingEntry{}, false
	}
	delete(pa.pending, id)

	if pa.now().Sub(rec.createdAt) > pa.ttl {
		return PendingEntry{}, false
	}
	return rec.entry, true
}

// Remove cleans up a pending entry without resolving it.
func (pa *PendingActions) Remove(id string) {
	pa.mu.Lock()
	defer pa.mu.Unlock()
	delete(pa.pending, id)
}

// RemoveChat drops all pending entries for a chat and returns how many
// were dropped. Used when the chat resets or unlinks.
func (pa *PendingActions) RemoveChat(key ChatKey) int {
	pa.mu.Lock()
	defer pa.mu.Unlock()

	removed := 0
	for id, rec := range pa.pending {
		if rec.entry.Key == key {
			delete(pa.pending, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of unresolved entries.
func (pa *PendingActions) Len() int {
	pa.mu.Lock()
	defer pa.mu.Unlock()
	return len(pa.pending)
}

// Expire removes entries past their TTL and returns how many were dropped.
// Called by the lazy pruner; an expired entry's keyboard stays on screen
// until pressed, at which point the press answers with a notice.
func (pa *PendingActions) Expire() int {
	pa.mu.Lock()
	defer pa.mu.Unlock()

	now := pa.now()
	expired := 0
	for id, rec := range pa.pending {
		if now.Sub(rec.createdAt) > pa.ttl {
			delete(pa.pending, id)
			expired++
		}
	}
	return expired
}

// ParseCallback splits inline-keyboard callback data of the form
// "confirm:<id>" or "reject:<id>". ok is false for any other payload
// and for an empty id.
func ParseCallback(data string) (id string, approve bool, ok bool) {
	switch {
	case strings.HasPrefix(data, callbackConfirmPrefix):
		id = data[len(callbackConfirmPrefix):]
		approve = true
	case strings.HasPrefix(data, callbackRejectPrefix):
		id = data[len(callbackRejectPrefix):]
	default:
		return "", false, false
	}
	if id == "" {
		return "", false, false
	}
	return id, approve, true
}
