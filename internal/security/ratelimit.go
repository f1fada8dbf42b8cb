package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitConfig holds configurable rate limits. Message and callback
// limits apply per chat, auth attempts per remote host, and notify limits
// apply globally to the admin API.
type RateLimitConfig struct {
	MaxChats        int `yaml:"max_chats"`
	MessagesPerMin  int `yaml:"messages_per_min"`
	CallbacksPerMin int `yaml:"callbacks_per_min"`
	NotifiesPerMin  int `yaml:"notifies_per_min"`
	AuthPerMin      int `yaml:"auth_per_min"`
}

// rateLimitConfigDefaults returns a config with sensible defaults.
func rateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		MaxChats:        1000,
		MessagesPerMin:  30,
		CallbacksPerMin: 60,
		NotifiesPerMin:  120,
		AuthPerMin:      30,
	}
}

type limit struct {
	window time.Duration
	max    int
}

type bucket struct {
	limit  limit
	events []time.Time
}

// RateLimiter implements sliding-window rate limiting with one bucket per
// (kind, key) pair. Each bucket tracks timestamps of recent events within
// its window; stale buckets are dropped by Prune.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	limits   map[string]limit
	maxChats int
	now      func() time.Time
}

// NewRateLimiter creates a rate limiter with the given config.
// Zero-value fields in cfg are replaced with defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := rateLimitConfigDefaults()
	if cfg.MaxChats <= 0 {
		cfg.MaxChats = defaults.MaxChats
	}
	if cfg.MessagesPerMin <= 0 {
		cfg.MessagesPerMin = defaults.MessagesPerMin
	}
	if cfg.CallbacksPerMin <= 0 {
		cfg.CallbacksPerMin = defaults.CallbacksPerMin
	}
	if cfg.NotifiesPerMin <= 0 {
		cfg.NotifiesPerMin = defaults.NotifiesPerMin
	}
	if cfg.AuthPerMin <= 0 {
		cfg.AuthPerMin = defaults.AuthPerMin
	}

	return &RateLimiter{
		buckets:  make(map[string]*bucket),
		maxChats: cfg.MaxChats,
		now:      time.Now,
		limits: map[string]limit{
			"message":  {window: time.Minute, max: cfg.MessagesPerMin},
			"callback": {window: time.Minute, max: cfg.CallbacksPerMin},
			"notify":   {window: time.Minute, max: cfg.NotifiesPerMin},
			"auth":     {window: time.Minute, max: cfg.AuthPerMin},
		},
	}
}

// Allow checks whether an event of the given kind is allowed for key and
// records it when so. key is typically a chat ID or remote host; global
// kinds pass "". Returns nil if allowed, ErrRateLimited if the limit is
// exceeded. kind must be one of: "message", "callback", "notify", "auth".
func (rl *RateLimiter) Allow(kind, key string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	lim, ok := rl.limits[kind]
	if !ok {
		// Unknown kind = no limit configured.
		return nil
	}

	id := kind + "\x00" + key
	b, ok := rl.buckets[id]
	if !ok {
		b = &bucket{limit: lim}
		rl.buckets[id] = b
	}

	now := rl.now()
	b.evict(now)

	if len(b.events) >= b.limit.max {
		return ErrRateLimited
	}

	b.events = append(b.events, now)
	return nil
}

// MaxChats returns the configured maximum number of concurrently tracked chats.
func (rl *RateLimiter) MaxChats() int {
	return rl.maxChats
}

// Prune drops buckets whose events have all aged out of their window.
// Intended to run periodically from the maintenance scheduler.
func (rl *RateLimiter) Prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for id, b := range rl.buckets {
		b.evict(now)
		if len(b.events) == 0 {
			delete(rl.buckets, id)
		}
	}
}

// evict removes events outside the sliding window.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.limit.window)
	// Events are chronologically ordered; find the first one still inside.
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
