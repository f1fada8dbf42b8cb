package security

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_AllowWithinLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{MessagesPerMin: 5})

	for i := range 5 {
		if err := rl.Allow("message", "chat-1"); err != nil {
			t.Fatalf("Allow(%d) returned error: %v", i, err)
		}
	}

	// 6th should be denied.
	if err := rl.Allow("message", "chat-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{MessagesPerMin: 2})

	_ = rl.Allow("message", "chat-1")
	_ = rl.Allow("message", "chat-1")

	// chat-1 is exhausted; chat-2 must still pass.
	if err := rl.Allow("message", "chat-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected chat-1 to be limited")
	}
	if err := rl.Allow("message", "chat-2"); err != nil {
		t.Fatalf("expected chat-2 to be allowed, got %v", err)
	}
}

func TestRateLimiter_KindsAreIndependent(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{MessagesPerMin: 1, CallbacksPerMin: 1})

	_ = rl.Allow("message", "chat-1")
	if err := rl.Allow("message", "chat-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected message kind to be limited")
	}
	if err := rl.Allow("callback", "chat-1"); err != nil {
		t.Fatalf("expected callback kind to be allowed, got %v", err)
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{MessagesPerMin: 2})
	rl.now = func() time.Time { return now }

	// Fill the bucket.
	_ = rl.Allow("message", "chat-1")
	_ = rl.Allow("message", "chat-1")

	// Should be denied.
	if err := rl.Allow("message", "chat-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected rate limit")
	}

	// Advance past the window.
	now = now.Add(61 * time.Second)

	// Should be allowed again.
	if err := rl.Allow("message", "chat-1"); err != nil {
		t.Fatalf("expected allow after window, got %v", err)
	}
}

func TestRateLimiter_UnknownKind(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})

	// Unknown kind should always be allowed.
	if err := rl.Allow("unknown_kind", "chat-1"); err != nil {
		t.Fatalf("expected nil for unknown kind, got %v", err)
	}
}

func TestRateLimiter_NotifyBucket(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{NotifiesPerMin: 3})

	for range 3 {
		if err := rl.Allow("notify", ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if err := rl.Allow("notify", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected rate limit for notify")
	}
}

func TestRateLimiter_MaxChats(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{MaxChats: 42})
	if rl.MaxChats() != 42 {
		t.Fatalf("MaxChats() = %d, want 42", rl.MaxChats())
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})

	if rl.maxChats != 1000 {
		t.Errorf("default MaxChats = %d, want 1000", rl.maxChats)
	}
	if rl.limits["message"].max != 30 {
		t.Errorf("default MessagesPerMin = %d, want 30", rl.limits["message"].max)
	}
	if rl.limits["callback"].max != 60 {
		t.Errorf("default CallbacksPerMin = %d, want 60", rl.limits["callback"].max)
	}
}

func TestRateLimiter_Prune(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{MessagesPerMin: 5})
	rl.now = func() time.Time { return now }

	_ = rl.Allow("message", "chat-1")
	_ = rl.Allow("message", "chat-2")

	if len(rl.buckets) != 2 {
		t.Fatalf("got %d buckets, want 2", len(rl.buckets))
	}

	// Within the window nothing is pruned.
	rl.Prune()
	if len(rl.buckets) != 2 {
		t.Fatalf("got %d buckets after early prune, want 2", len(rl.buckets))
	}

	// After the window both buckets are empty and dropped.
	now = now.Add(2 * time.Minute)
	rl.Prune()
	if len(rl.buckets) != 0 {
		t.Fatalf("got %d buckets after prune, want 0", len(rl.buckets))
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{MessagesPerMin: 1000})

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = rl.Allow("message", "chat-1")
			_ = rl.Allow("callback", "chat-2")
			if i%10 == 0 {
				rl.Prune()
			}
		}(i)
	}
	wg.Wait()
}
