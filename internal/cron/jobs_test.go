package cron

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestJobDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		job      Job
		name     string
		schedule string
	}{
		{&WebhookSelfCheckJob{}, "webhook_self_check", "*/5 * * * *"},
		{&JournalPruneJob{}, "journal_prune", "0 * * * *"},
		{&LanePruneJob{}, "lane_prune", "*/5 * * * *"},
		{&LimiterPruneJob{}, "limiter_prune", "*/10 * * * *"},
		{&BackendProbeJob{}, "backend_probe", "* * * * *"},
	}

	for _, tt := range tests {
		if got := tt.job.Name(); got != tt.name {
			t.Errorf("Name() = %q, want %q", got, tt.name)
		}
		if got := tt.job.Schedule(); got != tt.schedule {
			t.Errorf("%s: Schedule() = %q, want %q", tt.name, got, tt.schedule)
		}
	}
}

func TestJobScheduleOverride(t *testing.T) {
	t.Parallel()

	j := &JournalPruneJob{ScheduleExpr: "30 3 * * *"}
	if got := j.Schedule(); got != "30 3 * * *" {
		t.Errorf("Schedule() = %q, want the override", got)
	}
}

// fakeChecker implements WebhookChecker.
type fakeChecker struct {
	calls atomic.Int32
	err   error
}

func (f *fakeChecker) SelfCheckWebhook(context.Context) error {
	f.calls.Add(1)
	return f.err
}

func TestWebhookSelfCheckJob_Run(t *testing.T) {
	t.Parallel()

	checker := &fakeChecker{}
	j := &WebhookSelfCheckJob{Checker: checker, Logger: slog.Default()}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if checker.calls.Load() != 1 {
		t.Errorf("checker calls = %d, want 1", checker.calls.Load())
	}
}

func TestWebhookSelfCheckJob_PropagatesError(t *testing.T) {
	t.Parallel()

	checker := &fakeChecker{err: errors.New("api down")}
	j := &WebhookSelfCheckJob{Checker: checker, Logger: slog.Default()}

	if err := j.Run(context.Background()); err == nil {
		t.Fatal("expected the checker error to propagate")
	}
}

// fakeJournal implements UpdateJournal and records cutoffs.
type fakeJournal struct {
	mu      sync.Mutex
	cutoffs []time.Time
	pruned  int
	err     error
}

func (f *fakeJournal) PruneUpdatesSeen(_ context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	f.cutoffs = append(f.cutoffs, cutoff)
	f.mu.Unlock()
	return f.pruned, f.err
}

func TestJournalPruneJob_DefaultRetention(t *testing.T) {
	t.Parallel()

	journal := &fakeJournal{pruned: 5}
	j := &JournalPruneJob{Journal: journal, Logger: slog.Default()}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	journal.mu.Lock()
	defer journal.mu.Unlock()
	if len(journal.cutoffs) != 1 {
		t.Fatalf("prune calls = %d, want 1", len(journal.cutoffs))
	}

	want := time.Now().Add(-defaultJournalRetention)
	if diff := journal.cutoffs[0].Sub(want).Abs(); diff > time.Minute {
		t.Errorf("cutoff = %v, want about 48h ago", journal.cutoffs[0])
	}
}

func TestJournalPruneJob_CustomRetention(t *testing.T) {
	t.Parallel()

	journal := &fakeJournal{}
	j := &JournalPruneJob{
		Journal:   journal,
		Retention: time.Hour,
		Logger:    slog.Default(),
	}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	journal.mu.Lock()
	defer journal.mu.Unlock()
	want := time.Now().Add(-time.Hour)
	if diff := journal.cutoffs[0].Sub(want).Abs(); diff > time.Minute {
		t.Errorf("cutoff = %v, want about 1h ago", journal.cutoffs[0])
	}
}

func TestJournalPruneJob_PropagatesError(t *testing.T) {
	t.Parallel()

	journal := &fakeJournal{err: errors.New("store closed")}
	j := &JournalPruneJob{Journal: journal, Logger: slog.Default()}

	if err := j.Run(context.Background()); err == nil {
		t.Fatal("expected the store error to propagate")
	}
}

// fakeLanePruner implements LanePruner.
type fakeLanePruner struct {
	calls atomic.Int32
	n     int
}

func (f *fakeLanePruner) PruneSessions() int {
	f.calls.Add(1)
	return f.n
}

func TestLanePruneJob_Run(t *testing.T) {
	t.Parallel()

	pruner := &fakeLanePruner{n: 3}
	j := &LanePruneJob{Pruner: pruner, Logger: slog.Default()}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pruner.calls.Load() != 1 {
		t.Errorf("pruner calls = %d, want 1", pruner.calls.Load())
	}
}

// fakeBuckets implements BucketPruner.
type fakeBuckets struct {
	calls atomic.Int32
}

func (f *fakeBuckets) Prune() { f.calls.Add(1) }

func TestLimiterPruneJob_Run(t *testing.T) {
	t.Parallel()

	limiter := &fakeBuckets{}
	j := &LimiterPruneJob{Limiter: limiter, Logger: slog.Default()}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limiter.calls.Load() != 1 {
		t.Errorf("limiter calls = %d, want 1", limiter.calls.Load())
	}
}

// fakeHealth implements HealthChecker with a settable verdict.
type fakeHealth struct {
	mu  sync.Mutex
	err error
}

func (f *fakeHealth) set(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeHealth) HealthCheck(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func TestBackendProbeJob_Transitions(t *testing.T) {
	t.Parallel()

	health := &fakeHealth{err: errors.New("refused")}
	j := &BackendProbeJob{Invoker: health, Logger: slog.Default()}

	if j.Healthy() {
		t.Error("Healthy() should be false before the first probe")
	}

	// An unreachable backend is a transition to log, never a job failure.
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.Healthy() {
		t.Error("Healthy() = true after failed probe")
	}

	health.set(nil)
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !j.Healthy() {
		t.Error("Healthy() = false after successful probe")
	}

	health.set(errors.New("refused"))
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.Healthy() {
		t.Error("Healthy() = true after backend lost")
	}
}
