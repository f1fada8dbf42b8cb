package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// WebhookChecker re-asserts a channel's webhook registration. Implemented by
// the Telegram module; a no-op in polling mode.
type WebhookChecker interface {
	SelfCheckWebhook(ctx context.Context) error
}

// UpdateJournal is the dedupe-journal slice of the link store. Defined here
// to avoid a dependency on the account package.
type UpdateJournal interface {
	PruneUpdatesSeen(ctx context.Context, cutoff time.Time) (int, error)
}

// LanePruner triggers the dispatcher's idle chat-lane housekeeping.
type LanePruner interface {
	PruneSessions() int
}

// BucketPruner drops rate-limit buckets whose events have aged out.
type BucketPruner interface {
	Prune()
}

// HealthChecker probes the agent backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// WebhookSelfCheckJob periodically verifies that Telegram still delivers to
// the configured webhook URL and re-registers when the registration drifted
// (another deployment overwrote it, or Telegram dropped it).
type WebhookSelfCheckJob struct {
	Checker      WebhookChecker
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/5 * * * *"
}

// Compile-time interface check.
var _ Job = (*WebhookSelfCheckJob)(nil)

// Name implements Job.
func (j *WebhookSelfCheckJob) Name() string { return "webhook_self_check" }

// Schedule implements Job.
func (j *WebhookSelfCheckJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run re-asserts the webhook registration.
func (j *WebhookSelfCheckJob) Run(ctx context.Context) error {
	return j.Checker.SelfCheckWebhook(ctx)
}

// defaultJournalRetention keeps dedupe entries long past Telegram's own 24h
// redelivery horizon, so a pruned update ID can never legitimately reappear.
const defaultJournalRetention = 48 * time.Hour

// JournalPruneJob drops dedupe-journal entries older than Retention.
type JournalPruneJob struct {
	Journal      UpdateJournal
	Retention    time.Duration // zero = default 48h
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 * * * *"
}

// Compile-time interface check.
var _ Job = (*JournalPruneJob)(nil)

// Name implements Job.
func (j *JournalPruneJob) Name() string { return "journal_prune" }

// Schedule implements Job.
func (j *JournalPruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 * * * *"
}

// Run prunes journal entries recorded before the retention cutoff.
func (j *JournalPruneJob) Run(ctx context.Context) error {
	retention := j.Retention
	if retention <= 0 {
		retention = defaultJournalRetention
	}

	pruned, err := j.Journal.PruneUpdatesSeen(ctx, time.Now().Add(-retention))
	if err != nil {
		return err
	}
	if pruned > 0 {
		j.Logger.Info("cron: pruned dedupe journal", "count", pruned)
	}
	return nil
}

// LanePruneJob triggers the dispatcher's housekeeping pass over idle chat
// lanes and expired pending actions.
type LanePruneJob struct {
	Pruner       LanePruner
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/5 * * * *"
}

// Compile-time interface check.
var _ Job = (*LanePruneJob)(nil)

// Name implements Job.
func (j *LanePruneJob) Name() string { return "lane_prune" }

// Schedule implements Job.
func (j *LanePruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run prunes idle lanes.
func (j *LanePruneJob) Run(_ context.Context) error {
	if pruned := j.Pruner.PruneSessions(); pruned > 0 {
		j.Logger.Info("cron: pruned idle chat lanes", "count", pruned)
	}
	return nil
}

// LimiterPruneJob drops aged-out rate-limit buckets so a long-running bridge
// does not accumulate one bucket per chat it ever saw.
type LimiterPruneJob struct {
	Limiter      BucketPruner
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/10 * * * *"
}

// Compile-time interface check.
var _ Job = (*LimiterPruneJob)(nil)

// Name implements Job.
func (j *LimiterPruneJob) Name() string { return "limiter_prune" }

// Schedule implements Job.
func (j *LimiterPruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/10 * * * *"
}

// Run drops stale buckets.
func (j *LimiterPruneJob) Run(_ context.Context) error {
	j.Limiter.Prune()
	return nil
}

// defaultProbeTimeout caps a single backend probe.
const defaultProbeTimeout = 5 * time.Second

// BackendProbeJob probes the agent backend and logs availability
// transitions. A down backend is warned about once, not every tick, and
// recovery is logged so the gap is visible in the log stream.
type BackendProbeJob struct {
	Invoker      HealthChecker
	Timeout      time.Duration // zero = default 5s
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "* * * * *"

	mu      sync.Mutex
	probed  bool
	healthy bool
}

// Compile-time interface check.
var _ Job = (*BackendProbeJob)(nil)

// Name implements Job.
func (j *BackendProbeJob) Name() string { return "backend_probe" }

// Schedule implements Job.
func (j *BackendProbeJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "* * * * *"
}

// Run probes the backend. A failed probe is an availability transition, not
// a job error; it never bubbles up as a scheduler failure.
func (j *BackendProbeJob) Run(ctx context.Context) error {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	err := j.Invoker.HealthCheck(probeCtx)
	cancel()

	j.mu.Lock()
	defer j.mu.Unlock()

	healthy := err == nil
	switch {
	case !j.probed:
		if !healthy {
			j.Logger.Warn("cron: backend unreachable", "error", err)
		}
	case healthy && !j.healthy:
		j.Logger.Info("cron: backend recovered")
	case !healthy && j.healthy:
		j.Logger.Warn("cron: backend lost", "error", err)
	}
	j.probed = true
	j.healthy = healthy
	return nil
}

// Healthy reports the result of the most recent probe. False before the
// first probe completes.
func (j *BackendProbeJob) Healthy() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.probed && j.healthy
}
