// Package cron provides the maintenance scheduler for periodic background
// tasks: webhook self-checks, dedupe-journal pruning, idle-lane housekeeping,
// and backend availability probes.
package cron

import "context"

// Job defines a periodic background task.
type Job interface {
	// Name returns a unique identifier for this job (used for logging and dedup).
	Name() string

	// Schedule returns a 5-field cron expression (e.g., "*/5 * * * *").
	Schedule() string

	// Run executes the job. Implementations should check ctx.Done() for
	// graceful cancellation.
	Run(ctx context.Context) error
}
