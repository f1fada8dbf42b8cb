package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/telegate/telegate/internal/core"
)

// Validate checks the structural validity of a Config. It verifies the
// version field, requires at least one module entry, checks that all
// referenced module IDs exist in the registry, and applies per-section
// sanity checks. Registered modules absent from the config simply stay
// off; validation never forces them into the file.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	if cfg.Security != nil {
		errs = append(errs, validateRateLimits(cfg.Security.RateLimits)...)
	}
	if cfg.Scheduler != nil && cfg.Scheduler.Jitter < 0 {
		errs = append(errs, errors.New("config: scheduler jitter must be non-negative"))
	}
	if cfg.Dispatch != nil {
		errs = append(errs, validateDispatch(cfg.Dispatch)...)
	}

	return errors.Join(errs...)
}

func validateDispatch(d *DispatchConfig) []error {
	var errs []error

	if d.Workers < 0 {
		errs = append(errs, fmt.Errorf("config: dispatch workers must be non-negative, got %d", d.Workers))
	}
	switch d.MarkupMode {
	case "", "html", "markdownv2":
	default:
		errs = append(errs, fmt.Errorf("config: dispatch markup_mode must be \"html\" or \"markdownv2\", got %q", d.MarkupMode))
	}
	switch d.GroupPolicy {
	case "", "require_mention", "allow_all":
	default:
		errs = append(errs, fmt.Errorf("config: dispatch group_policy must be \"require_mention\" or \"allow_all\", got %q", d.GroupPolicy))
	}
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"turn_timeout", d.TurnTimeout},
		{"max_idle", d.MaxIdle},
		{"pending_ttl", d.PendingTTL},
	}
	for _, c := range durations {
		if c.value < 0 {
			errs = append(errs, fmt.Errorf("config: dispatch %s must be non-negative", c.name))
		}
	}
	return errs
}

func validateRateLimits(rl RateLimitsConfig) []error {
	var errs []error
	checks := []struct {
		name  string
		value int
	}{
		{"max_chats", rl.MaxChats},
		{"messages_per_min", rl.MessagesPerMin},
		{"callbacks_per_min", rl.CallbacksPerMin},
		{"notifies_per_min", rl.NotifiesPerMin},
		{"auth_per_min", rl.AuthPerMin},
	}
	for _, c := range checks {
		if c.value < 0 {
			errs = append(errs, fmt.Errorf("config: rate limit %s must be non-negative, got %d", c.name, c.value))
		}
	}
	return errs
}
