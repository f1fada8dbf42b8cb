// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for telegate.
package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "channel.telegram").
	// Registered modules absent from this map are not loaded.
	Modules map[string]yaml.Node `yaml:"modules"`

	// Security holds optional overrides for the ambient security services.
	Security *SecurityConfig `yaml:"security,omitempty"`

	// Scheduler holds optional maintenance scheduler settings.
	Scheduler *SchedulerConfig `yaml:"scheduler,omitempty"`

	// Dispatch tunes the update dispatcher wired between channels and the
	// agent backend.
	Dispatch *DispatchConfig `yaml:"dispatch,omitempty"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// RateLimits overrides the default sliding-window limits.
	RateLimits RateLimitsConfig `yaml:"rate_limits"`

	// AuditLog is the JSONL audit trail destination. Empty keeps audit
	// events out of the filesystem.
	AuditLog string `yaml:"audit_log,omitempty"`
}

// RateLimitsConfig overrides the default per-kind rate limits. Zero values
// keep the built-in defaults.
type RateLimitsConfig struct {
	// MaxChats caps concurrently tracked chats.
	MaxChats int `yaml:"max_chats"`

	// MessagesPerMin limits inbound messages per chat.
	MessagesPerMin int `yaml:"messages_per_min"`

	// CallbacksPerMin limits callback taps per chat.
	CallbacksPerMin int `yaml:"callbacks_per_min"`

	// NotifiesPerMin limits admin notify calls globally.
	NotifiesPerMin int `yaml:"notifies_per_min"`

	// AuthPerMin limits admin auth attempts per remote host.
	AuthPerMin int `yaml:"auth_per_min"`
}

// SchedulerConfig holds maintenance scheduler settings.
type SchedulerConfig struct {
	// Jitter delays every job run by a random duration up to this value,
	// so bridges sharing a schedule do not fire in lockstep.
	Jitter time.Duration `yaml:"jitter"`
}

// DispatchConfig tunes the update dispatcher. Zero values keep the built-in
// defaults.
type DispatchConfig struct {
	// Workers is the dispatch worker pool size.
	Workers int `yaml:"workers"`

	// Streaming enables live draft edits while the agent responds.
	// Absent means enabled.
	Streaming *bool `yaml:"streaming,omitempty"`

	// MarkupMode selects the dialect for confirmation prompts and step
	// notices: "html" or "markdownv2". Defaults to "html".
	MarkupMode string `yaml:"markup_mode,omitempty"`

	// GroupPolicy controls group chats: "require_mention" (default) or
	// "allow_all".
	GroupPolicy string `yaml:"group_policy,omitempty"`

	// TurnTimeout bounds one agent turn end to end.
	TurnTimeout time.Duration `yaml:"turn_timeout,omitempty"`

	// MaxIdle is how long an inactive chat session is kept before pruning.
	MaxIdle time.Duration `yaml:"max_idle,omitempty"`

	// PendingTTL is how long a confirmation keyboard stays answerable.
	PendingTTL time.Duration `yaml:"pending_ttl,omitempty"`
}
