package core

import "strings"

// ModuleID uniquely identifies a module. IDs are namespaced with dots, for
// example "channel.telegram" or "store.sqlite"; the prefix before the first
// dot is the module's namespace.
type ModuleID string

// Namespace returns the part of the ID before the first dot. An ID without a
// dot is its own namespace.
func (id ModuleID) Namespace() string {
	s := string(id)
	if i := strings.Index(s, "."); i >= 0 {
		return s[:i]
	}
	return s
}

// Name returns the part of the ID after the first dot. An ID without a dot is
// its own name.
func (id ModuleID) Name() string {
	s := string(id)
	if i := strings.Index(s, "."); i >= 0 {
		return s[i+1:]
	}
	return s
}

// ModuleInfo describes a registered module: its ID and a constructor that
// returns a fresh, unconfigured instance.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}

// Module is the minimal contract every module satisfies. Everything else in
// the lifecycle (Configure, Provision, Validate, Start, Stop, Reload) is
// opt-in via the interfaces in lifecycle.go.
type Module interface {
	ModuleInfo() ModuleInfo
}
