package config

import (
	"slices"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestResolve_SortedIDs(t *testing.T) {
	cfg := &Config{
		Version: "1",
		Modules: map[string]yaml.Node{
			"store.sqlite":     {},
			"agent.backend":    {},
			"channel.telegram": {},
			"gateway.http":     {},
		},
	}

	got := Resolve(cfg)
	want := []string{"agent.backend", "channel.telegram", "gateway.http", "store.sqlite"}
	if !slices.Equal(got, want) {
		t.Errorf("Resolve = %v, want %v", got, want)
	}
}

func TestResolve_Empty(t *testing.T) {
	if got := Resolve(&Config{}); len(got) != 0 {
		t.Errorf("Resolve = %v, want empty", got)
	}
}
