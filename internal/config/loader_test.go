package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "telegate.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("TELEGATE_TEST_TOKEN", "tok-123")
	path := writeConfig(t, `
version: "1"
modules:
  channel.telegram:
    token: ${TELEGATE_TEST_TOKEN}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	node, ok := cfg.Modules["channel.telegram"]
	if !ok {
		t.Fatal("channel.telegram section missing")
	}
	var section struct {
		Token string `yaml:"token"`
	}
	if err := node.Decode(&section); err != nil {
		t.Fatalf("decode section: %v", err)
	}
	if section.Token != "tok-123" {
		t.Errorf("token = %q, want tok-123", section.Token)
	}
}

func TestLoad_DefaultValue(t *testing.T) {
	path := writeConfig(t, "version: \"${TELEGATE_TEST_UNSET_VAR:-1}\"\nmodules:\n  a.b: {}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Version != "1" {
		t.Errorf("version = %q, want the fallback value 1", cfg.Version)
	}
}

func TestLoad_UnresolvedVariables(t *testing.T) {
	path := writeConfig(t, `
version: "1"
modules:
  a.b:
    one: ${TELEGATE_MISSING_ONE}
    two: ${TELEGATE_MISSING_TWO}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unresolved variables")
	}
	// Both names are reported at once, not just the first hit.
	for _, name := range []string{"TELEGATE_MISSING_ONE", "TELEGATE_MISSING_TWO"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error should mention %s: %v", name, err)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeConfig(t, "version: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_SecurityAndScheduler(t *testing.T) {
	path := writeConfig(t, `
version: "1"
modules:
  gateway.http: {}
security:
  rate_limits:
    messages_per_min: 10
    auth_per_min: 5
  audit_log: /var/log/telegate/audit.jsonl
scheduler:
  jitter: 30s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Security == nil {
		t.Fatal("security section missing")
	}
	if cfg.Security.RateLimits.MessagesPerMin != 10 {
		t.Errorf("messages_per_min = %d, want 10", cfg.Security.RateLimits.MessagesPerMin)
	}
	if cfg.Security.RateLimits.AuthPerMin != 5 {
		t.Errorf("auth_per_min = %d, want 5", cfg.Security.RateLimits.AuthPerMin)
	}
	if cfg.Security.AuditLog != "/var/log/telegate/audit.jsonl" {
		t.Errorf("audit_log = %q", cfg.Security.AuditLog)
	}
	if cfg.Scheduler == nil || cfg.Scheduler.Jitter != 30*time.Second {
		t.Errorf("scheduler = %+v, want 30s jitter", cfg.Scheduler)
	}
}
