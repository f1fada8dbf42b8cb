// Package app assembles and runs the bridge: configuration, the security
// services, module loading, dispatch wiring, the maintenance scheduler, and
// the shutdown and reload loop.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/telegate/telegate/internal/config"
	"github.com/telegate/telegate/internal/core"
	"github.com/telegate/telegate/internal/reload"
	"github.com/telegate/telegate/internal/security"
	"github.com/telegate/telegate/internal/version"
)

// RunParams configures the main run loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// Empty means search the standard locations.
	ConfigPath string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level

	// Shutdown, when non-nil, stops the bridge when it closes or receives.
	// Service managers use this; signals work either way.
	Shutdown <-chan struct{}
}

// Run loads configuration, starts all modules, and blocks until a shutdown
// signal arrives. SIGHUP and config file edits trigger a live reload.
func Run(params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	// Security foundation before anything logs: every line after this point
	// passes through the redactor.
	credStore := security.NewCredentialStore()
	redactor := security.NewRedactor()

	innerHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: params.LogLevel,
	})
	logger := slog.New(security.NewRedactingHandler(innerHandler, redactor))

	auditLogger, closeAudit, err := buildAuditLogger(cfg, redactor)
	if err != nil {
		return err
	}
	defer closeAudit()

	rateLimiter := security.NewRateLimiter(rateLimitConfig(cfg))

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	logger.Info("telegate starting",
		"version", version.Version,
		"config", cfgPath,
		"data_dir", dataDir,
	)

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)

	// Shared services modules resolve during Provision and Start.
	appCtx.RegisterService("security.credentials", credStore)
	appCtx.RegisterService("security.redactor", redactor)
	appCtx.RegisterService("security.audit", auditLogger)
	appCtx.RegisterService("security.ratelimiter", rateLimiter)
	appCtx.RegisterService("config.path", cfgPath)

	application := core.NewApp(appCtx)
	ids := config.Resolve(cfg)
	if err := application.LoadModules(ids); err != nil {
		return err
	}

	// Wiring runs between LoadModules and Start: channels discovered,
	// inboxes set, dispatcher and scheduler appended to the lifecycle.
	wired, err := wireDispatch(application, appCtx, cfg, ids, logger, auditLogger, rateLimiter)
	if err != nil {
		return err
	}
	if err := wireScheduler(application, wired, cfg, rateLimiter, logger); err != nil {
		return err
	}

	// The reload handler must exist before Start so the gateway's admin
	// endpoint can resolve it.
	handler := reload.NewHandler(application, logger, dataDir, cfgPath)
	appCtx.RegisterService("reload.handler", handler)

	if err := application.Start(); err != nil {
		return err
	}

	// Modules registered their secrets during Provision and Start; mask
	// them in every log line from here on.
	redactor.SyncCredentials(credStore)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	watcher := reload.NewWatcher(reload.WatcherConfig{ConfigPath: cfgPath})
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	watcher.Start(watchCtx)
	defer watcher.Stop()

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Info("SIGHUP received, reloading configuration")
				if err := handler.ReloadNow(watchCtx); err != nil {
					logger.Error("reload failed", "error", err)
				}
				continue
			}
			logger.Info("shutdown signal received", "signal", sig.String())
			application.Stop()
			logger.Info("shutdown complete")
			return nil

		case <-params.Shutdown:
			logger.Info("shutdown requested")
			application.Stop()
			logger.Info("shutdown complete")
			return nil

		case evt := <-watcher.Events():
			logger.Info("config file changed, reloading", "path", evt.ConfigPath)
			if err := handler.ReloadNow(watchCtx); err != nil {
				logger.Error("reload failed", "error", err)
			}
		}
	}
}

// buildAuditLogger assembles the audit trail. When security.audit_log names
// a file, events append there as JSONL; without a destination the trail is
// off. The returned function closes the file sink.
func buildAuditLogger(cfg *config.Config, redactor *security.Redactor) (*security.AuditLogger, func(), error) {
	acfg := security.AuditLoggerConfig{Redactor: redactor}
	closeFn := func() {}

	if cfg.Security != nil && cfg.Security.AuditLog != "" {
		path := cfg.Security.AuditLog
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, nil, fmt.Errorf("creating audit log directory: %w", err)
			}
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening audit log %s: %w", path, err)
		}
		acfg.Writer = f
		closeFn = func() { _ = f.Close() }
	}

	return security.NewAuditLogger(acfg), closeFn, nil
}

// rateLimitConfig maps the config section onto the limiter's own struct.
// A missing section keeps every default.
func rateLimitConfig(cfg *config.Config) security.RateLimitConfig {
	if cfg.Security == nil {
		return security.RateLimitConfig{}
	}
	rl := cfg.Security.RateLimits
	return security.RateLimitConfig{
		MaxChats:        rl.MaxChats,
		MessagesPerMin:  rl.MessagesPerMin,
		CallbacksPerMin: rl.CallbacksPerMin,
		NotifiesPerMin:  rl.NotifiesPerMin,
		AuthPerMin:      rl.AuthPerMin,
	}
}

// ResolveConfigPath searches the standard locations for a config file.
// Order: $XDG_CONFIG_HOME/telegate/telegate.yaml, then
// ~/.config/telegate/telegate.yaml, then ./telegate.yaml.
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "telegate", "telegate.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "telegate", "telegate.yaml"))
	}

	candidates = append(candidates, "telegate.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the persistent data directory:
// $XDG_DATA_HOME/telegate when set, otherwise ~/.local/share/telegate.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "telegate")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "telegate")
}
