package reload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/telegate/telegate/internal/config"
	"github.com/telegate/telegate/internal/core"
)

// Handler applies configuration changes to a running bridge. It is bound to
// the config file it was started from; the run loop calls it on SIGHUP and on
// watcher events, and the gateway's admin API reaches it through the
// "reload.handler" service.
type Handler struct {
	app     *core.App
	logger  *slog.Logger
	dataDir string
	path    string
}

// NewHandler creates a handler that reloads the config file at path.
func NewHandler(app *core.App, logger *slog.Logger, dataDir, path string) *Handler {
	return &Handler{
		app:     app,
		logger:  logger,
		dataDir: dataDir,
		path:    path,
	}
}

// ReloadNow re-reads the config file, validates it, and calls Reload on every
// loaded module that implements core.Reloader. A file that fails to load or
// validate leaves the running bridge untouched.
func (h *Handler) ReloadNow(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reload aborted: %w", err)
	}

	cfg, err := config.Load(h.path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	appCtx := core.NewAppContext(h.logger, h.dataDir).WithModuleConfigs(cfg.Modules)
	if err := h.app.ReloadModules(appCtx); err != nil {
		return fmt.Errorf("reloading modules: %w", err)
	}

	h.logger.Info("configuration reloaded", "path", h.path)
	return nil
}
