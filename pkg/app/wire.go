package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/telegate/telegate/internal/account"
	"github.com/telegate/telegate/internal/agent"
	"github.com/telegate/telegate/internal/channel"
	"github.com/telegate/telegate/internal/config"
	"github.com/telegate/telegate/internal/core"
	"github.com/telegate/telegate/internal/cron"
	"github.com/telegate/telegate/internal/dispatch"
	"github.com/telegate/telegate/internal/hook"
	"github.com/telegate/telegate/internal/security"
	"github.com/telegate/telegate/pkg/markup"
)

// dispatchModule adapts the update dispatcher to the module lifecycle so it
// starts with the app and drains on shutdown.
type dispatchModule struct {
	dispatcher *dispatch.Dispatcher
}

func (m *dispatchModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "dispatch"}
}

func (m *dispatchModule) Start() error {
	m.dispatcher.Start(context.Background())
	return nil
}

func (m *dispatchModule) Stop(ctx context.Context) error {
	m.dispatcher.Stop(ctx)
	return nil
}

// schedulerModule adapts the maintenance scheduler to the module lifecycle.
type schedulerModule struct {
	scheduler *cron.Scheduler
}

func (m *schedulerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "cron"}
}

func (m *schedulerModule) Start() error {
	return m.scheduler.Start()
}

func (m *schedulerModule) Stop(ctx context.Context) error {
	return m.scheduler.Stop(ctx)
}

// wiring carries the pieces wireDispatch discovered or built, for the
// scheduler wiring that follows.
type wiring struct {
	channels   []channel.Channel
	dispatcher *dispatch.Dispatcher
	links      account.LinkStore
	invoker    agent.Invoker
}

// wireDispatch connects the loaded modules into a running pipeline: channels
// discovered from the module list, the outbound dispatcher registered as
// service "channel.dispatcher", the update dispatcher built over the link
// store and the agent invoker, and every channel's inbox pointed at Submit.
// Must run after LoadModules and before Start.
func wireDispatch(
	app *core.App,
	appCtx *core.AppContext,
	cfg *config.Config,
	ids []string,
	logger *slog.Logger,
	auditLogger *security.AuditLogger,
	rateLimiter *security.RateLimiter,
) (*wiring, error) {
	outbound := channel.NewDispatcher()
	var channels []channel.Channel

	for _, id := range ids {
		mod, ok := app.Module(id)
		if !ok {
			continue
		}
		ch, ok := mod.(channel.Channel)
		if !ok {
			continue
		}
		if err := outbound.Register(ch); err != nil {
			return nil, fmt.Errorf("wire: registering channel %s: %w", id, err)
		}
		channels = append(channels, ch)
		logger.Info("wire: channel registered", "channel", ch.Name(), "module", id)
	}

	// The outbound dispatcher is a service even with no channels: the
	// notify endpoint and the MCP tools resolve it and fail per send.
	appCtx.RegisterService("channel.dispatcher", outbound)

	if len(channels) == 0 {
		logger.Info("wire: no channel modules loaded, dispatch not built")
		return &wiring{}, nil
	}

	w := &wiring{channels: channels}
	if svc, ok := appCtx.Service("store.links"); ok {
		w.links, _ = svc.(account.LinkStore)
	}
	if svc, ok := appCtx.Service("agent.invoker"); ok {
		w.invoker, _ = svc.(agent.Invoker)
	}
	if w.links == nil {
		return nil, errors.New("wire: no link store loaded (add store.sqlite to modules)")
	}
	if w.invoker == nil {
		return nil, errors.New("wire: no agent backend loaded (add agent.backend to modules)")
	}

	hooks := hook.NewPipeline()
	hooks.Register(hook.NewAuditHook(auditLogger))

	// The gateway registers its Prometheus recorder during Provision; with
	// the gateway absent dispatch simply records nothing.
	var metrics dispatch.Metrics
	if svc, ok := appCtx.Service("gateway.metrics"); ok {
		metrics, _ = svc.(dispatch.Metrics)
	}

	dcfg := dispatchSettings(cfg.Dispatch)
	dcfg.Invoker = w.invoker
	dcfg.Links = w.links
	dcfg.Sender = outbound
	dcfg.Channels = outbound
	dcfg.HookPipeline = hooks
	dcfg.RateLimiter = rateLimiter
	dcfg.AuditLogger = auditLogger
	dcfg.Metrics = metrics
	dcfg.Logger = logger

	d, err := dispatch.NewDispatcher(dcfg)
	if err != nil {
		return nil, fmt.Errorf("wire: creating dispatcher: %w", err)
	}
	w.dispatcher = d

	for _, ch := range channels {
		ch.SetInbox(d.Submit)
	}

	app.AppendModule("dispatch", &dispatchModule{dispatcher: d})
	logger.Info("wire: dispatch ready", "channels", len(channels))
	return w, nil
}

// dispatchSettings maps the optional config section onto dispatcher knobs.
// Dependencies are filled in by the caller.
func dispatchSettings(section *config.DispatchConfig) dispatch.Config {
	var cfg dispatch.Config
	// Live drafts are on unless the config turns them off.
	cfg.Streaming = true
	if section == nil {
		return cfg
	}

	cfg.WorkerCount = section.Workers
	if section.Streaming != nil {
		cfg.Streaming = *section.Streaming
	}
	switch section.MarkupMode {
	case "markdownv2":
		cfg.MarkupMode = markup.ModeMarkdownV2
	case "html":
		cfg.MarkupMode = markup.ModeHTML
	}
	if section.GroupPolicy != "" {
		cfg.GroupPolicy = dispatch.GroupPolicy{Mode: dispatch.GroupPolicyMode(section.GroupPolicy)}
	}
	cfg.TurnTimeout = section.TurnTimeout
	cfg.MaxIdle = section.MaxIdle
	cfg.PendingTTL = section.PendingTTL
	return cfg
}

// wireScheduler builds the maintenance scheduler over the wired pieces and
// appends it to the lifecycle. Without dispatch wiring there is nothing to
// maintain.
func wireScheduler(
	app *core.App,
	w *wiring,
	cfg *config.Config,
	rateLimiter *security.RateLimiter,
	logger *slog.Logger,
) error {
	if w.dispatcher == nil {
		return nil
	}

	sched := cron.NewScheduler(logger)
	if cfg.Scheduler != nil {
		sched.SetJitter(cfg.Scheduler.Jitter)
	}

	jobs := []cron.Job{
		&cron.JournalPruneJob{Journal: w.links, Logger: logger},
		&cron.LanePruneJob{Pruner: w.dispatcher, Logger: logger},
		&cron.LimiterPruneJob{Limiter: rateLimiter, Logger: logger},
		&cron.BackendProbeJob{Invoker: w.invoker, Logger: logger},
	}
	// The Telegram channel re-asserts its webhook registration; in polling
	// mode the check is a no-op.
	for _, ch := range w.channels {
		if checker, ok := ch.(cron.WebhookChecker); ok {
			jobs = append(jobs, &cron.WebhookSelfCheckJob{Checker: checker, Logger: logger})
		}
	}

	for _, j := range jobs {
		if err := sched.RegisterJob(j); err != nil {
			return fmt.Errorf("wire: registering job %s: %w", j.Name(), err)
		}
	}

	app.AppendModule("cron", &schedulerModule{scheduler: sched})
	logger.Info("wire: maintenance scheduler ready", "jobs", len(jobs))
	return nil
}
