package dispatch

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/telegate/telegate/internal/account"
	"github.com/telegate/telegate/internal/agent"
	"github.com/telegate/telegate/internal/hook"
	"github.com/telegate/telegate/internal/security"
	"github.com/telegate/telegate/pkg/markup"
	"github.com/telegate/telegate/pkg/message"
)

const (
	defaultInboxSize   = 256
	defaultMaxIdle     = 30 * time.Minute
	defaultTurnTimeout = 5 * time.Minute
)

// Metrics records dispatcher observations. Implemented by the gateway's
// Prometheus registry; nil disables recording.
type Metrics interface {
	// UpdateReceived counts one inbound update by channel and kind.
	UpdateReceived(channel, kind string)
	// ObserveDispatch records the wall time of one pipeline execution.
	ObserveDispatch(d time.Duration)
	// AgentEvent counts one agent stream event by type.
	AgentEvent(eventType string)
	// SetPendingActions sets the current number of unresolved confirmations.
	SetPendingActions(n int)
}

// Config holds the configuration for a Dispatcher.
type Config struct {
	WorkerCount int
	InboxSize   int
	MaxIdle     time.Duration
	PendingTTL  time.Duration

	// TurnTimeout bounds one agent turn end to end, including streamed
	// events. A chat's lane is held for the duration of its turn, so this
	// also caps how long a misbehaving backend can block a chat.
	TurnTimeout time.Duration

	GroupPolicy GroupPolicy
	Invoker     agent.Invoker
	Links       account.LinkStore
	Sender      ResponseSender
	Logger      *slog.Logger

	// Channels resolves channels by name for typing indicators, callback
	// answers, and streaming. Nil disables those paths.
	Channels ChannelLookup

	// MarkupMode selects the dialect confirmation prompts and step notices
	// are rendered in. Defaults to HTML.
	MarkupMode markup.Mode

	// Streaming enables live draft edits on channels that support them.
	Streaming bool

	// HookPipeline runs hooks at update_received, before_send, and
	// after_send. Nil means no hooks.
	HookPipeline *hook.Pipeline

	// RateLimiter, if non-nil, enforces per-chat message and callback rates.
	RateLimiter *security.RateLimiter

	// AuditLogger, if non-nil, records link, unlink, and confirmation
	// verdict events. Turn audit attaches through the hook pipeline.
	AuditLogger *security.AuditLogger

	// Metrics, if non-nil, records dispatch counters and durations.
	Metrics Metrics

	// MaxMessageSize is the maximum allowed raw update size in bytes.
	// Zero means use the default (1 MiB).
	MaxMessageSize int
}

// withDefaults returns a copy of the config with zero values replaced by defaults.
func (c Config) withDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = DefaultWorkerCount
	}
	if c.InboxSize <= 0 {
		c.InboxSize = defaultInboxSize
	}
	if c.MaxIdle <= 0 {
		c.MaxIdle = defaultMaxIdle
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = defaultTurnTimeout
	}
	if c.MarkupMode == markup.ModeNone {
		c.MarkupMode = markup.ModeHTML
	}
	if c.GroupPolicy.Mode == "" {
		c.GroupPolicy.Mode = GroupPolicyRequireMention
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Dispatcher is the central routing layer. It dedupes and validates
// incoming updates, serializes turns per chat, runs the agent pipeline,
// and sends replies back via the correct channel.
type Dispatcher struct {
	config   Config
	inbox    chan envelope
	inboxMu  sync.RWMutex
	store    SessionStore
	laneLock *LaneLock
	pool     *WorkerPool
	pipeline *Pipeline
	pending  *PendingActions
	pruner   *lazyPruner
	cancel   context.CancelFunc
	stopOnce sync.Once
	logger   *slog.Logger
	stopped  atomic.Bool
}

// NewDispatcher creates a new Dispatcher with the given configuration.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	cfg = cfg.withDefaults()

	if cfg.Invoker == nil {
		return nil, ErrNoInvoker
	}
	if cfg.Sender == nil {
		return nil, ErrNoSender
	}
	if cfg.Links == nil {
		return nil, ErrNoLinkStore
	}

	store := NewInMemorySessionStore()
	if cfg.RateLimiter != nil {
		store.SetMaxSessions(cfg.RateLimiter.MaxChats())
	}
	laneLock := NewLaneLock()
	pending := NewPendingActions(cfg.PendingTTL)
	pruner := newLazyPruner(store, laneLock, cfg.MaxIdle)
	pruner.pending = pending
	pruner.limiter = cfg.RateLimiter

	pipeline := NewPipeline(PipelineConfig{
		Store:        store,
		LaneLock:     laneLock,
		GroupPolicy:  cfg.GroupPolicy,
		Pending:      pending,
		Invoker:      cfg.Invoker,
		Links:        cfg.Links,
		Sender:       cfg.Sender,
		Channels:     cfg.Channels,
		MarkupMode:   cfg.MarkupMode,
		Streaming:    cfg.Streaming,
		TurnTimeout:  cfg.TurnTimeout,
		Pruner:       pruner,
		HookPipeline: cfg.HookPipeline,
		AuditLogger:  cfg.AuditLogger,
		Metrics:      cfg.Metrics,
		Logger:       cfg.Logger,
	})

	return &Dispatcher{
		config:   cfg,
		inbox:    make(chan envelope, cfg.InboxSize),
		store:    store,
		laneLock: laneLock,
		pool:     NewWorkerPool(cfg.WorkerCount),
		pipeline: pipeline,
		pending:  pending,
		pruner:   pruner,
		logger:   cfg.Logger,
	}, nil
}

// Start launches the worker pool and begins processing updates.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.inboxMu.Lock()
	if d.stopped.Load() {
		d.inboxMu.Unlock()
		cancel()
		d.logger.Warn("dispatch: start ignored, dispatcher already stopped")
		return
	}
	d.cancel = cancel
	d.inboxMu.Unlock()

	d.pool.Start(ctx, d.inbox, func(ctx context.Context, env envelope) {
		d.pipeline.Execute(ctx, env)
	})
	d.logger.Info("dispatch: started", "workers", d.config.WorkerCount, "inbox_size", d.config.InboxSize)
}

// Submit enqueues an inbound update for processing. Duplicates are dropped,
// the raw payload is validated, and the per-chat rate limiter is applied.
// Matched confirm/reject callbacks resolve the pending-action registry
// here, before the update enters a lane. If the inbox is full, the update
// is dropped with a warning log.
func (d *Dispatcher) Submit(msg message.InboundMessage) error {
	d.inboxMu.RLock()
	defer d.inboxMu.RUnlock()

	if d.stopped.Load() {
		return ErrStopped
	}

	// Dedupe: transports redeliver updates after timeouts and restarts.
	if id, ok := updateID(msg); ok {
		first, err := d.config.Links.MarkUpdateSeen(context.Background(), id)
		if err != nil {
			d.logger.Warn("dispatch: dedupe journal unavailable",
				"error", err,
				"update_id", id,
			)
		} else if !first {
			d.logger.Debug("dispatch: duplicate update dropped", "update_id", id)
			return ErrDuplicateUpdate
		}
	}

	// Validate update size and JSON depth at the system boundary.
	if len(msg.Raw) > 0 {
		if err := security.ValidateMessageSize(msg.Raw, d.config.MaxMessageSize); err != nil {
			d.logger.Warn("dispatch: update too large, rejected",
				"size", len(msg.Raw),
				"channel", msg.Channel,
			)
			return err
		}
		if err := security.ValidateJSONDepth(msg.Raw, 0); err != nil {
			d.logger.Warn("dispatch: update JSON too deep, rejected",
				"channel", msg.Channel,
			)
			return err
		}
	}

	// Rate limit per chat; keyboard presses get their own budget.
	if d.config.RateLimiter != nil {
		kind := "message"
		if msg.IsCallback() {
			kind = "callback"
		}
		if err := d.config.RateLimiter.Allow(kind, msg.Chat.ID); err != nil {
			d.logger.Warn("dispatch: rate limited",
				"kind", kind,
				"channel", msg.Channel,
				"chat_id", msg.Chat.ID,
			)
			return err
		}
	}

	key := ChatKeyFromMessage(msg)
	env := envelope{Update: msg, Key: key}

	// Confirmation short-circuit: pop the pending entry now so a double
	// press loses deterministically. The resume turn itself still runs on
	// a worker inside the chat lane.
	if msg.IsCallback() {
		if id, approve, ok := ParseCallback(msg.Callback.Data); ok {
			if entry, found := d.pending.Resolve(id); found {
				env.Resolved = &ResolvedAction{Entry: entry, Approve: approve}
				d.logger.Info("dispatch: pending action resolved",
					"action_id", id,
					"approve", approve,
				)
			} else {
				d.logger.Warn("dispatch: pending action not found or expired", "action_id", id)
			}
			if d.config.Metrics != nil {
				d.config.Metrics.SetPendingActions(d.pending.Len())
			}
		}
	}

	// Non-blocking send; drop with a warning if the inbox is full.
	select {
	case d.inbox <- env:
		return nil
	default:
		if env.Resolved != nil {
			// Keep the verdict deliverable on a later press instead of
			// losing the action to a full inbox.
			d.pending.Register(env.Resolved.Entry.Action.ID, env.Resolved.Entry)
		}
		d.logger.Warn("dispatch: inbox full, update dropped",
			"channel", key.Channel,
			"chat_id", key.ChatID,
		)
		return ErrInboxFull
	}
}

// Stop gracefully shuts down the dispatcher: closes inbox, drains workers,
// cancels context.
func (d *Dispatcher) Stop(_ context.Context) {
	d.stopOnce.Do(func() {
		d.logger.Info("dispatch: stopping")

		d.inboxMu.Lock()
		d.stopped.Store(true)
		close(d.inbox)
		cancel := d.cancel
		d.inboxMu.Unlock()

		// Cancel before waiting so in-flight turns can terminate.
		if cancel != nil {
			cancel()
		}

		d.pool.Wait()
		d.logger.Info("dispatch: stopped")
	})
}

// PruneSessions triggers a lazy housekeeping pass.
func (d *Dispatcher) PruneSessions() int {
	return d.pruner.TryPrune()
}

// Sessions returns the session store for external inspection.
func (d *Dispatcher) Sessions() SessionStore {
	return d.store
}

// Pending returns the pending-action registry for external inspection.
func (d *Dispatcher) Pending() *PendingActions {
	return d.pending
}

// updateID extracts the numeric transport update ID used for dedupe.
// Updates without one (tests, synthetic submissions) skip the journal.
func updateID(msg message.InboundMessage) (int64, bool) {
	id, err := strconv.ParseInt(msg.ID, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
