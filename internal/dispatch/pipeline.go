package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/telegate/telegate/internal/account"
	"github.com/telegate/telegate/internal/agent"
	"github.com/telegate/telegate/internal/channel"
	"github.com/telegate/telegate/internal/hook"
	"github.com/telegate/telegate/internal/security"
	"github.com/telegate/telegate/pkg/markup"
	"github.com/telegate/telegate/pkg/message"
)

// tracer instruments the pipeline. With no tracing module loaded the
// global provider is a no-op and spans cost nothing.
var tracer = otel.Tracer("telegate/dispatch")

// updateKind classifies an inbound update for routing inside the pipeline.
type updateKind string

const (
	kindCommand     updateKind = "command"
	kindText        updateKind = "text"
	kindCallback    updateKind = "callback"
	kindUnsupported updateKind = "unsupported"
)

// classify determines how the pipeline routes an update. Callback presses
// win over everything; commands over plain text; updates with no usable
// text (stickers, media, locations) are unsupported.
func classify(msg message.InboundMessage) updateKind {
	switch {
	case msg.IsCallback():
		return kindCallback
	case msg.IsCommand():
		return kindCommand
	case strings.TrimSpace(msg.TextContent()) != "":
		return kindText
	default:
		return kindUnsupported
	}
}

// User-facing notices. Raw markdown; the channel renders them on send.
const (
	noticeLinkRequired = "This chat isn't linked to an account yet.\n\n" +
		"Open **Settings → Telegram** in the web app, copy your link code, then send it here:\n\n" +
		"`/start <code>`"
	noticeBusy        = "I'm handling too many conversations right now. Please try again in a moment."
	noticeUnsupported = "I can only read text messages here. Send your request as text."
	noticeTurnFailed  = "Something went wrong while talking to your assistant. Please try again."
	noticeUnreachable = "Your assistant is unreachable right now. Please try again in a minute."
	noticeExpired     = "This action has expired."
)

// PipelineConfig groups the dependencies for the update pipeline.
type PipelineConfig struct {
	Store        SessionStore
	LaneLock     *LaneLock
	GroupPolicy  GroupPolicy
	Pending      *PendingActions
	Invoker      agent.Invoker
	Links        account.LinkStore
	Sender       ResponseSender
	Channels     ChannelLookup
	MarkupMode   markup.Mode
	Streaming    bool
	TurnTimeout  time.Duration
	Pruner       *lazyPruner
	HookPipeline *hook.Pipeline
	AuditLogger  *security.AuditLogger
	Metrics      Metrics
	Logger       *slog.Logger
}

// PipelineResult contains the outcome of pipeline execution.
type PipelineResult struct {
	Session *Session
	Error   error
	Skipped bool
}

// Pipeline executes the per-update control flow: classify, resolve the
// account, run or resume the agent turn, and deliver replies.
type Pipeline struct {
	cfg PipelineConfig

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

// NewPipeline creates a new pipeline with the given configuration.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	return &Pipeline{cfg: cfg, now: time.Now}
}

// Execute runs the pipeline for a single update.
func (p *Pipeline) Execute(ctx context.Context, env envelope) PipelineResult {
	logger := p.cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	start := p.now()
	defer func() {
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.ObserveDispatch(time.Since(start))
		}
	}()

	kind := classify(env.Update)
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.UpdateReceived(env.Key.Channel, string(kind))
	}
	ctx, span := tracer.Start(ctx, "dispatch.update", trace.WithAttributes(
		attribute.String("messaging.channel", env.Key.Channel),
		attribute.String("messaging.chat_id", env.Key.ChatID),
		attribute.String("messaging.update_kind", string(kind)),
	))
	defer span.End()

	logger.Debug("dispatch: update received",
		"channel", env.Key.Channel,
		"chat_id", env.Key.ChatID,
		"kind", string(kind),
	)

	// Per-chat activity record; also the global concurrent-chat cap.
	session, created := p.cfg.Store.GetOrCreate(env.Key)
	if session == nil {
		logger.Warn("dispatch: max chats reached, update dropped",
			"channel", env.Key.Channel,
			"chat_id", env.Key.ChatID,
		)
		p.sendNotice(ctx, env.Update, noticeBusy)
		return PipelineResult{Skipped: true}
	}
	if created {
		logger.Info("dispatch: new chat session",
			"session_id", session.ID,
			"channel", env.Key.Channel,
			"chat_id", env.Key.ChatID,
		)
	}

	// Group policy: in groups the bot only reacts when addressed.
	if !p.cfg.GroupPolicy.ShouldProcess(env.Update) {
		logger.Debug("dispatch: update filtered by group policy",
			"sender", env.Update.Sender.ID,
		)
		return PipelineResult{Session: session, Skipped: true}
	}

	// Serialize the chat: one in-flight turn per lane.
	p.cfg.LaneLock.Acquire(env.Key)
	defer p.cfg.LaneLock.Release(env.Key)

	hookMeta := make(map[string]any)
	if p.cfg.HookPipeline != nil {
		hctx := &hook.Context{
			Position: hook.UpdateReceived,
			Inbound:  env.Update,
			Metadata: hookMeta,
			Logger:   logger,
		}
		action, err := p.cfg.HookPipeline.RunUpdateReceived(ctx, hctx)
		if err != nil {
			logger.Warn("dispatch: hook update_received error", "error", err)
		}
		if action == hook.ActionDrop {
			return PipelineResult{Session: session, Skipped: true}
		}
	}

	var result PipelineResult
	switch kind {
	case kindCallback:
		result = p.handleCallback(ctx, env, hookMeta, logger)
	case kindCommand:
		result = p.handleCommand(ctx, env, logger)
	case kindUnsupported:
		p.sendNotice(ctx, env.Update, noticeUnsupported)
		result = PipelineResult{Skipped: true}
	default:
		result = p.handleText(ctx, env, hookMeta, logger)
	}
	result.Session = session

	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, result.Error.Error())
	}

	p.cfg.Store.Touch(env.Key)

	// Lazy housekeeping: opportunistically drop stale per-chat state.
	if p.cfg.Pruner != nil {
		if pruned := p.cfg.Pruner.TryPrune(); pruned > 0 {
			logger.Info("dispatch: pruned idle chat state", "count", pruned)
		}
	}

	return result
}

// handleText runs one agent turn for a plain text message.
func (p *Pipeline) handleText(ctx context.Context, env envelope, hookMeta map[string]any, logger *slog.Logger) PipelineResult {
	link, err := p.cfg.Links.Lookup(ctx, env.Key.ChatID)
	if err != nil {
		if errors.Is(err, account.ErrLinkNotFound) {
			p.sendNotice(ctx, env.Update, noticeLinkRequired)
			return PipelineResult{Skipped: true}
		}
		logger.Error("dispatch: link lookup failed", "error", err, "chat_id", env.Key.ChatID)
		p.sendNotice(ctx, env.Update, noticeTurnFailed)
		return PipelineResult{Error: err}
	}

	convID, err := p.cfg.Links.Conversation(ctx, env.Key.ChatID)
	if err != nil {
		logger.Warn("dispatch: conversation lookup failed, starting fresh",
			"error", err,
			"chat_id", env.Key.ChatID,
		)
		convID = ""
	}

	ctx, cancel := p.withTurnDeadline(ctx)
	defer cancel()

	tctx := &turnContext{
		update:   env.Update,
		key:      env.Key,
		link:     link,
		convID:   convID,
		hookMeta: hookMeta,
		logger:   logger,
	}
	p.startTyping(ctx, tctx)
	defer tctx.stopTyping()

	req := agent.Request{
		AccountID:      link.AccountID,
		ConversationID: convID,
		Text:           env.Update.TextContent(),
		Metadata: map[string]string{
			"channel":   env.Update.Channel,
			"chat_id":   env.Update.Chat.ID,
			"sender_id": env.Update.Sender.ID,
		},
	}

	events, err := p.cfg.Invoker.Invoke(ctx, req)
	if err != nil {
		return p.turnStartFailure(ctx, env.Update, err, logger)
	}
	return p.runTurn(ctx, tctx, events)
}

// handleCallback resolves an inline-keyboard press: acknowledge it, disarm
// the keyboard, and stream the verdict's outcome back into the chat.
func (p *Pipeline) handleCallback(ctx context.Context, env envelope, hookMeta map[string]any, logger *slog.Logger) PipelineResult {
	cb := env.Update.Callback

	// Presses that are not confirm/reject just get their spinner cleared.
	if _, _, ok := ParseCallback(cb.Data); !ok {
		p.answerCallback(ctx, env.Update, "")
		logger.Debug("dispatch: unrecognized callback data", "data", cb.Data)
		return PipelineResult{Skipped: true}
	}

	// A press that did not match a live pending entry: expired, unknown,
	// or already decided by an earlier press.
	if env.Resolved == nil {
		p.answerCallback(ctx, env.Update, noticeExpired)
		p.disarmKeyboard(ctx, env.Update)
		return PipelineResult{Skipped: true}
	}

	entry := env.Resolved.Entry
	verdict := "Rejected"
	auditType := security.EventActionReject
	if env.Resolved.Approve {
		verdict = "Confirmed"
		auditType = security.EventActionConfirm
	}

	p.answerCallback(ctx, env.Update, verdict)
	p.disarmKeyboard(ctx, env.Update)

	p.audit(security.AuditEvent{
		Type:       auditType,
		Channel:    env.Update.Channel,
		ChatID:     env.Key.ChatID,
		SenderID:   env.Update.Sender.ID,
		AccountID:  entry.AccountID,
		ActionName: entry.Action.Name,
	})

	ctx, cancel := p.withTurnDeadline(ctx)
	defer cancel()

	tctx := &turnContext{
		update:   env.Update,
		key:      env.Key,
		link:     account.Link{AccountID: entry.AccountID, ChatID: env.Key.ChatID},
		convID:   entry.ConversationID,
		hookMeta: hookMeta,
		logger:   logger,
	}
	p.startTyping(ctx, tctx)
	defer tctx.stopTyping()

	events, err := p.cfg.Invoker.Resume(ctx, agent.ResumeRequest{
		AccountID:      entry.AccountID,
		ConversationID: entry.ConversationID,
		ActionID:       entry.Action.ID,
		Approve:        env.Resolved.Approve,
	})
	if err != nil {
		if errors.Is(err, agent.ErrUnknownAction) {
			p.sendNotice(ctx, env.Update, noticeExpired)
			return PipelineResult{Skipped: true}
		}
		return p.turnStartFailure(ctx, env.Update, err, logger)
	}
	return p.runTurn(ctx, tctx, events)
}

// turnStartFailure maps an Invoke/Resume error to a user notice.
func (p *Pipeline) turnStartFailure(ctx context.Context, msg message.InboundMessage, err error, logger *slog.Logger) PipelineResult {
	logger.Error("dispatch: agent turn could not start",
		"error", err,
		"channel", msg.Channel,
		"chat_id", msg.Chat.ID,
	)
	notice := noticeTurnFailed
	if errors.Is(err, agent.ErrBackendUnavailable) {
		notice = noticeUnreachable
	}
	p.sendNotice(ctx, msg, notice)
	return PipelineResult{Error: err}
}

// withTurnDeadline bounds one agent turn. Without a configured timeout the
// context is merely cancellable so a finished turn releases its resources.
func (p *Pipeline) withTurnDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.TurnTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.cfg.TurnTimeout)
}

// startTyping launches the typing indicator loop for the chat. The loop
// stops when the first reply goes out or the turn ends.
func (p *Pipeline) startTyping(ctx context.Context, tctx *turnContext) {
	ch, ok := p.channel(tctx.key.Channel)
	if !ok {
		return
	}
	typingCtx, cancel := context.WithCancel(ctx)
	tctx.cancelTyping = cancel
	channel.StartTypingLoop(typingCtx, ch, tctx.update.Chat, 0)
}

// channel resolves the channel an update came from.
func (p *Pipeline) channel(name string) (channel.Channel, bool) {
	if p.cfg.Channels == nil {
		return nil, false
	}
	return p.cfg.Channels.Get(name)
}

// answerCallback acknowledges a keyboard press so the client stops its
// spinner. Best effort: failures are logged, never propagated.
func (p *Pipeline) answerCallback(ctx context.Context, msg message.InboundMessage, text string) {
	ch, ok := p.channel(msg.Channel)
	if !ok || msg.Callback == nil {
		return
	}
	if err := ch.AnswerCallback(ctx, msg.Callback.ID, text); err != nil {
		p.logWarn("dispatch: callback answer failed", "error", err, "chat_id", msg.Chat.ID)
	}
}

// disarmKeyboard removes the inline keyboard from the message whose button
// was pressed, so a decided action cannot be pressed again.
func (p *Pipeline) disarmKeyboard(ctx context.Context, msg message.InboundMessage) {
	ch, ok := p.channel(msg.Channel)
	if !ok || msg.Callback == nil || msg.Callback.MessageID == "" {
		return
	}
	err := ch.EditMessage(ctx, msg.Chat, msg.Callback.MessageID, markup.FormattedMessage{}, nil)
	if err != nil {
		p.logWarn("dispatch: keyboard disarm failed", "error", err, "chat_id", msg.Chat.ID)
	}
}

// sendNotice sends an operational notice to the chat. Notices skip the
// hook pipeline; they are the bridge talking, not the agent.
func (p *Pipeline) sendNotice(ctx context.Context, original message.InboundMessage, text string) {
	if err := p.cfg.Sender.Send(ctx, buildReply(original, text)); err != nil {
		p.logWarn("dispatch: notice send failed", "error", err, "chat_id", original.Chat.ID)
	}
}

// sendRendered sends a pre-rendered message with an optional keyboard.
func (p *Pipeline) sendRendered(ctx context.Context, original message.InboundMessage, fm markup.FormattedMessage, keyboard message.Keyboard) error {
	return p.cfg.Sender.Send(ctx, buildRendered(original, fm, keyboard))
}

func (p *Pipeline) logWarn(msg string, args ...any) {
	if p.cfg.Logger != nil {
		p.cfg.Logger.Warn(msg, args...)
	}
}
