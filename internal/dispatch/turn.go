package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/telegate/telegate/internal/account"
	"github.com/telegate/telegate/internal/agent"
	"github.com/telegate/telegate/internal/channel"
	"github.com/telegate/telegate/internal/hook"
	"github.com/telegate/telegate/pkg/markup"
	"github.com/telegate/telegate/pkg/message"
)

// streamBuffer absorbs bursts of small deltas so the agent reader never
// stalls on the channel's edit pacing.
const streamBuffer = 64

// turnContext carries the state of one agent turn through the event loop.
type turnContext struct {
	update   message.InboundMessage
	key      ChatKey
	link     account.Link
	convID   string
	hookMeta map[string]any
	logger   *slog.Logger

	cancelTyping func()

	// stream is the open delta stream, nil until the first delta arrives
	// and nil again after it is closed. streamWait delivers the channel's
	// verdict on the streamed draft.
	stream     chan string
	streamWait chan error

	// streamOff is set when streaming was tried and found unavailable, so
	// later deltas skip the lookup.
	streamOff bool

	// replied is set once the user got any visible reply this turn.
	replied bool
}

func (t *turnContext) stopTyping() {
	if t.cancelTyping != nil {
		t.cancelTyping()
		t.cancelTyping = nil
	}
}

// runTurn consumes the event stream of one agent turn and drives replies,
// progress notices, and confirmation prompts back to the chat. It returns
// when the backend closes the stream or the context ends.
func (p *Pipeline) runTurn(ctx context.Context, tctx *turnContext, events <-chan agent.Event) PipelineResult {
	var turnErr error
	sawDone := false
	doneConvID := ""

loop:
	for {
		select {
		case <-ctx.Done():
			turnErr = ctx.Err()
			tctx.logger.Warn("dispatch: agent turn cut off",
				"error", turnErr,
				"chat_id", tctx.key.ChatID,
			)
			break loop

		case ev, ok := <-events:
			if !ok {
				break loop
			}
			if p.cfg.Metrics != nil {
				p.cfg.Metrics.AgentEvent(string(ev.Type))
			}

			switch ev.Type {
			case agent.EventDelta:
				p.handleDelta(ctx, tctx, ev.Text)

			case agent.EventMessage:
				tctx.stopTyping()
				if tctx.stream != nil && p.finishStream(tctx) {
					// The draft already carries this text. Still announce
					// the delivery so after_send hooks see every reply.
					tctx.replied = true
					p.runAfterSend(ctx, tctx, buildReply(tctx.update, ev.Text))
					continue
				}
				p.sendAgentReply(ctx, tctx, ev.Text)

			case agent.EventStep:
				p.handleStep(ctx, tctx, ev)

			case agent.EventPendingAction:
				p.handlePendingAction(ctx, tctx, ev)

			case agent.EventError:
				tctx.stopTyping()
				if tctx.stream != nil {
					p.finishStream(tctx)
				}
				turnErr = ev.Err
				if turnErr == nil {
					turnErr = errors.New("dispatch: agent reported an unspecified error")
				}
				tctx.logger.Error("dispatch: agent turn failed",
					"error", turnErr,
					"chat_id", tctx.key.ChatID,
				)
				notice := strings.TrimSpace(ev.Text)
				if notice == "" {
					notice = noticeTurnFailed
				}
				p.sendNotice(ctx, tctx.update, notice)

			case agent.EventDone:
				sawDone = true
				doneConvID = ev.ConversationID

			default:
				tctx.logger.Debug("dispatch: unhandled agent event", "type", string(ev.Type))
			}
		}
	}

	tctx.stopTyping()
	if tctx.stream != nil && p.finishStream(tctx) {
		tctx.replied = true
	}

	if sawDone && turnErr == nil {
		if doneConvID != "" && doneConvID != tctx.convID {
			if err := p.cfg.Links.SaveConversation(ctx, tctx.key.ChatID, doneConvID); err != nil {
				tctx.logger.Warn("dispatch: conversation save failed",
					"error", err,
					"chat_id", tctx.key.ChatID,
				)
			}
		}
		p.cfg.Store.RecordTurn(tctx.key)

		// A turn that finished without a single visible reply would leave
		// the user staring at nothing. Send the empty-reply fallback.
		if !tctx.replied {
			p.sendAgentReply(ctx, tctx, "")
		}
	}

	return PipelineResult{Error: turnErr}
}

// handleDelta forwards one text fragment to the streaming draft, opening
// the stream on the first fragment. Deltas are dropped when the channel
// cannot stream; the final message event carries the full text anyway.
func (p *Pipeline) handleDelta(ctx context.Context, tctx *turnContext, text string) {
	if text == "" {
		return
	}
	if tctx.stream == nil && !tctx.streamOff {
		sc := p.streamingChannel(tctx.key.Channel)
		if sc == nil {
			tctx.streamOff = true
			return
		}
		stream := make(chan string, streamBuffer)
		wait := make(chan error, 1)
		go func() {
			wait <- sc.SendStream(ctx, tctx.update.Chat, stream)
		}()
		tctx.stream = stream
		tctx.streamWait = wait
		tctx.stopTyping()
	}
	if tctx.stream != nil {
		select {
		case tctx.stream <- text:
		case <-ctx.Done():
		}
	}
}

// finishStream closes the delta stream and reports whether the channel
// delivered the draft. On failure the caller falls back to sending the
// full reply as a regular message.
func (p *Pipeline) finishStream(tctx *turnContext) bool {
	close(tctx.stream)
	tctx.stream = nil
	if err := <-tctx.streamWait; err != nil {
		tctx.logger.Warn("dispatch: streamed reply failed, falling back to whole message",
			"error", err,
			"chat_id", tctx.key.ChatID,
		)
		tctx.streamOff = true
		return false
	}
	return true
}

// streamingChannel returns the chat's channel when live draft edits are
// enabled, supported, and currently available.
func (p *Pipeline) streamingChannel(name string) channel.StreamingChannel {
	if !p.cfg.Streaming {
		return nil
	}
	ch, ok := p.channel(name)
	if !ok {
		return nil
	}
	sc, ok := ch.(channel.StreamingChannel)
	if !ok || !sc.SupportsStreaming() {
		return nil
	}
	return sc
}

// handleStep sends a de-emphasized progress notice for a tool call the
// backend performs mid-turn. Typing stays on; the turn is still running.
func (p *Pipeline) handleStep(ctx context.Context, tctx *turnContext, ev agent.Event) {
	if ev.Action == nil {
		return
	}
	rendered := markup.RenderStep(ev.Action.Name, ev.Action.Params, p.cfg.MarkupMode)
	fm := markup.FormattedMessage{Text: rendered, Mode: p.cfg.MarkupMode}
	if err := p.sendRendered(ctx, tctx.update, fm, nil); err != nil {
		tctx.logger.Warn("dispatch: step notice send failed",
			"error", err,
			"chat_id", tctx.key.ChatID,
		)
	}
}

// handlePendingAction registers the action and posts the confirmation
// prompt with its approve/reject keyboard.
func (p *Pipeline) handlePendingAction(ctx context.Context, tctx *turnContext, ev agent.Event) {
	if ev.Action == nil || ev.Action.ID == "" {
		tctx.logger.Warn("dispatch: pending action event without id", "chat_id", tctx.key.ChatID)
		return
	}
	tctx.stopTyping()

	p.cfg.Pending.Register(ev.Action.ID, PendingEntry{
		Action:         *ev.Action,
		Key:            tctx.key,
		AccountID:      tctx.link.AccountID,
		ConversationID: tctx.convID,
	})

	rendered := markup.RenderConfirmation(ev.Action.Name, ev.Action.Params, p.cfg.MarkupMode)
	fm := markup.FormattedMessage{Text: rendered, Mode: p.cfg.MarkupMode}
	err := p.sendRendered(ctx, tctx.update, fm, message.ConfirmKeyboard(ev.Action.ID))
	if err != nil {
		// A keyboard nobody received can never be pressed. Withdraw the
		// entry so the registry does not hold a dead action until expiry.
		p.cfg.Pending.Remove(ev.Action.ID)
		tctx.logger.Error("dispatch: confirmation prompt send failed",
			"error", err,
			"chat_id", tctx.key.ChatID,
			"action", ev.Action.Name,
		)
	} else {
		tctx.replied = true
		tctx.logger.Info("dispatch: confirmation requested",
			"chat_id", tctx.key.ChatID,
			"action", ev.Action.Name,
			"action_id", ev.Action.ID,
		)
	}

	if p.cfg.Metrics != nil {
		p.cfg.Metrics.SetPendingActions(p.cfg.Pending.Len())
	}
}

// sendAgentReply delivers the agent's reply text through the hook pipeline
// and the outbound sender. The text travels raw; the channel renders it.
func (p *Pipeline) sendAgentReply(ctx context.Context, tctx *turnContext, text string) {
	out := buildReply(tctx.update, text)

	if p.cfg.HookPipeline != nil {
		hctx := &hook.Context{
			Position:       hook.BeforeSend,
			Inbound:        tctx.update,
			Account:        &tctx.link,
			ConversationID: tctx.convID,
			Outbound:       &out,
			Metadata:       tctx.hookMeta,
			Logger:         tctx.logger,
		}
		action, err := p.cfg.HookPipeline.RunBeforeSend(ctx, hctx)
		if err != nil {
			tctx.logger.Warn("dispatch: hook before_send error", "error", err)
		}
		if action == hook.ActionDrop {
			tctx.logger.Info("dispatch: reply dropped by hook", "chat_id", tctx.key.ChatID)
			return
		}
	}

	if err := p.cfg.Sender.Send(ctx, out); err != nil {
		tctx.logger.Error("dispatch: reply send failed",
			"error", err,
			"chat_id", tctx.key.ChatID,
		)
		return
	}
	tctx.replied = true
	p.runAfterSend(ctx, tctx, out)
}

// runAfterSend notifies after_send hooks that a reply reached the chat.
func (p *Pipeline) runAfterSend(ctx context.Context, tctx *turnContext, out message.OutboundMessage) {
	if p.cfg.HookPipeline == nil {
		return
	}
	hctx := &hook.Context{
		Position:       hook.AfterSend,
		Inbound:        tctx.update,
		Account:        &tctx.link,
		ConversationID: tctx.convID,
		Outbound:       &out,
		Metadata:       tctx.hookMeta,
		Logger:         tctx.logger,
	}
	p.cfg.HookPipeline.RunAfterSend(ctx, hctx)
}
